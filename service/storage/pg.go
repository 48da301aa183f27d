package storage

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	tweetmodel "TStream/module/tweet/model"
	usermodel "TStream/module/user/model"
	"TStream/tools/errs"
	"TStream/tools/ids"
)

//go:embed schema.sql
var schemaSQL string

// PGStore 持久化网关的 Postgres 实现（pgxpool）。
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "pgxpool new")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "pg ping")
	}
	return &PGStore{pool: pool}, nil
}

// EnsureSchema 启动时建表（幂等）
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return errors.Wrap(err, "ensure schema")
}

func (s *PGStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
func (s *PGStore) Close()                         { s.pool.Close() }

// pg 错误 -> 业务错误；约束类冲突不往上抛内部细节
func mapPGErr(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrNotFound.WithDetail(entity)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return errs.ErrConflict.WithDetail(entity)
		case "23503": // foreign_key_violation
			return errs.ErrNotFound.WithDetail(entity)
		}
	}
	return errs.ErrUnavailable.WithDetail("store")
}

// ===== 用户 =====

const userCols = `id, handle, display_name, bio, avatar_url, password_hash,
	followers_count, following_count, tweets_count, verified, active, created_at`

func scanUser(row pgx.Row) (*usermodel.User, error) {
	var u usermodel.User
	err := row.Scan(&u.ID, &u.Handle, &u.DisplayName, &u.Bio, &u.AvatarURL, &u.PasswordHash,
		&u.FollowersCount, &u.FollowingCount, &u.TweetsCount, &u.Verified, &u.Active, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PGStore) CreateUser(ctx context.Context, u *usermodel.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, handle, display_name, bio, avatar_url, password_hash, verified, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Handle, u.DisplayName, u.Bio, u.AvatarURL, u.PasswordHash, u.Verified, u.Active, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errs.ErrConflict.WithDetail("handle already taken")
		}
		return mapPGErr(err, "user")
	}
	return nil
}

func (s *PGStore) GetUser(ctx context.Context, id int64) (*usermodel.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, mapPGErr(err, "user")
	}
	return u, nil
}

func (s *PGStore) GetUserByHandle(ctx context.Context, handle string) (*usermodel.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE handle = $1`, handle))
	if err != nil {
		return nil, mapPGErr(err, "user")
	}
	return u, nil
}

func (s *PGStore) Stats(ctx context.Context) (usermodel.Stats, error) {
	var st usermodel.Stats
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT count(*) FROM users),
		       (SELECT count(*) FROM tweets WHERE NOT is_retweet),
		       (SELECT count(*) FROM likes),
		       (SELECT count(*) FROM follows)`).
		Scan(&st.Users, &st.Tweets, &st.Likes, &st.Follows)
	if err != nil {
		return usermodel.Stats{}, mapPGErr(err, "stats")
	}
	return st, nil
}

// ===== 关注边 =====

func (s *PGStore) ToggleFollow(ctx context.Context, followerID, followingID int64) (ToggleFollowResult, error) {
	var res ToggleFollowResult
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var active bool
		if err := tx.QueryRow(ctx, `SELECT active FROM users WHERE id = $1`, followingID).Scan(&active); err != nil {
			return mapPGErr(err, "target user")
		}
		if !active {
			return errs.ErrNotFound.WithDetail("target user")
		}

		ct, err := tx.Exec(ctx, `
			INSERT INTO follows (follower_id, following_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, followerID, followingID)
		if err != nil {
			return mapPGErr(err, "follow edge")
		}
		if ct.RowsAffected() == 1 {
			res.Following = true
			if err := tx.QueryRow(ctx, `
				UPDATE users SET followers_count = followers_count + 1 WHERE id = $1
				RETURNING followers_count`, followingID).Scan(&res.FollowersCount); err != nil {
				return mapPGErr(err, "target user")
			}
			if err := tx.QueryRow(ctx, `
				UPDATE users SET following_count = following_count + 1 WHERE id = $1
				RETURNING following_count`, followerID).Scan(&res.FollowingCount); err != nil {
				return mapPGErr(err, "actor")
			}
			return nil
		}

		ct, err = tx.Exec(ctx, `
			DELETE FROM follows WHERE follower_id = $1 AND following_id = $2`, followerID, followingID)
		if err != nil {
			return mapPGErr(err, "follow edge")
		}
		res.Following = false
		if ct.RowsAffected() == 1 {
			if err := tx.QueryRow(ctx, `
				UPDATE users SET followers_count = followers_count - 1 WHERE id = $1
				RETURNING followers_count`, followingID).Scan(&res.FollowersCount); err != nil {
				return mapPGErr(err, "target user")
			}
			if err := tx.QueryRow(ctx, `
				UPDATE users SET following_count = following_count - 1 WHERE id = $1
				RETURNING following_count`, followerID).Scan(&res.FollowingCount); err != nil {
				return mapPGErr(err, "actor")
			}
			return nil
		}

		// 并发竞态：边已被对方事务删掉，计数原样读回
		if err := tx.QueryRow(ctx, `SELECT followers_count FROM users WHERE id = $1`, followingID).Scan(&res.FollowersCount); err != nil {
			return mapPGErr(err, "target user")
		}
		if err := tx.QueryRow(ctx, `SELECT following_count FROM users WHERE id = $1`, followerID).Scan(&res.FollowingCount); err != nil {
			return mapPGErr(err, "actor")
		}
		return nil
	})
	if err != nil {
		return ToggleFollowResult{}, err
	}
	return res, nil
}

func (s *PGStore) listEdgeUsers(ctx context.Context, query string, userID int64, limit, offset int) ([]*usermodel.User, error) {
	limit, offset = ClampPage(limit, offset)
	rows, err := s.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, mapPGErr(err, "users")
	}
	defer rows.Close()
	var out []*usermodel.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapPGErr(err, "users")
		}
		out = append(out, u)
	}
	return out, errors.Wrap(rows.Err(), "list users")
}

func (s *PGStore) ListFollowers(ctx context.Context, userID int64, limit, offset int) ([]*usermodel.User, error) {
	return s.listEdgeUsers(ctx, `
		SELECT `+userCols+` FROM users u
		JOIN follows f ON f.follower_id = u.id
		WHERE f.following_id = $1
		ORDER BY f.created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
}

func (s *PGStore) ListFollowing(ctx context.Context, userID int64, limit, offset int) ([]*usermodel.User, error) {
	return s.listEdgeUsers(ctx, `
		SELECT `+userCols+` FROM users u
		JOIN follows f ON f.following_id = u.id
		WHERE f.follower_id = $1
		ORDER BY f.created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
}

func (s *PGStore) FollowerIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT follower_id FROM follows WHERE following_id = $1`, userID)
	if err != nil {
		return nil, mapPGErr(err, "followers")
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, mapPGErr(err, "followers")
		}
		out = append(out, id)
	}
	return out, errors.Wrap(rows.Err(), "follower ids")
}

// ===== 推文 =====

const tweetCols = `id, author_id, content, likes_count, retweets_count, replies_count,
	parent_tweet_id, is_retweet, original_tweet_id, created_at`

func scanTweet(row pgx.Row) (*tweetmodel.Tweet, error) {
	var t tweetmodel.Tweet
	err := row.Scan(&t.ID, &t.AuthorID, &t.Content, &t.LikesCount, &t.RetweetsCount, &t.RepliesCount,
		&t.ParentTweetID, &t.IsRetweet, &t.OriginalTweetID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PGStore) InsertTweet(ctx context.Context, t *tweetmodel.Tweet) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if t.ParentTweetID != nil {
			ct, err := tx.Exec(ctx, `
				UPDATE tweets SET replies_count = replies_count + 1 WHERE id = $1`, *t.ParentTweetID)
			if err != nil {
				return mapPGErr(err, "parent tweet")
			}
			if ct.RowsAffected() == 0 {
				return errs.ErrNotFound.WithDetail("parent tweet")
			}
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO tweets (id, author_id, content, parent_tweet_id, is_retweet, original_tweet_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at`,
			t.ID, t.AuthorID, t.Content, t.ParentTweetID, t.IsRetweet, t.OriginalTweetID).
			Scan(&t.CreatedAt)
		if err != nil {
			return mapPGErr(err, "tweet")
		}
		if !t.IsRetweet {
			if _, err := tx.Exec(ctx, `
				UPDATE users SET tweets_count = tweets_count + 1 WHERE id = $1`, t.AuthorID); err != nil {
				return mapPGErr(err, "author")
			}
		}
		return nil
	})
}

func (s *PGStore) DeleteTweet(ctx context.Context, tweetID int64) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		t, err := scanTweet(tx.QueryRow(ctx, `
			SELECT `+tweetCols+` FROM tweets WHERE id = $1 FOR UPDATE`, tweetID))
		if err != nil {
			return mapPGErr(err, "tweet")
		}
		// 转推行与点赞边由 FK 级联清掉；回复经 SET NULL 断开父链接留下来
		if _, err := tx.Exec(ctx, `DELETE FROM tweets WHERE id = $1`, tweetID); err != nil {
			return mapPGErr(err, "tweet")
		}
		if t.ParentTweetID != nil {
			if _, err := tx.Exec(ctx, `
				UPDATE tweets SET replies_count = greatest(replies_count - 1, 0) WHERE id = $1`, *t.ParentTweetID); err != nil {
				return mapPGErr(err, "parent tweet")
			}
		}
		if !t.IsRetweet {
			if _, err := tx.Exec(ctx, `
				UPDATE users SET tweets_count = greatest(tweets_count - 1, 0) WHERE id = $1`, t.AuthorID); err != nil {
				return mapPGErr(err, "author")
			}
		}
		return nil
	})
}

func (s *PGStore) GetTweet(ctx context.Context, id int64) (*tweetmodel.Tweet, error) {
	t, err := scanTweet(s.pool.QueryRow(ctx, `SELECT `+tweetCols+` FROM tweets WHERE id = $1`, id))
	if err != nil {
		return nil, mapPGErr(err, "tweet")
	}
	return t, nil
}

func (s *PGStore) listTweets(ctx context.Context, query string, args ...any) ([]*tweetmodel.Tweet, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPGErr(err, "tweets")
	}
	defer rows.Close()
	var out []*tweetmodel.Tweet
	for rows.Next() {
		t, err := scanTweet(rows)
		if err != nil {
			return nil, mapPGErr(err, "tweets")
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "list tweets")
}

func (s *PGStore) ListPublicFeed(ctx context.Context, limit, offset int) ([]*tweetmodel.Tweet, error) {
	limit, offset = ClampPage(limit, offset)
	return s.listTweets(ctx, `
		SELECT `+tweetCols+` FROM tweets
		WHERE NOT is_retweet
		ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
}

func (s *PGStore) ListPersonalFeed(ctx context.Context, viewerID int64, limit, offset int) ([]*tweetmodel.Tweet, error) {
	limit, offset = ClampPage(limit, offset)
	return s.listTweets(ctx, `
		SELECT `+tweetCols+` FROM tweets t
		WHERE NOT t.is_retweet
		  AND (t.author_id = $1 OR t.author_id IN
		       (SELECT following_id FROM follows WHERE follower_id = $1))
		ORDER BY t.created_at DESC, t.id DESC LIMIT $2 OFFSET $3`, viewerID, limit, offset)
}

func (s *PGStore) ListUserTweets(ctx context.Context, userID int64, limit, offset int) ([]*tweetmodel.Tweet, error) {
	limit, offset = ClampPage(limit, offset)
	return s.listTweets(ctx, `
		SELECT `+tweetCols+` FROM tweets
		WHERE author_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
}

// ===== 点赞 / 转推 =====

func (s *PGStore) ToggleLike(ctx context.Context, userID, tweetID int64) (ToggleLikeResult, error) {
	var res ToggleLikeResult
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tweets WHERE id = $1)`, tweetID).Scan(&exists); err != nil {
			return mapPGErr(err, "tweet")
		}
		if !exists {
			return errs.ErrNotFound.WithDetail("tweet")
		}

		ct, err := tx.Exec(ctx, `
			INSERT INTO likes (user_id, tweet_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, userID, tweetID)
		if err != nil {
			return mapPGErr(err, "like edge")
		}
		if ct.RowsAffected() == 1 {
			res.Liked = true
			return mapPGErr(tx.QueryRow(ctx, `
				UPDATE tweets SET likes_count = likes_count + 1 WHERE id = $1
				RETURNING likes_count`, tweetID).Scan(&res.LikesCount), "tweet")
		}

		ct, err = tx.Exec(ctx, `DELETE FROM likes WHERE user_id = $1 AND tweet_id = $2`, userID, tweetID)
		if err != nil {
			return mapPGErr(err, "like edge")
		}
		res.Liked = false
		if ct.RowsAffected() == 1 {
			return mapPGErr(tx.QueryRow(ctx, `
				UPDATE tweets SET likes_count = likes_count - 1 WHERE id = $1
				RETURNING likes_count`, tweetID).Scan(&res.LikesCount), "tweet")
		}
		return mapPGErr(tx.QueryRow(ctx, `
			SELECT likes_count FROM tweets WHERE id = $1`, tweetID).Scan(&res.LikesCount), "tweet")
	})
	if err != nil {
		return ToggleLikeResult{}, err
	}
	return res, nil
}

func (s *PGStore) ToggleRetweet(ctx context.Context, userID, tweetID int64) (ToggleRetweetResult, error) {
	var res ToggleRetweetResult
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		t, err := scanTweet(tx.QueryRow(ctx, `SELECT `+tweetCols+` FROM tweets WHERE id = $1`, tweetID))
		if err != nil {
			return mapPGErr(err, "tweet")
		}
		// 转推的转推落到最初那条上
		if t.IsRetweet && t.OriginalTweetID != nil {
			t, err = scanTweet(tx.QueryRow(ctx, `SELECT `+tweetCols+` FROM tweets WHERE id = $1`, *t.OriginalTweetID))
			if err != nil {
				return mapPGErr(err, "original tweet")
			}
		}

		res.TweetID = t.ID
		rtID := ids.Generate()
		ct, err := tx.Exec(ctx, `
			INSERT INTO tweets (id, author_id, content, is_retweet, original_tweet_id)
			VALUES ($1, $2, $3, TRUE, $4)
			ON CONFLICT (author_id, original_tweet_id) WHERE is_retweet DO NOTHING`,
			rtID, userID, t.Content, t.ID)
		if err != nil {
			return mapPGErr(err, "retweet")
		}
		if ct.RowsAffected() == 1 {
			res.Retweeted = true
			res.RetweetID = rtID
			return mapPGErr(tx.QueryRow(ctx, `
				UPDATE tweets SET retweets_count = retweets_count + 1 WHERE id = $1
				RETURNING retweets_count`, t.ID).Scan(&res.RetweetsCount), "tweet")
		}

		ct, err = tx.Exec(ctx, `
			DELETE FROM tweets WHERE author_id = $1 AND original_tweet_id = $2 AND is_retweet`, userID, t.ID)
		if err != nil {
			return mapPGErr(err, "retweet")
		}
		res.Retweeted = false
		if ct.RowsAffected() >= 1 {
			return mapPGErr(tx.QueryRow(ctx, `
				UPDATE tweets SET retweets_count = retweets_count - 1 WHERE id = $1
				RETURNING retweets_count`, t.ID).Scan(&res.RetweetsCount), "tweet")
		}
		return mapPGErr(tx.QueryRow(ctx, `
			SELECT retweets_count FROM tweets WHERE id = $1`, t.ID).Scan(&res.RetweetsCount), "tweet")
	})
	if err != nil {
		return ToggleRetweetResult{}, err
	}
	return res, nil
}

func (s *PGStore) ApplyViewerFlags(ctx context.Context, viewerID int64, tweets []*tweetmodel.Tweet) error {
	if viewerID <= 0 || len(tweets) == 0 {
		return nil
	}
	idsArg := make([]int64, 0, len(tweets))
	byID := make(map[int64]*tweetmodel.Tweet, len(tweets))
	for _, t := range tweets {
		idsArg = append(idsArg, t.ID)
		byID[t.ID] = t
	}

	rows, err := s.pool.Query(ctx, `
		SELECT tweet_id FROM likes WHERE user_id = $1 AND tweet_id = ANY($2)`, viewerID, idsArg)
	if err != nil {
		return mapPGErr(err, "likes")
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return mapPGErr(err, "likes")
		}
		if t, ok := byID[id]; ok {
			t.IsLiked = true
		}
	}
	if err := rows.Err(); err != nil {
		return mapPGErr(err, "likes")
	}

	rows2, err := s.pool.Query(ctx, `
		SELECT original_tweet_id FROM tweets
		WHERE author_id = $1 AND is_retweet AND original_tweet_id = ANY($2)`, viewerID, idsArg)
	if err != nil {
		return mapPGErr(err, "retweets")
	}
	defer rows2.Close()
	for rows2.Next() {
		var id int64
		if err := rows2.Scan(&id); err != nil {
			return mapPGErr(err, "retweets")
		}
		if t, ok := byID[id]; ok {
			t.IsRetweeted = true
		}
	}
	return mapPGErr(rows2.Err(), "retweets")
}
