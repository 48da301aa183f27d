package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	tweetmodel "TStream/module/tweet/model"
	usermodel "TStream/module/user/model"
	"TStream/tools/errs"
	"TStream/tools/ids"
)

// MemoryStore 内存版 Store：本地开发与单测用，语义与 pg 版一致。
// 单把互斥锁即事务边界（同一实体的边+计数一起变）。
type MemoryStore struct {
	mu       sync.Mutex
	users    map[int64]*usermodel.User
	byHandle map[string]int64
	tweets   map[int64]*tweetmodel.Tweet
	follows  map[[2]int64]struct{} // (follower, following)
	likes    map[[2]int64]struct{} // (user, tweet)
	retweets map[[2]int64]int64    // (user, original) -> 转推行ID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[int64]*usermodel.User),
		byHandle: make(map[string]int64),
		tweets:   make(map[int64]*tweetmodel.Tweet),
		follows:  make(map[[2]int64]struct{}),
		likes:    make(map[[2]int64]struct{}),
		retweets: make(map[[2]int64]int64),
	}
}

var _ Store = (*MemoryStore)(nil)

// ===== 用户 =====

func (s *MemoryStore) CreateUser(_ context.Context, u *usermodel.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHandle[u.Handle]; ok {
		return errs.ErrConflict.WithDetail("handle already taken")
	}
	cp := *u
	s.users[cp.ID] = &cp
	s.byHandle[cp.Handle] = cp.ID
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (*usermodel.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errs.ErrNotFound.WithDetail("user")
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByHandle(_ context.Context, handle string) (*usermodel.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byHandle[handle]
	if !ok {
		return nil, errs.ErrNotFound.WithDetail("user")
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *MemoryStore) Stats(_ context.Context) (usermodel.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tweets int64
	for _, t := range s.tweets {
		if !t.IsRetweet {
			tweets++
		}
	}
	return usermodel.Stats{
		Users:   int64(len(s.users)),
		Tweets:  tweets,
		Likes:   int64(len(s.likes)),
		Follows: int64(len(s.follows)),
	}, nil
}

// ===== 关注边 =====

func (s *MemoryStore) ToggleFollow(_ context.Context, followerID, followingID int64) (ToggleFollowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.users[followingID]
	if !ok || !target.Active {
		return ToggleFollowResult{}, errs.ErrNotFound.WithDetail("target user")
	}
	actor, ok := s.users[followerID]
	if !ok {
		return ToggleFollowResult{}, errs.ErrNotFound.WithDetail("actor")
	}

	key := [2]int64{followerID, followingID}
	if _, exists := s.follows[key]; exists {
		delete(s.follows, key)
		target.FollowersCount--
		actor.FollowingCount--
		return ToggleFollowResult{Following: false, FollowersCount: target.FollowersCount, FollowingCount: actor.FollowingCount}, nil
	}
	s.follows[key] = struct{}{}
	target.FollowersCount++
	actor.FollowingCount++
	return ToggleFollowResult{Following: true, FollowersCount: target.FollowersCount, FollowingCount: actor.FollowingCount}, nil
}

func (s *MemoryStore) ListFollowers(_ context.Context, userID int64, limit, offset int) ([]*usermodel.User, error) {
	limit, offset = ClampPage(limit, offset)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*usermodel.User
	for key := range s.follows {
		if key[1] == userID {
			if u, ok := s.users[key[0]]; ok {
				cp := *u
				out = append(out, &cp)
			}
		}
	}
	sortUsers(out)
	return pageUsers(out, limit, offset), nil
}

func (s *MemoryStore) ListFollowing(_ context.Context, userID int64, limit, offset int) ([]*usermodel.User, error) {
	limit, offset = ClampPage(limit, offset)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*usermodel.User
	for key := range s.follows {
		if key[0] == userID {
			if u, ok := s.users[key[1]]; ok {
				cp := *u
				out = append(out, &cp)
			}
		}
	}
	sortUsers(out)
	return pageUsers(out, limit, offset), nil
}

func (s *MemoryStore) FollowerIDs(_ context.Context, userID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for key := range s.follows {
		if key[1] == userID {
			out = append(out, key[0])
		}
	}
	return out, nil
}

// ===== 推文 =====

func (s *MemoryStore) InsertTweet(_ context.Context, t *tweetmodel.Tweet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	author, ok := s.users[t.AuthorID]
	if !ok {
		return errs.ErrNotFound.WithDetail("author")
	}
	if t.ParentTweetID != nil {
		parent, ok := s.tweets[*t.ParentTweetID]
		if !ok {
			return errs.ErrNotFound.WithDetail("parent tweet")
		}
		parent.RepliesCount++
	}
	cp := *t
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.tweets[cp.ID] = &cp
	t.CreatedAt = cp.CreatedAt
	if !cp.IsRetweet {
		author.TweetsCount++
	}
	return nil
}

func (s *MemoryStore) DeleteTweet(_ context.Context, tweetID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tweets[tweetID]
	if !ok {
		return errs.ErrNotFound.WithDetail("tweet")
	}
	s.deleteTweetLocked(t)
	return nil
}

func (s *MemoryStore) deleteTweetLocked(t *tweetmodel.Tweet) {
	// 级联：点赞边、转推行、父推回复计数、作者推文计数
	for key := range s.likes {
		if key[1] == t.ID {
			delete(s.likes, key)
		}
	}
	for key, rtID := range s.retweets {
		if key[1] == t.ID {
			delete(s.retweets, key)
			delete(s.tweets, rtID)
		}
	}
	// 回复不跟着删，断开父链接变成独立推（对应 FK ON DELETE SET NULL）
	for _, child := range s.tweets {
		if child.ParentTweetID != nil && *child.ParentTweetID == t.ID {
			child.ParentTweetID = nil
		}
	}
	if t.ParentTweetID != nil {
		if parent, ok := s.tweets[*t.ParentTweetID]; ok && parent.RepliesCount > 0 {
			parent.RepliesCount--
		}
	}
	if !t.IsRetweet {
		if author, ok := s.users[t.AuthorID]; ok && author.TweetsCount > 0 {
			author.TweetsCount--
		}
	}
	delete(s.tweets, t.ID)
}

func (s *MemoryStore) GetTweet(_ context.Context, id int64) (*tweetmodel.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tweets[id]
	if !ok {
		return nil, errs.ErrNotFound.WithDetail("tweet")
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListPublicFeed(_ context.Context, limit, offset int) ([]*tweetmodel.Tweet, error) {
	limit, offset = ClampPage(limit, offset)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*tweetmodel.Tweet
	for _, t := range s.tweets {
		if !t.IsRetweet {
			cp := *t
			out = append(out, &cp)
		}
	}
	sortTweets(out)
	return pageTweets(out, limit, offset), nil
}

func (s *MemoryStore) ListPersonalFeed(_ context.Context, viewerID int64, limit, offset int) ([]*tweetmodel.Tweet, error) {
	limit, offset = ClampPage(limit, offset)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*tweetmodel.Tweet
	for _, t := range s.tweets {
		if t.IsRetweet {
			continue
		}
		if t.AuthorID == viewerID {
			cp := *t
			out = append(out, &cp)
			continue
		}
		if _, ok := s.follows[[2]int64{viewerID, t.AuthorID}]; ok {
			cp := *t
			out = append(out, &cp)
		}
	}
	sortTweets(out)
	return pageTweets(out, limit, offset), nil
}

func (s *MemoryStore) ListUserTweets(_ context.Context, userID int64, limit, offset int) ([]*tweetmodel.Tweet, error) {
	limit, offset = ClampPage(limit, offset)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*tweetmodel.Tweet
	for _, t := range s.tweets {
		if t.AuthorID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sortTweets(out)
	return pageTweets(out, limit, offset), nil
}

// ===== 点赞 / 转推 =====

func (s *MemoryStore) ToggleLike(_ context.Context, userID, tweetID int64) (ToggleLikeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tweets[tweetID]
	if !ok {
		return ToggleLikeResult{}, errs.ErrNotFound.WithDetail("tweet")
	}
	key := [2]int64{userID, tweetID}
	if _, exists := s.likes[key]; exists {
		delete(s.likes, key)
		t.LikesCount--
		return ToggleLikeResult{Liked: false, LikesCount: t.LikesCount}, nil
	}
	s.likes[key] = struct{}{}
	t.LikesCount++
	return ToggleLikeResult{Liked: true, LikesCount: t.LikesCount}, nil
}

func (s *MemoryStore) ToggleRetweet(_ context.Context, userID, tweetID int64) (ToggleRetweetResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tweets[tweetID]
	if !ok {
		return ToggleRetweetResult{}, errs.ErrNotFound.WithDetail("tweet")
	}
	// 转推的转推落到最初那条上
	if t.IsRetweet && t.OriginalTweetID != nil {
		if orig, ok := s.tweets[*t.OriginalTweetID]; ok {
			t = orig
		}
	}
	key := [2]int64{userID, t.ID}
	if rtID, exists := s.retweets[key]; exists {
		delete(s.retweets, key)
		delete(s.tweets, rtID)
		t.RetweetsCount--
		return ToggleRetweetResult{Retweeted: false, TweetID: t.ID, RetweetsCount: t.RetweetsCount}, nil
	}
	origID := t.ID
	rt := &tweetmodel.Tweet{
		ID:              ids.Generate(),
		AuthorID:        userID,
		Content:         t.Content,
		IsRetweet:       true,
		OriginalTweetID: &origID,
		CreatedAt:       time.Now().UTC(),
	}
	s.tweets[rt.ID] = rt
	s.retweets[key] = rt.ID
	t.RetweetsCount++
	return ToggleRetweetResult{Retweeted: true, TweetID: t.ID, RetweetsCount: t.RetweetsCount, RetweetID: rt.ID}, nil
}

func (s *MemoryStore) ApplyViewerFlags(_ context.Context, viewerID int64, tweets []*tweetmodel.Tweet) error {
	if viewerID <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tweets {
		_, t.IsLiked = s.likes[[2]int64{viewerID, t.ID}]
		_, t.IsRetweeted = s.retweets[[2]int64{viewerID, t.ID}]
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close()                     {}

// ===== 排序/分页 =====

func sortTweets(ts []*tweetmodel.Tweet) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].ID > ts[j].ID
		}
		return ts[i].CreatedAt.After(ts[j].CreatedAt)
	})
}

func sortUsers(us []*usermodel.User) {
	sort.Slice(us, func(i, j int) bool {
		if us[i].CreatedAt.Equal(us[j].CreatedAt) {
			return us[i].ID > us[j].ID
		}
		return us[i].CreatedAt.After(us[j].CreatedAt)
	})
}

func pageTweets(ts []*tweetmodel.Tweet, limit, offset int) []*tweetmodel.Tweet {
	if offset >= len(ts) {
		return nil
	}
	end := offset + limit
	if end > len(ts) {
		end = len(ts)
	}
	return ts[offset:end]
}

func pageUsers(us []*usermodel.User, limit, offset int) []*usermodel.User {
	if offset >= len(us) {
		return nil
	}
	end := offset + limit
	if end > len(us) {
		end = len(us)
	}
	return us[offset:end]
}
