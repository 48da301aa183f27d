package storage

import (
	"context"

	tweetmodel "TStream/module/tweet/model"
	usermodel "TStream/module/user/model"
)

// Store 持久化网关：关系库上的原子读写原语。
// 所有 toggle 都是单事务：查边 -> 增删边 -> 调计数，
// 边表唯一约束是并发竞态的最终兜底，而不仅是优化。
type Store interface {
	// ===== 用户 =====
	CreateUser(ctx context.Context, u *usermodel.User) error // handle 重复 => Conflict
	GetUser(ctx context.Context, id int64) (*usermodel.User, error)
	GetUserByHandle(ctx context.Context, handle string) (*usermodel.User, error)
	Stats(ctx context.Context) (usermodel.Stats, error)

	// ===== 关注边 =====
	ToggleFollow(ctx context.Context, followerID, followingID int64) (ToggleFollowResult, error)
	ListFollowers(ctx context.Context, userID int64, limit, offset int) ([]*usermodel.User, error)
	ListFollowing(ctx context.Context, userID int64, limit, offset int) ([]*usermodel.User, error)
	FollowerIDs(ctx context.Context, userID int64) ([]int64, error) // 扇出路由投递时实时取

	// ===== 推文 =====
	InsertTweet(ctx context.Context, t *tweetmodel.Tweet) error // 含 tweets_count/replies_count 联动
	DeleteTweet(ctx context.Context, tweetID int64) error       // 级联清 like/转推行
	GetTweet(ctx context.Context, id int64) (*tweetmodel.Tweet, error)
	ListPublicFeed(ctx context.Context, limit, offset int) ([]*tweetmodel.Tweet, error)
	ListPersonalFeed(ctx context.Context, viewerID int64, limit, offset int) ([]*tweetmodel.Tweet, error)
	ListUserTweets(ctx context.Context, userID int64, limit, offset int) ([]*tweetmodel.Tweet, error)

	// ===== 点赞 / 转推 =====
	ToggleLike(ctx context.Context, userID, tweetID int64) (ToggleLikeResult, error)
	ToggleRetweet(ctx context.Context, userID, tweetID int64) (ToggleRetweetResult, error)

	// ApplyViewerFlags 读时按边表补 isLiked/isRetweeted（无反规范化缓存）
	ApplyViewerFlags(ctx context.Context, viewerID int64, tweets []*tweetmodel.Tweet) error

	Ping(ctx context.Context) error
	Close()
}

type ToggleFollowResult struct {
	Following      bool  // 新状态
	FollowersCount int64 // followingID 的粉丝数
	FollowingCount int64 // followerID 的关注数
}

type ToggleLikeResult struct {
	Liked      bool
	LikesCount int64
}

type ToggleRetweetResult struct {
	Retweeted     bool
	TweetID       int64 // 计数归属的那条：转推的转推会重定向到最初那条
	RetweetsCount int64
	RetweetID     int64 // 新建转推行的ID；取消时为 0
}

// 分页护栏：limit 默认 20，上限 100
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
