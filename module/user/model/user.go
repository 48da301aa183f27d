package model

import "time"

// User 社交图谱里的用户行。计数列只允许 graph/tweet 两个服务改动，
// 真实来源是边表（followers/following）与推文表（tweets_count）。
type User struct {
	ID             int64     `json:"id"`
	Handle         string    `json:"username"`
	DisplayName    string    `json:"displayName"`
	Bio            string    `json:"bio"`
	AvatarURL      string    `json:"avatarUrl"`
	PasswordHash   string    `json:"-"`
	FollowersCount int64     `json:"followersCount"`
	FollowingCount int64     `json:"followingCount"`
	TweetsCount    int64     `json:"tweetsCount"`
	Verified       bool      `json:"verified"`
	Active         bool      `json:"-"` // 软删除标记，从不物理删行
	CreatedAt      time.Time `json:"createdAt"`
}

// Stats GET /stats 聚合
type Stats struct {
	Users   int64 `json:"users"`
	Tweets  int64 `json:"tweets"`
	Likes   int64 `json:"likes"`
	Follows int64 `json:"follows"`
}
