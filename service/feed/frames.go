package feed

import (
	"encoding/json"

	tweetmodel "TStream/module/tweet/model"
	usermodel "TStream/module/user/model"
)

// 实时通道的帧定义。下行帧镜像领域事件 payload，
// 计数一律是权威快照，客户端整体替换（last-write-wins）。

// ===== 上行控制帧 =====

const (
	FrameAuthenticate = "authenticate"
	FrameJoinFeed     = "join_feed"
	FrameLeaveFeed    = "leave_feed"
)

type ControlFrame struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

// ===== 下行帧 =====

const (
	FrameAuthenticated  = "authenticated"
	FrameError          = "error"
	PushNewTweet        = "new_tweet"
	PushFollowerTweet   = "follower_tweet"
	PushTweetUpdated    = "tweet_updated"
	PushTweetDeleted    = "tweet_deleted"
	PushFollowerUpdate  = "follower_update"
	PushFollowingUpdate = "following_update"
	PushNewUser         = "new_user"
)

type AuthenticatedFrame struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	UserID  int64  `json:"userId,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type TweetFrame struct {
	Type  string           `json:"type"` // new_tweet / follower_tweet
	Tweet tweetmodel.Tweet `json:"tweet"`
}

// TweetUpdatedFrame 只带更新后的计数，不重复内容
type TweetUpdatedFrame struct {
	Type          string `json:"type"`
	TweetID       int64  `json:"tweetId"`
	Kind          string `json:"kind"` // like / retweet
	LikesCount    *int64 `json:"likesCount,omitempty"`
	RetweetsCount *int64 `json:"retweetsCount,omitempty"`
}

type TweetDeletedFrame struct {
	Type    string `json:"type"`
	TweetID int64  `json:"tweetId"`
}

type FollowerUpdateFrame struct {
	Type           string `json:"type"` // follower_update
	UserID         int64  `json:"userId"`
	FollowersCount int64  `json:"followersCount"`
}

type FollowingUpdateFrame struct {
	Type           string `json:"type"` // following_update
	UserID         int64  `json:"userId"`
	FollowingCount int64  `json:"followingCount"`
}

type NewUserFrame struct {
	Type string         `json:"type"`
	User usermodel.User `json:"user"`
}

// mustJSON 帧结构都是本包可控类型，序列化失败属于编程错误
func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
