package model

import "time"

// Tweet 一条推文。转推本身也是一行（IsRetweet=true + OriginalTweetID），
// 回复通过 ParentTweetID 挂在同一张表上。
type Tweet struct {
	ID              int64     `json:"id"`
	AuthorID        int64     `json:"authorId"`
	Content         string    `json:"content"`
	LikesCount      int64     `json:"likesCount"`
	RetweetsCount   int64     `json:"retweetsCount"`
	RepliesCount    int64     `json:"repliesCount"`
	ParentTweetID   *int64    `json:"parentTweetId,omitempty"`
	IsRetweet       bool      `json:"isRetweet"`
	OriginalTweetID *int64    `json:"originalTweetId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`

	// 读时按边表计算的视角标记；无 viewer 时保持 false
	IsLiked     bool `json:"isLiked"`
	IsRetweeted bool `json:"isRetweeted"`
}

// MaxContentLen 内容上限（code points，不是字节）
const MaxContentLen = 280
