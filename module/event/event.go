package event

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"

	tweetmodel "TStream/module/tweet/model"
	usermodel "TStream/module/user/model"
	"TStream/tools/ids"
)

// 领域事件：封闭的 tagged union，路由端对 Kind 穷举匹配。
// 每条事件带权威计数快照，消费端整体替换，不做增量，天然容忍重放。

type Kind string

const (
	KindTweetCreated     Kind = "tweet_created"
	KindTweetDeleted     Kind = "tweet_deleted"
	KindTweetLiked       Kind = "tweet_liked"
	KindTweetUnliked     Kind = "tweet_unliked"
	KindTweetRetweeted   Kind = "tweet_retweeted"
	KindTweetUnretweeted Kind = "tweet_unretweeted"
	KindUserFollowed     Kind = "user_followed"
	KindUserUnfollowed   Kind = "user_unfollowed"
	KindUserRegistered   Kind = "user_registered"
)

// 事件日志 topic（对外部消费方是契约，不能改名）
const (
	TopicTweets  = "tweets"
	TopicFollows = "follows"
	TopicLikes   = "likes"
	TopicUsers   = "users"
)

func Topics() []string {
	return []string{TopicTweets, TopicFollows, TopicLikes, TopicUsers}
}

type Payload interface {
	Kind() Kind
	Topic() string
	SubjectID() int64 // 分区键：同一主体的事件落同一分区，保证提交序
}

type Event struct {
	ID        int64
	Timestamp time.Time
	Payload   Payload
}

// New 由已提交的变更构造事件；ID 单调（雪花）
func New(p Payload) Event {
	return Event{ID: ids.Generate(), Timestamp: time.Now().UTC(), Payload: p}
}

// ===== payload 定义 =====

type TweetCreatedPayload struct {
	Tweet tweetmodel.Tweet `json:"tweet"`
}

func (p TweetCreatedPayload) Kind() Kind       { return KindTweetCreated }
func (p TweetCreatedPayload) Topic() string    { return TopicTweets }
func (p TweetCreatedPayload) SubjectID() int64 { return p.Tweet.AuthorID }

type TweetDeletedPayload struct {
	TweetID  int64 `json:"tweetId"`
	AuthorID int64 `json:"authorId"`
}

func (p TweetDeletedPayload) Kind() Kind       { return KindTweetDeleted }
func (p TweetDeletedPayload) Topic() string    { return TopicTweets }
func (p TweetDeletedPayload) SubjectID() int64 { return p.AuthorID }

type TweetLikedPayload struct {
	TweetID    int64 `json:"tweetId"`
	UserID     int64 `json:"userId"`
	LikesCount int64 `json:"likesCount"`
}

func (p TweetLikedPayload) Kind() Kind       { return KindTweetLiked }
func (p TweetLikedPayload) Topic() string    { return TopicLikes }
func (p TweetLikedPayload) SubjectID() int64 { return p.TweetID }

type TweetUnlikedPayload struct {
	TweetID    int64 `json:"tweetId"`
	UserID     int64 `json:"userId"`
	LikesCount int64 `json:"likesCount"`
}

func (p TweetUnlikedPayload) Kind() Kind       { return KindTweetUnliked }
func (p TweetUnlikedPayload) Topic() string    { return TopicLikes }
func (p TweetUnlikedPayload) SubjectID() int64 { return p.TweetID }

type TweetRetweetedPayload struct {
	TweetID       int64 `json:"tweetId"`
	UserID        int64 `json:"userId"`
	RetweetsCount int64 `json:"retweetsCount"`
}

func (p TweetRetweetedPayload) Kind() Kind       { return KindTweetRetweeted }
func (p TweetRetweetedPayload) Topic() string    { return TopicTweets }
func (p TweetRetweetedPayload) SubjectID() int64 { return p.TweetID }

type TweetUnretweetedPayload struct {
	TweetID       int64 `json:"tweetId"`
	UserID        int64 `json:"userId"`
	RetweetsCount int64 `json:"retweetsCount"`
}

func (p TweetUnretweetedPayload) Kind() Kind       { return KindTweetUnretweeted }
func (p TweetUnretweetedPayload) Topic() string    { return TopicTweets }
func (p TweetUnretweetedPayload) SubjectID() int64 { return p.TweetID }

type UserFollowedPayload struct {
	FollowerID     int64 `json:"followerId"`
	FollowingID    int64 `json:"followingId"`
	FollowersCount int64 `json:"followersCount"` // followingId 的粉丝数
	FollowingCount int64 `json:"followingCount"` // followerId 的关注数
}

func (p UserFollowedPayload) Kind() Kind       { return KindUserFollowed }
func (p UserFollowedPayload) Topic() string    { return TopicFollows }
func (p UserFollowedPayload) SubjectID() int64 { return p.FollowingID }

type UserUnfollowedPayload struct {
	FollowerID     int64 `json:"followerId"`
	FollowingID    int64 `json:"followingId"`
	FollowersCount int64 `json:"followersCount"`
	FollowingCount int64 `json:"followingCount"`
}

func (p UserUnfollowedPayload) Kind() Kind       { return KindUserUnfollowed }
func (p UserUnfollowedPayload) Topic() string    { return TopicFollows }
func (p UserUnfollowedPayload) SubjectID() int64 { return p.FollowingID }

type UserRegisteredPayload struct {
	User usermodel.User `json:"user"`
}

func (p UserRegisteredPayload) Kind() Kind       { return KindUserRegistered }
func (p UserRegisteredPayload) Topic() string    { return TopicUsers }
func (p UserRegisteredPayload) SubjectID() int64 { return p.User.ID }

// ===== 编解码 =====

// 线格式：payload 字段平铺 + type/eventId/timestamp
type head struct {
	Type      Kind  `json:"type"`
	EventID   int64 `json:"eventId"`
	Timestamp int64 `json:"timestamp"` // 毫秒
}

func (e Event) Encode() (key, value []byte, err error) {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, nil, errors.Wrap(err, "marshal payload")
	}
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, errors.Wrap(err, "flatten payload")
	}
	hb, _ := json.Marshal(head{Type: e.Payload.Kind(), EventID: e.ID, Timestamp: e.Timestamp.UnixMilli()})
	hm := map[string]json.RawMessage{}
	_ = json.Unmarshal(hb, &hm)
	for k, v := range hm {
		m[k] = v
	}
	value, err = json.Marshal(m)
	if err != nil {
		return nil, nil, errors.Wrap(err, "marshal envelope")
	}
	key = []byte(strconv.FormatInt(e.Payload.SubjectID(), 10))
	return key, value, nil
}

func Decode(data []byte) (Event, error) {
	var h head
	if err := json.Unmarshal(data, &h); err != nil {
		return Event{}, errors.Wrap(err, "decode envelope head")
	}
	var p Payload
	switch h.Type {
	case KindTweetCreated:
		p = &TweetCreatedPayload{}
	case KindTweetDeleted:
		p = &TweetDeletedPayload{}
	case KindTweetLiked:
		p = &TweetLikedPayload{}
	case KindTweetUnliked:
		p = &TweetUnlikedPayload{}
	case KindTweetRetweeted:
		p = &TweetRetweetedPayload{}
	case KindTweetUnretweeted:
		p = &TweetUnretweetedPayload{}
	case KindUserFollowed:
		p = &UserFollowedPayload{}
	case KindUserUnfollowed:
		p = &UserUnfollowedPayload{}
	case KindUserRegistered:
		p = &UserRegisteredPayload{}
	default:
		return Event{}, errors.Errorf("unknown event type: %q", h.Type)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return Event{}, errors.Wrapf(err, "decode %s payload", h.Type)
	}
	return Event{
		ID:        h.EventID,
		Timestamp: time.UnixMilli(h.Timestamp).UTC(),
		Payload:   deref(p),
	}, nil
}

// 解码后拆掉指针，调用方 switch 值类型即可
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *TweetCreatedPayload:
		return *v
	case *TweetDeletedPayload:
		return *v
	case *TweetLikedPayload:
		return *v
	case *TweetUnlikedPayload:
		return *v
	case *TweetRetweetedPayload:
		return *v
	case *TweetUnretweetedPayload:
		return *v
	case *UserFollowedPayload:
		return *v
	case *UserUnfollowedPayload:
		return *v
	case *UserRegisteredPayload:
		return *v
	}
	return p
}
