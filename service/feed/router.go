package feed

import (
	"context"
	"time"

	"TStream/logger"
	"TStream/module/event"
	"TStream/service/storage"
)

// Router 扇出路由：消费事件日志，按事件类型计算受众并投递到注册表。
// 至少一次消费：payload 带权威计数，重放同一事件终态不变。
type Router struct {
	registry *Registry
	store    storage.Store
}

func NewRouter(registry *Registry, store storage.Store) *Router {
	return &Router{registry: registry, store: store}
}

// HandleMessage 实现 kafka.MessageHandler 签名
func (r *Router) HandleMessage(topic string, _ []byte, value []byte) error {
	ev, err := event.Decode(value)
	if err != nil {
		// 毒丸消息丢弃，不卡分区
		logger.Errorf("[router] undecodable message on %s: %v", topic, err)
		return nil
	}
	r.Dispatch(ev)
	return nil
}

// Dispatch 对事件类型穷举匹配
func (r *Router) Dispatch(ev event.Event) {
	switch p := ev.Payload.(type) {
	case event.TweetCreatedPayload:
		r.onTweetCreated(p)
	case event.TweetDeletedPayload:
		r.registry.Deliver(RoomGlobalFeed, mustJSON(TweetDeletedFrame{Type: PushTweetDeleted, TweetID: p.TweetID}))
	case event.TweetLikedPayload:
		r.deliverCounter(p.TweetID, "like", &p.LikesCount, nil)
	case event.TweetUnlikedPayload:
		r.deliverCounter(p.TweetID, "like", &p.LikesCount, nil)
	case event.TweetRetweetedPayload:
		r.deliverCounter(p.TweetID, "retweet", nil, &p.RetweetsCount)
	case event.TweetUnretweetedPayload:
		r.deliverCounter(p.TweetID, "retweet", nil, &p.RetweetsCount)
	case event.UserFollowedPayload:
		r.onFollowChanged(p.FollowerID, p.FollowingID, p.FollowersCount, p.FollowingCount)
	case event.UserUnfollowedPayload:
		r.onFollowChanged(p.FollowerID, p.FollowingID, p.FollowersCount, p.FollowingCount)
	case event.UserRegisteredPayload:
		r.registry.Deliver(RoomGlobalFeed, mustJSON(NewUserFrame{Type: PushNewUser, User: p.User}))
	default:
		logger.Warnf("[router] unhandled event type=%s id=%d", ev.Payload.Kind(), ev.ID)
	}
}

// 新推文：公共房间广播 + 逐个投递作者当前粉丝（投递时实时查边，不回放历史）
func (r *Router) onTweetCreated(p event.TweetCreatedPayload) {
	r.registry.Deliver(RoomGlobalFeed, mustJSON(TweetFrame{Type: PushNewTweet, Tweet: p.Tweet}))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	followers, err := r.store.FollowerIDs(ctx, p.Tweet.AuthorID)
	if err != nil {
		logger.Errorf("[router] follower lookup author=%d: %v", p.Tweet.AuthorID, err)
		return
	}
	payload := mustJSON(TweetFrame{Type: PushFollowerTweet, Tweet: p.Tweet})
	for _, fid := range followers {
		r.registry.DeliverUser(fid, payload)
	}
}

// 计数变更：只广播更新后的计数，不复制内容
func (r *Router) deliverCounter(tweetID int64, kind string, likes, retweets *int64) {
	r.registry.Deliver(RoomGlobalFeed, mustJSON(TweetUpdatedFrame{
		Type:          PushTweetUpdated,
		TweetID:       tweetID,
		Kind:          kind,
		LikesCount:    likes,
		RetweetsCount: retweets,
	}))
}

// 关注变更：两端各自收到自己的计数快照
func (r *Router) onFollowChanged(followerID, followingID, followersCount, followingCount int64) {
	r.registry.DeliverUser(followingID, mustJSON(FollowerUpdateFrame{
		Type:           PushFollowerUpdate,
		UserID:         followingID,
		FollowersCount: followersCount,
	}))
	r.registry.DeliverUser(followerID, mustJSON(FollowingUpdateFrame{
		Type:           PushFollowingUpdate,
		UserID:         followerID,
		FollowingCount: followingCount,
	}))
}
