package service

import (
	"context"

	"TStream/logger"
	"TStream/module/event"
	"TStream/service/kafka"
	"TStream/service/storage"
	"TStream/tools/errs"
)

// GraphService 三个开关操作共用一套模式：
// 单事务翻转边 + 调计数，提交后恰好发一条事件。
type GraphService struct {
	store storage.Store
	pub   *kafka.Publisher
}

func NewGraphService(store storage.Store, pub *kafka.Publisher) *GraphService {
	return &GraphService{store: store, pub: pub}
}

func (s *GraphService) ToggleFollow(ctx context.Context, followerID, followingID int64) (storage.ToggleFollowResult, error) {
	if followerID == followingID {
		return storage.ToggleFollowResult{}, errs.ErrInvalidOperation.WithDetail("cannot follow yourself")
	}
	res, err := s.store.ToggleFollow(ctx, followerID, followingID)
	if err != nil {
		return storage.ToggleFollowResult{}, err
	}

	if res.Following {
		s.publish(event.UserFollowedPayload{
			FollowerID: followerID, FollowingID: followingID,
			FollowersCount: res.FollowersCount, FollowingCount: res.FollowingCount,
		})
	} else {
		s.publish(event.UserUnfollowedPayload{
			FollowerID: followerID, FollowingID: followingID,
			FollowersCount: res.FollowersCount, FollowingCount: res.FollowingCount,
		})
	}
	logger.Infof("[graph] follow follower=%d following=%d now=%v", followerID, followingID, res.Following)
	return res, nil
}

func (s *GraphService) ToggleLike(ctx context.Context, userID, tweetID int64) (storage.ToggleLikeResult, error) {
	res, err := s.store.ToggleLike(ctx, userID, tweetID)
	if err != nil {
		return storage.ToggleLikeResult{}, err
	}

	if res.Liked {
		s.publish(event.TweetLikedPayload{TweetID: tweetID, UserID: userID, LikesCount: res.LikesCount})
	} else {
		s.publish(event.TweetUnlikedPayload{TweetID: tweetID, UserID: userID, LikesCount: res.LikesCount})
	}
	return res, nil
}

func (s *GraphService) ToggleRetweet(ctx context.Context, userID, tweetID int64) (storage.ToggleRetweetResult, error) {
	res, err := s.store.ToggleRetweet(ctx, userID, tweetID)
	if err != nil {
		return storage.ToggleRetweetResult{}, err
	}

	// res.TweetID 是计数归属的那条（转推的转推已被重定向）
	if res.Retweeted {
		s.publish(event.TweetRetweetedPayload{TweetID: res.TweetID, UserID: userID, RetweetsCount: res.RetweetsCount})
	} else {
		s.publish(event.TweetUnretweetedPayload{TweetID: res.TweetID, UserID: userID, RetweetsCount: res.RetweetsCount})
	}
	return res, nil
}

func (s *GraphService) publish(p event.Payload) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(event.New(p))
}
