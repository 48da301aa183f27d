package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"TStream/logger"
	"TStream/module/event"
	tweetmodel "TStream/module/tweet/model"
	"TStream/service/kafka"
	"TStream/service/storage"
	"TStream/tools/errs"
	"TStream/tools/ids"
)

// TweetService 内容服务：发推/删推/取流。
// 事件在库事务提交后发出；发不出去只记日志，不回滚写入。
type TweetService struct {
	store storage.Store
	pub   *kafka.Publisher
}

func NewTweetService(store storage.Store, pub *kafka.Publisher) *TweetService {
	return &TweetService{store: store, pub: pub}
}

type CreateParams struct {
	Content       string `json:"content" binding:"required"`
	ParentTweetID *int64 `json:"parentTweetId"`
}

func (s *TweetService) Create(ctx context.Context, authorID int64, in CreateParams) (*tweetmodel.Tweet, error) {
	content := strings.TrimSpace(in.Content)
	// 长度按 code point 算，不是字节
	n := utf8.RuneCountInString(content)
	if n == 0 {
		return nil, errs.ErrValidation.WithDetail("content must not be empty")
	}
	if n > tweetmodel.MaxContentLen {
		return nil, errs.ErrValidation.WithDetail("content exceeds 280 characters")
	}

	t := &tweetmodel.Tweet{
		ID:            ids.Generate(),
		AuthorID:      authorID,
		Content:       content,
		ParentTweetID: in.ParentTweetID,
	}
	if err := s.store.InsertTweet(ctx, t); err != nil {
		return nil, err
	}

	s.publish(event.TweetCreatedPayload{Tweet: *t})
	logger.Infof("[tweet] created id=%d author=%d reply=%v", t.ID, authorID, t.ParentTweetID != nil)
	return t, nil
}

// Delete 只有作者本人可删；级联清掉点赞边和转推行
func (s *TweetService) Delete(ctx context.Context, callerID, tweetID int64) error {
	t, err := s.store.GetTweet(ctx, tweetID)
	if err != nil {
		return err
	}
	if t.AuthorID != callerID {
		return errs.ErrForbidden.WithDetail("only the author can delete a tweet")
	}
	if err := s.store.DeleteTweet(ctx, tweetID); err != nil {
		return err
	}

	s.publish(event.TweetDeletedPayload{TweetID: tweetID, AuthorID: callerID})
	logger.Infof("[tweet] deleted id=%d author=%d", tweetID, callerID)
	return nil
}

// Get viewerID<=0 表示匿名视角，视角标记保持 false
func (s *TweetService) Get(ctx context.Context, viewerID, tweetID int64) (*tweetmodel.Tweet, error) {
	t, err := s.store.GetTweet(ctx, tweetID)
	if err != nil {
		return nil, err
	}
	if err := s.applyFlags(ctx, viewerID, []*tweetmodel.Tweet{t}); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TweetService) PublicFeed(ctx context.Context, viewerID int64, limit, offset int) ([]*tweetmodel.Tweet, error) {
	limit, offset = storage.ClampPage(limit, offset)
	ts, err := s.store.ListPublicFeed(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return ts, s.applyFlags(ctx, viewerID, ts)
}

// PersonalFeed 自己 + 关注对象的原创推；必须登录
func (s *TweetService) PersonalFeed(ctx context.Context, viewerID int64, limit, offset int) ([]*tweetmodel.Tweet, error) {
	limit, offset = storage.ClampPage(limit, offset)
	ts, err := s.store.ListPersonalFeed(ctx, viewerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return ts, s.applyFlags(ctx, viewerID, ts)
}

// UserTweets 含该用户的转推行
func (s *TweetService) UserTweets(ctx context.Context, viewerID, userID int64, limit, offset int) ([]*tweetmodel.Tweet, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	limit, offset = storage.ClampPage(limit, offset)
	ts, err := s.store.ListUserTweets(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return ts, s.applyFlags(ctx, viewerID, ts)
}

func (s *TweetService) applyFlags(ctx context.Context, viewerID int64, ts []*tweetmodel.Tweet) error {
	if viewerID <= 0 || len(ts) == 0 {
		return nil
	}
	return s.store.ApplyViewerFlags(ctx, viewerID, ts)
}

func (s *TweetService) publish(p event.Payload) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(event.New(p))
}
