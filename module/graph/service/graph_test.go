package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TStream/module/event"
	tweetmodel "TStream/module/tweet/model"
	usermodel "TStream/module/user/model"
	"TStream/service/kafka"
	"TStream/service/storage"
	"TStream/tools/errs"
	"TStream/tools/ids"
)

// recorder 回环收集所有发出的事件；Close 排空后再断言
type recorder struct {
	reg *kafka.HandlerRegistry
	got []event.Event
}

func newRecorder(t *testing.T) *recorder {
	t.Helper()
	c := &recorder{reg: kafka.NewHandlerRegistry()}
	c.reg.RegisterAll(event.Topics(), func(_ string, _ []byte, value []byte) error {
		ev, err := event.Decode(value)
		require.NoError(t, err)
		c.got = append(c.got, ev)
		return nil
	})
	return c
}

func setup(t *testing.T) (*GraphService, *storage.MemoryStore, *kafka.Publisher, *recorder) {
	t.Helper()
	store := storage.NewMemoryStore()
	rec := newRecorder(t)
	pub := kafka.NewPublisher(&kafka.LoopbackSink{Registry: rec.reg}, 64)
	return NewGraphService(store, pub), store, pub, rec
}

func addUser(t *testing.T, s *storage.MemoryStore, handle string) *usermodel.User {
	t.Helper()
	u := &usermodel.User{ID: ids.Generate(), Handle: handle, DisplayName: handle, Active: true}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func addTweet(t *testing.T, s *storage.MemoryStore, author int64) *tweetmodel.Tweet {
	t.Helper()
	tw := &tweetmodel.Tweet{ID: ids.Generate(), AuthorID: author, Content: "x"}
	require.NoError(t, s.InsertTweet(context.Background(), tw))
	return tw
}

func TestToggleFollowSelf(t *testing.T) {
	svc, store, pub, rec := setup(t)
	a := addUser(t, store, "alice")

	_, err := svc.ToggleFollow(context.Background(), a.ID, a.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidOperation)

	pub.Close()
	assert.Empty(t, rec.got) // 失败操作不发事件
}

func TestToggleFollowEmitsOneEventPerToggle(t *testing.T) {
	svc, store, pub, rec := setup(t)
	ctx := context.Background()
	a := addUser(t, store, "alice")
	b := addUser(t, store, "bob")

	res, err := svc.ToggleFollow(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, res.Following)

	res, err = svc.ToggleFollow(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, res.Following)

	pub.Close()
	require.Len(t, rec.got, 2)
	on, ok := rec.got[0].Payload.(event.UserFollowedPayload)
	require.True(t, ok)
	assert.Equal(t, a.ID, on.FollowerID)
	assert.Equal(t, b.ID, on.FollowingID)
	assert.Equal(t, int64(1), on.FollowersCount)

	off, ok := rec.got[1].Payload.(event.UserUnfollowedPayload)
	require.True(t, ok)
	assert.Equal(t, int64(0), off.FollowersCount)
}

func TestToggleLikeEvents(t *testing.T) {
	svc, store, pub, rec := setup(t)
	ctx := context.Background()
	a := addUser(t, store, "alice")
	tw := addTweet(t, store, a.ID)

	res, err := svc.ToggleLike(ctx, a.ID, tw.ID)
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, int64(1), res.LikesCount)

	_, err = svc.ToggleLike(ctx, a.ID, 404404)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	pub.Close()
	require.Len(t, rec.got, 1)
	p, ok := rec.got[0].Payload.(event.TweetLikedPayload)
	require.True(t, ok)
	assert.Equal(t, tw.ID, p.TweetID)
	assert.Equal(t, int64(1), p.LikesCount)
}

func TestToggleRetweetEventCarriesOriginalID(t *testing.T) {
	svc, store, pub, rec := setup(t)
	ctx := context.Background()
	a := addUser(t, store, "alice")
	b := addUser(t, store, "bob")
	c := addUser(t, store, "carol")
	orig := addTweet(t, store, a.ID)

	first, err := svc.ToggleRetweet(ctx, b.ID, orig.ID)
	require.NoError(t, err)
	require.True(t, first.Retweeted)

	// carol 转推 bob 的转推行：事件主体必须是最初那条
	_, err = svc.ToggleRetweet(ctx, c.ID, first.RetweetID)
	require.NoError(t, err)

	pub.Close()
	require.Len(t, rec.got, 2)
	p2, ok := rec.got[1].Payload.(event.TweetRetweetedPayload)
	require.True(t, ok)
	assert.Equal(t, orig.ID, p2.TweetID)
	assert.Equal(t, int64(2), p2.RetweetsCount)
}
