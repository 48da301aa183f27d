package feed

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TStream/module/event"
	tweetmodel "TStream/module/tweet/model"
	usermodel "TStream/module/user/model"
	"TStream/service/storage"
	"TStream/tools/ids"
)

func routerFixture(t *testing.T) (*Router, *Registry, *storage.MemoryStore) {
	t.Helper()
	reg := NewRegistry(16)
	store := storage.NewMemoryStore()
	return NewRouter(reg, store), reg, store
}

func frameType(t *testing.T, payload []byte) string {
	t.Helper()
	var f struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(payload, &f))
	return f.Type
}

func TestTweetCreatedAudience(t *testing.T) {
	router, reg, store := routerFixture(t)
	ctx := context.Background()

	author := &usermodel.User{ID: ids.Generate(), Handle: "author", Active: true}
	fan := &usermodel.User{ID: ids.Generate(), Handle: "fan", Active: true}
	stranger := &usermodel.User{ID: ids.Generate(), Handle: "stranger", Active: true}
	require.NoError(t, store.CreateUser(ctx, author))
	require.NoError(t, store.CreateUser(ctx, fan))
	require.NoError(t, store.CreateUser(ctx, stranger))
	_, err := store.ToggleFollow(ctx, fan.ID, author.ID)
	require.NoError(t, err)

	global := reg.Add("global")
	reg.Join(global.ID, RoomGlobalFeed)
	fanConn := reg.Add("fan")
	reg.BindUser(fanConn.ID, fan.ID)
	strangerConn := reg.Add("stranger")
	reg.BindUser(strangerConn.ID, stranger.ID)

	router.Dispatch(event.New(event.TweetCreatedPayload{
		Tweet: tweetmodel.Tweet{ID: ids.Generate(), AuthorID: author.ID, Content: "hi"},
	}))

	g := drain(global)
	require.Len(t, g, 1)
	assert.Equal(t, PushNewTweet, frameType(t, g[0]))

	f := drain(fanConn)
	require.Len(t, f, 1)
	assert.Equal(t, PushFollowerTweet, frameType(t, f[0]))

	assert.Empty(t, drain(strangerConn))
}

func TestCounterEventsGoToGlobalFeed(t *testing.T) {
	router, reg, _ := routerFixture(t)
	global := reg.Add("global")
	reg.Join(global.ID, RoomGlobalFeed)

	router.Dispatch(event.New(event.TweetLikedPayload{TweetID: 42, UserID: 1, LikesCount: 3}))
	router.Dispatch(event.New(event.TweetUnretweetedPayload{TweetID: 42, UserID: 1, RetweetsCount: 0}))

	got := drain(global)
	require.Len(t, got, 2)
	var f TweetUpdatedFrame
	require.NoError(t, json.Unmarshal(got[0], &f))
	assert.Equal(t, PushTweetUpdated, f.Type)
	assert.Equal(t, "like", f.Kind)
	require.NotNil(t, f.LikesCount)
	assert.Equal(t, int64(3), *f.LikesCount)
	assert.Nil(t, f.RetweetsCount)
}

func TestFollowEventTargetsBothSides(t *testing.T) {
	router, reg, _ := routerFixture(t)
	follower := reg.Add("follower")
	reg.BindUser(follower.ID, 1)
	followed := reg.Add("followed")
	reg.BindUser(followed.ID, 2)

	router.Dispatch(event.New(event.UserFollowedPayload{
		FollowerID: 1, FollowingID: 2, FollowersCount: 5, FollowingCount: 9,
	}))

	fr := drain(follower)
	require.Len(t, fr, 1)
	assert.Equal(t, PushFollowingUpdate, frameType(t, fr[0]))

	fd := drain(followed)
	require.Len(t, fd, 1)
	assert.Equal(t, PushFollowerUpdate, frameType(t, fd[0]))
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	router, reg, _ := routerFixture(t)
	global := reg.Add("global")
	reg.Join(global.ID, RoomGlobalFeed)

	ev := event.New(event.TweetLikedPayload{TweetID: 7, UserID: 1, LikesCount: 4})
	_, value, err := ev.Encode()
	require.NoError(t, err)

	// 至少一次消费：同一条消息来两遍，终态载荷一致
	require.NoError(t, router.HandleMessage(event.TopicLikes, nil, value))
	require.NoError(t, router.HandleMessage(event.TopicLikes, nil, value))

	got := drain(global)
	require.Len(t, got, 2)
	assert.Equal(t, string(got[0]), string(got[1]))
}

func TestUndecodableMessageIsSwallowed(t *testing.T) {
	router, _, _ := routerFixture(t)
	// 毒丸不返回错误，避免卡住分区
	assert.NoError(t, router.HandleMessage(event.TopicTweets, nil, []byte("{not json")))
	assert.NoError(t, router.HandleMessage(event.TopicTweets, nil, []byte(`{"type":"mystery"}`)))
}
