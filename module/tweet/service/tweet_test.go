package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TStream/module/event"
	usermodel "TStream/module/user/model"
	"TStream/service/kafka"
	"TStream/service/storage"
	"TStream/tools/errs"
	"TStream/tools/ids"
)

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

func setup(t *testing.T) (*TweetService, *storage.MemoryStore, *kafka.Publisher, *recorder) {
	t.Helper()
	store := storage.NewMemoryStore()
	rec := newRecorder(t)
	pub := kafka.NewPublisher(&kafka.LoopbackSink{Registry: rec.reg}, 64)
	return NewTweetService(store, pub), store, pub, rec
}

func addUser(t *testing.T, s *storage.MemoryStore, handle string) *usermodel.User {
	t.Helper()
	u := &usermodel.User{ID: ids.Generate(), Handle: handle, DisplayName: handle, Active: true}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestCreateValidation(t *testing.T) {
	svc, store, pub, _ := setup(t)
	defer pub.Close()
	a := addUser(t, store, "alice")
	ctx := context.Background()

	cases := []struct {
		name    string
		content string
		wantErr error
	}{
		{"empty", "", errs.ErrValidation},
		{"whitespace only", "   \n\t ", errs.ErrValidation},
		{"too long", strings.Repeat("x", 281), errs.ErrValidation},
		{"max length ok", strings.Repeat("x", 280), nil},
		{"multibyte counts runes", strings.Repeat("汉", 280), nil},
		{"multibyte too long", strings.Repeat("汉", 281), errs.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, a.ID, CreateParams{Content: tc.content})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateEmitsTweetCreated(t *testing.T) {
	svc, store, pub, rec := setup(t)
	a := addUser(t, store, "alice")

	tw, err := svc.Create(context.Background(), a.ID, CreateParams{Content: "  hello  "})
	require.NoError(t, err)
	assert.Equal(t, "hello", tw.Content) // 首尾空白剔除
	assert.NotZero(t, tw.ID)
	assert.False(t, tw.CreatedAt.IsZero())

	pub.Close()
	require.Len(t, rec.got, 1)
	p, ok := rec.got[0].Payload.(event.TweetCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, tw.ID, p.Tweet.ID)
}

func TestDeleteOwnerOnly(t *testing.T) {
	svc, store, pub, rec := setup(t)
	ctx := context.Background()
	a := addUser(t, store, "alice")
	b := addUser(t, store, "bob")

	tw, err := svc.Create(ctx, a.ID, CreateParams{Content: "mine"})
	require.NoError(t, err)

	err = svc.Delete(ctx, b.ID, tw.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	require.NoError(t, svc.Delete(ctx, a.ID, tw.ID))
	_, err = svc.Get(ctx, 0, tw.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	pub.Close()
	require.Len(t, rec.got, 2) // created + deleted，被拒的删除不发
	_, ok := rec.got[1].Payload.(event.TweetDeletedPayload)
	assert.True(t, ok)
}

func TestPersonalFeedMembership(t *testing.T) {
	svc, store, pub, _ := setup(t)
	defer pub.Close()
	ctx := context.Background()
	a := addUser(t, store, "alice")
	b := addUser(t, store, "bob")
	c := addUser(t, store, "carol")

	_, err := store.ToggleFollow(ctx, a.ID, b.ID)
	require.NoError(t, err)

	_, err = svc.Create(ctx, a.ID, CreateParams{Content: "from a"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, b.ID, CreateParams{Content: "from b"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, c.ID, CreateParams{Content: "from c"})
	require.NoError(t, err)

	feed, err := svc.PersonalFeed(ctx, a.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, feed, 2) // 自己 + b；c 不在
	for _, tw := range feed {
		assert.NotEqual(t, c.ID, tw.AuthorID)
	}
}

func TestGetAppliesViewerFlags(t *testing.T) {
	svc, store, pub, _ := setup(t)
	defer pub.Close()
	ctx := context.Background()
	a := addUser(t, store, "alice")
	b := addUser(t, store, "bob")

	tw, err := svc.Create(ctx, a.ID, CreateParams{Content: "flag me"})
	require.NoError(t, err)
	_, err = store.ToggleLike(ctx, b.ID, tw.ID)
	require.NoError(t, err)

	seenByB, err := svc.Get(ctx, b.ID, tw.ID)
	require.NoError(t, err)
	assert.True(t, seenByB.IsLiked)

	anon, err := svc.Get(ctx, 0, tw.ID)
	require.NoError(t, err)
	assert.False(t, anon.IsLiked)
}

func TestUserTweetsUnknownUser(t *testing.T) {
	svc, _, pub, _ := setup(t)
	defer pub.Close()
	_, err := svc.UserTweets(context.Background(), 0, 12345, 10, 0)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
