package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(c *Conn) [][]byte {
	var out [][]byte
	for {
		select {
		case p := <-c.Outbound():
			out = append(out, p)
		default:
			return out
		}
	}
}

func TestJoinLeaveIdempotent(t *testing.T) {
	r := NewRegistry(8)
	c := r.Add("c1")

	r.Join(c.ID, RoomGlobalFeed)
	r.Join(c.ID, RoomGlobalFeed)
	assert.Equal(t, 1, r.RoomSize(RoomGlobalFeed))

	r.Leave(c.ID, RoomGlobalFeed)
	r.Leave(c.ID, RoomGlobalFeed)
	assert.Equal(t, 0, r.RoomSize(RoomGlobalFeed))

	// 不在房间的连接退出也无事发生
	r.Leave("ghost", RoomGlobalFeed)
}

func TestDeliverRoomOnly(t *testing.T) {
	r := NewRegistry(8)
	in := r.Add("in")
	out := r.Add("out")
	r.Join(in.ID, RoomGlobalFeed)

	r.Deliver(RoomGlobalFeed, []byte("hello"))

	require.Len(t, drain(in), 1)
	assert.Empty(t, drain(out))
}

func TestBindUserTargetedDelivery(t *testing.T) {
	r := NewRegistry(8)
	c1 := r.Add("c1")
	c2 := r.Add("c2")
	r.BindUser(c1.ID, 7)
	r.BindUser(c2.ID, 7) // 同一用户两个标签页

	other := r.Add("c3")
	r.BindUser(other.ID, 8)

	r.DeliverUser(7, []byte("ping"))
	assert.Len(t, drain(c1), 1)
	assert.Len(t, drain(c2), 1)
	assert.Empty(t, drain(other))
	assert.Equal(t, int64(7), c1.UserID())
}

func TestDropOldestWhenFull(t *testing.T) {
	r := NewRegistry(2)
	c := r.Add("slow")
	r.Join(c.ID, RoomGlobalFeed)

	r.Deliver(RoomGlobalFeed, []byte("a"))
	r.Deliver(RoomGlobalFeed, []byte("b"))
	r.Deliver(RoomGlobalFeed, []byte("c")) // 挤掉 a

	got := drain(c)
	require.Len(t, got, 2)
	assert.Equal(t, "b", string(got[0]))
	assert.Equal(t, "c", string(got[1]))
	assert.Equal(t, int64(1), c.Dropped())
	assert.Equal(t, int64(1), r.Dropped())
}

func TestRebindLeavesOldUserRoom(t *testing.T) {
	r := NewRegistry(8)
	c := r.Add("c1")
	r.BindUser(c.ID, 7)
	require.Equal(t, 1, r.RoomSize(UserRoom(7)))

	// 同一连接换身份：旧身份的定向帧不能再进来
	r.BindUser(c.ID, 8)
	assert.Equal(t, 0, r.RoomSize(UserRoom(7)))
	assert.Equal(t, 1, r.RoomSize(UserRoom(8)))
	assert.Equal(t, int64(8), c.UserID())

	r.DeliverUser(7, []byte("stale"))
	assert.Empty(t, drain(c))
	r.DeliverUser(8, []byte("fresh"))
	assert.Len(t, drain(c), 1)

	// 同身份重复授权是幂等的
	r.BindUser(c.ID, 8)
	assert.Equal(t, 1, r.RoomSize(UserRoom(8)))
}

func TestRemoveCleansAllRooms(t *testing.T) {
	r := NewRegistry(8)
	c := r.Add("c1")
	r.Join(c.ID, RoomGlobalFeed)
	r.BindUser(c.ID, 9)
	require.Equal(t, 1, r.ConnCount())

	r.Remove(c.ID)
	assert.Equal(t, 0, r.ConnCount())
	assert.Equal(t, 0, r.RoomSize(RoomGlobalFeed))
	assert.Equal(t, 0, r.RoomSize(UserRoom(9)))

	select {
	case <-c.Closed():
	default:
		t.Fatal("closed channel should be closed after Remove")
	}

	// 移除后的投递直接作废，不 panic
	r.Deliver(RoomGlobalFeed, []byte("late"))
	r.Send(c.ID, []byte("late"))
}
