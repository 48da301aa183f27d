package feed

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// Registry 会话注册表：user -> 在线连接集合，外加一个公共房间。
// 投递永不阻塞：每连接独立有界队列，满了挤掉最老一条并计数。

const RoomGlobalFeed = "global_feed"

func UserRoom(userID int64) string { return "user_" + strconv.FormatInt(userID, 10) }

type Conn struct {
	ID     string
	userID atomic.Int64

	send    chan []byte
	closed  chan struct{}
	dropped atomic.Int64
}

// Outbound 写协程消费的下行队列
func (c *Conn) Outbound() <-chan []byte { return c.send }

// Closed 注册表摘除连接后关闭
func (c *Conn) Closed() <-chan struct{} { return c.closed }

func (c *Conn) UserID() int64  { return c.userID.Load() }
func (c *Conn) Dropped() int64 { return c.dropped.Load() }

// push 非阻塞入队；队列满先挤掉最老的一条（绝不反压路由器）
func (c *Conn) push(payload []byte, total *atomic.Int64) {
	for {
		select {
		case <-c.closed:
			return
		default:
		}
		select {
		case c.send <- payload:
			return
		default:
		}
		select {
		case <-c.send:
			c.dropped.Add(1)
			total.Add(1)
		default:
		}
	}
}

type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn            // conn_id -> conn
	rooms map[string]map[string]*Conn // room -> conn_id -> conn

	queueSize int
	dropped   atomic.Int64
}

func NewRegistry(queueSize int) *Registry {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Registry{
		conns:     make(map[string]*Conn),
		rooms:     make(map[string]map[string]*Conn),
		queueSize: queueSize,
	}
}

// Add 登记新连接（未授权态）
func (r *Registry) Add(connID string) *Conn {
	c := &Conn{
		ID:     connID,
		send:   make(chan []byte, r.queueSize),
		closed: make(chan struct{}),
	}
	r.mu.Lock()
	r.conns[connID] = c
	r.mu.Unlock()
	return c
}

// Join 幂等加入房间
func (r *Registry) Join(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return
	}
	m := r.rooms[room]
	if m == nil {
		m = make(map[string]*Conn)
		r.rooms[room] = m
	}
	m[connID] = c
}

// Leave 幂等退出房间
func (r *Registry) Leave(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m := r.rooms[room]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(r.rooms, room)
		}
	}
}

// BindUser 授权成功后绑定用户并加入 user_<id> 房间。
// 换身份重新授权时先退掉旧身份的房间，定向帧不能串人。
func (r *Registry) BindUser(connID string, userID int64) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	r.mu.Unlock()
	if !ok {
		return
	}
	old := c.userID.Swap(userID)
	if old > 0 && old != userID {
		r.Leave(connID, UserRoom(old))
	}
	r.Join(connID, UserRoom(userID))
}

// Remove 传输断开的唯一收口：从所有房间摘除并唤醒写协程退出。
// 在途投递直接作废，不重试。
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
		for room, m := range r.rooms {
			delete(m, connID)
			if len(m) == 0 {
				delete(r.rooms, room)
			}
		}
	}
	r.mu.Unlock()
	if ok {
		close(c.closed)
	}
}

// Deliver 尽力投递到房间内所有连接；慢连接只影响自己
func (r *Registry) Deliver(room string, payload []byte) {
	r.mu.RLock()
	m := r.rooms[room]
	conns := make([]*Conn, 0, len(m))
	for _, c := range m {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.push(payload, &r.dropped)
	}
}

func (r *Registry) DeliverUser(userID int64, payload []byte) {
	r.Deliver(UserRoom(userID), payload)
}

// Send 定向投递单条连接（控制帧应答用）
func (r *Registry) Send(connID string, payload []byte) {
	r.mu.RLock()
	c, ok := r.conns[connID]
	r.mu.RUnlock()
	if ok {
		c.push(payload, &r.dropped)
	}
}

// Dropped 全局丢弃计数（背压观测）
func (r *Registry) Dropped() int64 { return r.dropped.Load() }

// RoomSize 测试/统计用
func (r *Registry) RoomSize(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
