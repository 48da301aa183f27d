package feed

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"TStream/logger"
	"TStream/service/storage"
	"TStream/tools/security"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	readDeadline  = 60 * time.Second
	writeDeadline = 5 * time.Second
	pingEvery     = 30 * time.Second
	presenceTTL   = 90 * time.Second
)

// presenceStore 在线状态落点；redis 实现可为 nil-client（降级为 no-op）
type presenceStore interface {
	Online(ctx context.Context, userID int64, gatewayID string, ttl time.Duration) error
	Offline(ctx context.Context, userID int64) error
}

type redisPresence struct {
	rdb *redis.Client
}

func (p redisPresence) Online(ctx context.Context, userID int64, gatewayID string, ttl time.Duration) error {
	return storage.PresenceOnline(ctx, p.rdb, userID, gatewayID, ttl)
}

func (p redisPresence) Offline(ctx context.Context, userID int64) error {
	return storage.PresenceOffline(ctx, p.rdb, userID)
}

// Gateway 实时通道入口：升级连接、收控制帧、下行写泵。
type Gateway struct {
	registry *Registry
	jwtOpts  security.Options
	presence presenceStore
	gwID     string
}

func NewGateway(registry *Registry, jwtOpts security.Options, rdb *redis.Client) *Gateway {
	return &Gateway{
		registry: registry,
		jwtOpts:  jwtOpts,
		presence: redisPresence{rdb: rdb},
		gwID:     "gw-" + uuid.NewString()[:8],
	}
}

// touchPresence 在线状态续期；TTL 必须盖过 ping 周期，socket 活着键就不掉
func (g *Gateway) touchPresence(userID int64) {
	if userID <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.presence.Online(ctx, userID, g.gwID, presenceTTL); err != nil {
		logger.Warnf("[ws] presence refresh user=%d: %v", userID, err)
	}
}

func (g *Gateway) Registry() *Registry { return g.registry }

// HandleWS GET /ws
func (g *Gateway) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade error: %v", err)
		return
	}

	conn := g.registry.Add(uuid.NewString())
	// 公共频道默认加入，leave_feed 可退订
	g.registry.Join(conn.ID, RoomGlobalFeed)
	logger.Infof("[ws] connected conn=%s remote=%s", conn.ID, ws.RemoteAddr())

	done := make(chan struct{})
	go g.writePump(ws, conn, done)

	g.readLoop(ws, conn)

	// ---- 退出阶段：注册表是移除连接的唯一路径 ----
	uid := conn.UserID()
	g.registry.Remove(conn.ID)
	if uid > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = g.presence.Offline(ctx, uid)
		cancel()
	}
	<-done // 等写协程真正关闭 ws
}

func (g *Gateway) readLoop(ws *websocket.Conn, conn *Conn) {
	ws.SetReadLimit(1 << 20) // 1MB
	_ = ws.SetReadDeadline(time.Now().Add(readDeadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn=%s", conn.ID)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout conn=%s", conn.ID)
			} else {
				logger.Infof("[ws] read err conn=%s err=%v", conn.ID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var frame ControlFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			g.registry.Send(conn.ID, mustJSON(ErrorFrame{Type: FrameError, Error: "malformed frame"}))
			continue
		}
		g.handleControl(conn, frame)
	}
}

func (g *Gateway) handleControl(conn *Conn, frame ControlFrame) {
	switch frame.Type {
	case FrameAuthenticate:
		uid, err := security.Verify(g.jwtOpts, frame.Token)
		if err != nil {
			g.registry.Send(conn.ID, mustJSON(AuthenticatedFrame{
				Type: FrameAuthenticated, Success: false, Error: "invalid token",
			}))
			return
		}
		g.registry.BindUser(conn.ID, uid)
		g.touchPresence(uid)
		g.registry.Send(conn.ID, mustJSON(AuthenticatedFrame{
			Type: FrameAuthenticated, Success: true, UserID: uid,
		}))
		logger.Infof("[ws] authenticated conn=%s user=%d", conn.ID, uid)
	case FrameJoinFeed:
		g.registry.Join(conn.ID, RoomGlobalFeed)
	case FrameLeaveFeed:
		g.registry.Leave(conn.ID, RoomGlobalFeed)
	default:
		g.registry.Send(conn.ID, mustJSON(ErrorFrame{Type: FrameError, Error: "unknown frame type: " + frame.Type}))
	}
}

func (g *Gateway) writePump(ws *websocket.Conn, conn *Conn, done chan struct{}) {
	t := time.NewTicker(pingEvery)
	defer func() {
		t.Stop()
		_ = ws.Close()
		close(done)
	}()

	for {
		select {
		case payload := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Infof("[ws] write err conn=%s err=%v", conn.ID, err)
				return
			}
		case <-t.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeDeadline)); err != nil {
				return
			}
			// ping 周期顺带续 presence TTL，长连接不掉线
			g.touchPresence(conn.UserID())
		case <-conn.Closed():
			return
		}
	}
}
