package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 12 * time.Second
	pingPeriod   = 3 * time.Second // must be < pongWait
	maxFrameSize = 4096
)

// TokenVerifier turns a raw token into a validated user id. A failure means
// the handshake is refused before any connection state exists.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type WsServer struct {
	coord    *Coordinator
	router   *Router
	verifier TokenVerifier
	upgrader websocket.Upgrader
}

func NewWsServer(coord *Coordinator, verifier TokenVerifier) *WsServer {
	srv := &WsServer{
		coord:    coord,
		router:   NewRouter(),
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true }, // dev-only
		},
	}
	srv.registerHandlers() // ← all WS endpoints configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	token := bearerToken(ginCtx)
	if token == "" {
		ginCtx.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
		return
	}

	userID, err := s.verifier.Verify(ginCtx.Request.Context(), token)
	if err != nil {
		ginCtx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(maxFrameSize)

	// ─────────────────── Client joined ────────────────────────
	wsConn := &clientConn{id: uuid.NewString(), userID: userID, rawConn: rawConn}
	s.coord.Connect(wsConn)
	zap.L().Info("ws.connected", zap.String("connID", wsConn.id), zap.String("userId", userID))

	go s.reader(wsConn)
	go s.pinger(wsConn)
}

func bearerToken(ginCtx *gin.Context) string {
	if t := ginCtx.Query("token"); t != "" {
		return t
	}
	h := ginCtx.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return after
	}
	return ""
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	Register(s.router, EvJoinWatchlist,
		func(_ context.Context, cc *ConnContext, req JoinWatchlistRequest) error {
			s.coord.JoinWatchlist(cc.Conn, req.WatchlistID)
			return nil
		})
	Register(s.router, EvLeaveWatchlist,
		func(_ context.Context, cc *ConnContext, req LeaveWatchlistRequest) error {
			s.coord.LeaveWatchlist(cc.Conn, req.WatchlistID)
			return nil
		})
	Register(s.router, EvJoinAnalytics,
		func(_ context.Context, cc *ConnContext, _ struct{}) error {
			s.coord.JoinAnalytics(cc.Conn)
			return nil
		})
	Register(s.router, EvLeaveAnalytics,
		func(_ context.Context, cc *ConnContext, _ struct{}) error {
			s.coord.LeaveAnalytics(cc.Conn)
			return nil
		})
	Register(s.router, EvJoinWarRoom,
		func(_ context.Context, cc *ConnContext, req JoinWarRoomRequest) error {
			s.coord.JoinWarRoom(cc.Conn, req.IncidentID)
			return nil
		})
	Register(s.router, EvLeaveWarRoom,
		func(_ context.Context, cc *ConnContext, req LeaveWarRoomRequest) error {
			s.coord.LeaveWarRoom(cc.Conn, req.IncidentID)
			return nil
		})
	Register(s.router, EvCursorMove,
		func(_ context.Context, cc *ConnContext, req CursorMoveRequest) error {
			return s.coord.CursorMove(cc.Conn, req)
		})
	Register(s.router, EvCameraMove,
		func(_ context.Context, cc *ConnContext, req CameraMoveRequest) error {
			return s.coord.CameraMove(cc.Conn, req)
		})
	Register(s.router, EvCreatePin,
		func(_ context.Context, cc *ConnContext, req CreatePinRequest) error {
			return s.coord.CreatePin(cc.Conn, req)
		})
	Register(s.router, EvRemovePin,
		func(_ context.Context, cc *ConnContext, req RemovePinRequest) error {
			return s.coord.RemovePin(cc.Conn, req)
		})
	Register(s.router, EvStatusUpdate,
		func(_ context.Context, cc *ConnContext, req StatusUpdateRequest) error {
			return s.coord.StatusUpdate(cc.Conn, req)
		})
}

func (s *WsServer) reader(conn *clientConn) {
	defer func() {
		s.coord.Disconnect(conn.id)
		_ = conn.rawConn.Close()
	}()

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	cc := &ConnContext{Conn: conn}

	for {
		_, data, err := conn.rawConn.ReadMessage()
		if err != nil {
			return // client closed or errored
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = conn.writeJSON(Envelope{Event: "error", Body: marshalBody(ErrorBody{Error: "malformed_frame"})})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1900*time.Millisecond)
		err = s.router.dispatch(ctx, cc, env)
		cancel()

		switch {
		case err == nil:
		case errors.Is(err, errNoWarRoom):
			// Stale war-room event after a leave. Tolerated, not surfaced.
			zap.L().Debug("ws.dropped_event",
				zap.String("event", env.Event), zap.String("connID", conn.id))
		default:
			_ = conn.writeJSON(Envelope{Event: "error", Body: marshalBody(ErrorBody{Error: err.Error()})})
		}
	}
}

func (s *WsServer) pinger(conn *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.write(websocket.PingMessage, nil); err != nil {
			_ = conn.rawConn.Close()
			return
		}
	}
}
