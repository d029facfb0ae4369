package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bidledger/internal/models"
	"bidledger/internal/services/auction"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 12 * time.Second
	pingPeriod = 3 * time.Second // must be < pongWait
)

// SnapshotBody is the first frame a viewer receives.
type SnapshotBody struct {
	AuctionID      string                `json:"auction_id"`
	CurrentHighBid *int64                `json:"current_high_bid"`
	AuctionEnd     time.Time             `json:"auction_end"`
	State          models.LifecycleState `json:"state"`
}

// WsServer streams an auction's cached high bid and its end to viewers.
// Connections are receive-only; bids go through the bidding API.
type WsServer struct {
	hub        *Hub
	subMgr     *subscriptionManager
	auctionSvc auction.IAuctionService
	upgrader   websocket.Upgrader
}

// NewWsServer subscribes to Redis per watched auction when rdc is set;
// without it viewers only get events broadcast on hub in this process.
func NewWsServer(ctx context.Context, h *Hub, rdc *redis.Client, auctionSvc auction.IAuctionService) *WsServer {
	srv := &WsServer{
		hub:        h,
		auctionSvc: auctionSvc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true }, // dev-only
		},
	}
	if rdc != nil {
		srv.subMgr = newSubscriptionManager(ctx, rdc, h)
	}
	return srv
}

// @Summary		Watch an auction
// @Description	Upgrades to a websocket that pushes the auction snapshot, then high_bid and ended events.
// @Tags			Auctions
// @Param			auction_id	query	string	true	"Auction ID"
// @Success		101
// @Failure		400	{object}	ErrorBody
// @Router			/ws [get]
func (s *WsServer) Handle(ginCtx *gin.Context) {
	auctionID := ginCtx.Query("auction_id")
	if auctionID == "" {
		ginCtx.JSON(http.StatusBadRequest, ErrorBody{Error: "auction_id is required"})
		return
	}

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(512)

	wsConn := &clientConn{rawConn: rawConn}
	s.hub.Join(auctionID, wsConn)
	if s.subMgr != nil {
		s.subMgr.Subscribe(auctionID) // may be a no-op (already subscribed)
	}

	if err := s.pushInitialSnapshot(ginCtx.Request.Context(), auctionID, wsConn); err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			zap.L().Warn("ws.snapshot", zap.String("auction_id", auctionID), zap.Error(err))
		}
		_ = wsConn.writeJSON(map[string]any{"event": "error", "body": ErrorBody{Error: err.Error()}})
	}

	done := make(chan struct{})
	go s.reader(auctionID, wsConn, done)
	go s.pinger(wsConn, done)
}

func (s *WsServer) pushInitialSnapshot(ctx context.Context, id string, conn *clientConn) error {
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()

	a, err := s.auctionSvc.GetAuction(ctx, id)
	if err != nil {
		return err
	}
	msg, err := frame(EventSnapshot, SnapshotBody{
		AuctionID:      a.ID,
		CurrentHighBid: a.CurrentHighBid,
		AuctionEnd:     a.AuctionEnd,
		State:          a.State(time.Now()),
	})
	if err != nil {
		return err
	}
	return conn.write(websocket.TextMessage, msg)
}

// reader drains the connection so pongs and close frames are processed.
// Anything the client sends is ignored.
func (s *WsServer) reader(auctionID string, conn *clientConn, done chan struct{}) {
	defer func() {
		close(done)
		s.hub.Leave(auctionID, conn)
		if s.subMgr != nil {
			s.subMgr.Unsubscribe(auctionID)
		}
	}()

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.rawConn.ReadMessage(); err != nil {
			return // client closed or errored
		}
	}
}

func (s *WsServer) pinger(conn *clientConn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				_ = conn.rawConn.Close()
				return
			}
		}
	}
}
