package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"bidledger/internal/http/auctionhandler"
	"bidledger/internal/http/bidhandler"
	"bidledger/internal/ws"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abrar71/swaggerfilesv2" // swagger embed files
)

// Routes holds the handlers of the roles this process runs. Nil entries
// are not mounted.
type Routes struct {
	Role     string
	Bids     *bidhandler.Handler
	Auctions *auctionhandler.Handler
	Ws       *ws.WsServer
}

type httpServer struct {
	listenPort uint16
	srv        *http.Server
	routes     Routes
	ctx        context.Context
}

// NewHttpServer builds the server up front so Dispose may run before or
// while Start does.
func NewHttpServer(ctx context.Context, listenPort uint16, routes Routes) *httpServer {
	h := &httpServer{
		listenPort: listenPort,
		routes:     routes,
		ctx:        ctx,
	}
	h.srv = &http.Server{
		Handler:           h.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return h
}

// Engine builds the router for the configured routes.
func (h *httpServer) Engine() *gin.Engine {
	routerEngine := gin.New()

	routerEngine.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	// Swagger UI and API specs
	routerEngine.StaticFS("/swagger-apis", http.FS(swaggerfilesv2.FS))

	routerEngine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "role": h.routes.Role})
	})

	if h.routes.Bids != nil {
		h.routes.Bids.Register(routerEngine)
	}
	if h.routes.Auctions != nil {
		h.routes.Auctions.Register(routerEngine)
	}
	if h.routes.Ws != nil {
		routerEngine.GET("/ws", h.routes.Ws.Handle)
	}
	return routerEngine
}

// Start blocks serving until Dispose is called. It returns nil once the
// server was shut down, including when Dispose ran first.
func (h *httpServer) Start() error {
	listenAddr := fmt.Sprintf(":%d", h.listenPort)
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	zap.L().Info("http_listening", zap.String("addr", ln.Addr().String()), zap.String("role", h.routes.Role))

	if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Dispose gracefully shuts the HTTP server down.
// It waits up to 10 s for in-flight requests to finish.
func (h *httpServer) Dispose() error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), 10*time.Second)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		zap.L().Error("http_dispose", zap.Error(err))
		return err // e.g. active conns didn't finish in time
	}
	return nil
}
