package bidhandler

import (
	"context"
	"net/http"

	"bidledger/internal/http/middleware"
	"bidledger/internal/models"
	"bidledger/internal/services/bidding"

	"github.com/gin-gonic/gin"
)

// Reconciler is the part of bidding.Reconciler exposed to operators.
type Reconciler interface {
	Sweep(ctx context.Context) (bidding.Republished, error)
	ReconcileAuction(ctx context.Context, auctionID string) (leader *models.Bid, duplicate bool, err error)
}

type Handler struct {
	svc       bidding.IBiddingService
	reconcile Reconciler
}

func New(svc bidding.IBiddingService, reconcile Reconciler) *Handler {
	return &Handler{svc: svc, reconcile: reconcile}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/api/bids", middleware.RequireUser(), h.place)
	r.GET("/api/bids/:auctionId", h.list)
	if h.reconcile != nil {
		r.POST("/api/admin/reconcile", h.reconcileNow)
	}
}

// @Summary		Place a bid
// @Description	Records the bid with its disposition. Accepted bids are published to the auction service.
// @Tags			Bids
// @Param			X-User	header		string			true	"Bidder"
// @Param			body	body		PlaceBidBody	true	"Bid payload"
// @Success		200		{object}	models.Bid
// @Failure		400		{object}	middleware.ErrorResponse
// @Failure		404		{object}	middleware.ErrorResponse
// @Failure		503		{object}	middleware.ErrorResponse
// @Router			/api/bids [post]
func (h *Handler) place(ginCtx *gin.Context) {
	var body PlaceBidBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, middleware.ErrorResponse{Error: err.Error()})
		return
	}

	bid, err := h.svc.PlaceBid(ginCtx.Request.Context(), body.AuctionID, middleware.User(ginCtx), body.Amount)
	if err != nil {
		middleware.Fail(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, bid)
}

// @Summary		List bids for an auction
// @Description	Returns every bid recorded for the auction, newest first.
// @Tags			Bids
// @Param			auctionId	path		string	true	"Auction ID"
// @Success		200			{array}		models.Bid
// @Failure		404			{object}	middleware.ErrorResponse
// @Router			/api/bids/{auctionId} [get]
func (h *Handler) list(ginCtx *gin.Context) {
	bids, err := h.svc.BidsForAuction(ginCtx.Request.Context(), ginCtx.Param("auctionId"))
	if err != nil {
		middleware.Fail(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, bids)
}

// @Summary		Republish leading bids
// @Description	Republishes the leader of one auction, or of every recently active auction when auction_id is omitted. Leaders the bus already held within its duplicate window are counted as duplicates.
// @Tags			Admin
// @Param			auction_id	query		string	false	"Auction ID"
// @Success		200			{object}	ReconcileResponse
// @Failure		404			{object}	middleware.ErrorResponse
// @Router			/api/admin/reconcile [post]
func (h *Handler) reconcileNow(ginCtx *gin.Context) {
	ctx := ginCtx.Request.Context()
	if id := ginCtx.Query("auction_id"); id != "" {
		_, dup, err := h.reconcile.ReconcileAuction(ctx, id)
		if err != nil {
			middleware.Fail(ginCtx, err)
			return
		}
		resp := ReconcileResponse{Republished: 1, AuctionID: id}
		if dup {
			resp = ReconcileResponse{Duplicates: 1, AuctionID: id}
		}
		ginCtx.JSON(http.StatusOK, resp)
		return
	}

	res, err := h.reconcile.Sweep(ctx)
	if err != nil {
		middleware.Fail(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, ReconcileResponse{Republished: res.Sent, Duplicates: res.Duplicates})
}
