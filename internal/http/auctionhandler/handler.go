package auctionhandler

import (
	"net/http"

	"bidledger/internal/http/middleware"
	"bidledger/internal/models"
	"bidledger/internal/services/auction"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc auction.IAuctionService
}

func New(svc auction.IAuctionService) *Handler { return &Handler{svc: svc} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/api/auctions", h.list)
	r.GET("/api/auctions/:id", h.info)
	r.POST("/api/auctions", middleware.RequireUser(), h.create)
	r.PUT("/api/auctions/:id", middleware.RequireUser(), h.update)
	r.DELETE("/api/auctions/:id", middleware.RequireUser(), h.remove)
}

// @Summary		Get auction details
// @Description	Returns the auction of record, including the cached high bid.
// @Tags			Auctions
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	models.Auction
// @Failure		404	{object}	middleware.ErrorResponse
// @Router			/api/auctions/{id} [get]
func (h *Handler) info(c *gin.Context) {
	a, err := h.svc.GetAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary		List auctions
// @Description	Lists auctions, optionally only those updated after date.
// @Tags			Auctions
// @Param			date	query		string	false	"RFC3339 timestamp"
// @Success		200		{array}		models.Auction
// @Failure		400		{object}	middleware.ErrorResponse
// @Failure		503		{object}	middleware.ErrorResponse
// @Router			/api/auctions [get]
func (h *Handler) list(c *gin.Context) {
	var q ListAuctionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, middleware.ErrorResponse{Error: err.Error()})
		return
	}
	out, err := h.svc.ListAuctions(c.Request.Context(), q.Date)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	if out == nil {
		out = []models.Auction{}
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Create an auction
// @Description	The caller becomes the seller.
// @Tags			Auctions
// @Param			X-User	header		string				true	"Seller"
// @Param			body	body		CreateAuctionBody	true	"Auction payload"
// @Success		201		{object}	models.Auction
// @Failure		400		{object}	middleware.ErrorResponse
// @Router			/api/auctions [post]
func (h *Handler) create(ginCtx *gin.Context) {
	var body CreateAuctionBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &middleware.ErrorResponse{Error: err.Error()})
		return
	}

	a, err := h.svc.CreateAuction(ginCtx.Request.Context(), middleware.User(ginCtx), auction.AuctionInput{
		Item: models.Item{
			Make:     body.Make,
			Model:    body.Model,
			Year:     body.Year,
			Color:    body.Color,
			Mileage:  body.Mileage,
			ImageURL: body.ImageURL,
		},
		ReservePrice: body.ReservePrice,
		AuctionEnd:   body.AuctionEnd,
	})
	if err != nil {
		middleware.Fail(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusCreated, a)
}

// @Summary		Update an auction's item
// @Description	Seller only. Reserve price and end time cannot be changed.
// @Tags			Auctions
// @Param			X-User	header		string				true	"Seller"
// @Param			id		path		string				true	"Auction ID"
// @Param			body	body		UpdateAuctionBody	true	"Item fields"
// @Success		200		{object}	models.Auction
// @Failure		403		{object}	middleware.ErrorResponse
// @Failure		404		{object}	middleware.ErrorResponse
// @Router			/api/auctions/{id} [put]
func (h *Handler) update(ginCtx *gin.Context) {
	var body UpdateAuctionBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &middleware.ErrorResponse{Error: err.Error()})
		return
	}

	a, err := h.svc.UpdateAuction(ginCtx.Request.Context(), ginCtx.Param("id"), middleware.User(ginCtx), auction.ItemUpdate{
		Make:     body.Make,
		Model:    body.Model,
		Year:     body.Year,
		Color:    body.Color,
		Mileage:  body.Mileage,
		ImageURL: body.ImageURL,
	})
	if err != nil {
		middleware.Fail(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, a)
}

// @Summary		Delete an auction
// @Description	Seller only.
// @Tags			Auctions
// @Param			X-User	header	string	true	"Seller"
// @Param			id		path	string	true	"Auction ID"
// @Success		204
// @Failure		403	{object}	middleware.ErrorResponse
// @Failure		404	{object}	middleware.ErrorResponse
// @Router			/api/auctions/{id} [delete]
func (h *Handler) remove(ginCtx *gin.Context) {
	if err := h.svc.DeleteAuction(ginCtx.Request.Context(), ginCtx.Param("id"), middleware.User(ginCtx)); err != nil {
		middleware.Fail(ginCtx, err)
		return
	}
	ginCtx.Status(http.StatusNoContent)
}
