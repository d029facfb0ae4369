package bidhandler

type PlaceBidBody struct {
	AuctionID string `json:"auction_id" binding:"required"      example:"0b6f1c7e-1d1a-4f3e-9a43-2d1f5c2c9e10"`
	Amount    int64  `json:"amount"     binding:"required,gt=0" example:"150"`
} // @name PlaceBidRequest

type ReconcileResponse struct {
	Republished int `json:"republished"`
	// Duplicates were dropped by the bus; the earlier copy stands.
	Duplicates int    `json:"duplicates,omitempty"`
	AuctionID  string `json:"auction_id,omitempty"`
} // @name ReconcileResponse
