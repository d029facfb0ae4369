package auctionhandler

import "time"

type CreateAuctionBody struct {
	Make         string    `json:"make"          example:"Ford"`
	Model        string    `json:"model"         example:"GT"`
	Year         int       `json:"year"          binding:"gte=0"        example:"2020"`
	Color        string    `json:"color"         example:"White"`
	Mileage      int       `json:"mileage"       binding:"gte=0"        example:"50000"`
	ImageURL     string    `json:"image_url"     example:"https://cdn.example.com/gt.jpg"`
	ReservePrice int64     `json:"reserve_price" binding:"gte=0"        example:"20000"`
	AuctionEnd   time.Time `json:"auction_end"   binding:"required"     example:"2025-07-27T16:05:05Z"`
} // @name CreateAuctionRequest

// UpdateAuctionBody only carries item fields; omitted fields are kept.
type UpdateAuctionBody struct {
	Make     *string `json:"make"      example:"Ford"`
	Model    *string `json:"model"     example:"GT"`
	Year     *int    `json:"year"      binding:"omitempty,gte=0" example:"2020"`
	Color    *string `json:"color"     example:"Blue"`
	Mileage  *int    `json:"mileage"   binding:"omitempty,gte=0" example:"51000"`
	ImageURL *string `json:"image_url" example:"https://cdn.example.com/gt.jpg"`
} // @name UpdateAuctionRequest

type ListAuctionsQuery struct {
	Date *time.Time `form:"date" time_format:"2006-01-02T15:04:05Z07:00"`
} // @name ListAuctionsQuery
