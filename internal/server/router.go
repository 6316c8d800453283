// router.go - gin route wiring for the auction engine.

package server

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter builds the engine with the full middleware chain and all
// auction, gateway, and token routes. The limiter decides per-request
// admission; pass nil to disable rate limiting.
func SetupRouter(h *Handler, limiter func() bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggerMiddleware)
	if limiter != nil {
		r.Use(RateLimitMiddleware(limiter))
	}

	r.POST("/inputs", h.EncryptInputHandler)

	r.POST("/auctions", h.CreateAuctionHandler)
	r.GET("/auctions", h.ListAuctionsHandler)
	r.GET("/auctions/:id", h.GetAuctionHandler)
	r.POST("/auctions/:id/bids", h.SubmitBidHandler)
	r.POST("/auctions/:id/finalize", h.FinalizeHandler)
	r.GET("/auctions/:id/bids/:bidder", h.MyBidsHandler)
	r.GET("/auctions/:id/clearing-price", h.ClearingPriceHandler)
	r.POST("/auctions/:id/clearing-price/disclose", h.DiscloseClearingPriceHandler)
	r.POST("/auctions/:id/bids/:bidder/disclose", h.DiscloseBidHandler)

	r.POST("/recipients", h.RegisterRecipientHandler)
	r.GET("/disclosures/:id", h.GetDisclosureHandler)

	r.POST("/token/wrap", h.WrapHandler)
	r.POST("/token/unwrap", h.UnwrapHandler)
	r.GET("/token/balance/:account", h.BalanceHandler)

	return r
}
