// handlers.go - REST handlers exposed to the registry/frontend collaborator.
//
// Payloads carry ciphertext handles (hex) and proofs (base64) only; plaintext
// bid values never cross this surface except through the local encryption
// gateway endpoint, which stands in for the client-side encryption SDK.

package server

import (
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"sealedbid/internal/auction"
	"sealedbid/internal/fhe"
	"sealedbid/internal/ledger"
)

// Handler wires the engine components behind the REST routes.
type Handler struct {
	factory  *auction.Factory
	payment  *ledger.ConfidentialToken
	cop      *fhe.Coprocessor
	registry *Registry
}

func NewHandler(factory *auction.Factory, payment *ledger.ConfidentialToken, cop *fhe.Coprocessor, registry *Registry) *Handler {
	return &Handler{factory: factory, payment: payment, cop: cop, registry: registry}
}

type createAuctionRequest struct {
	Title           string `json:"title" binding:"required"`
	Description     string `json:"description"`
	Seller          string `json:"seller" binding:"required"`
	Supply          uint64 `json:"supply" binding:"required"`
	ReservePrice    uint64 `json:"reserve_price"`
	DurationSeconds int64  `json:"duration_seconds" binding:"required"`
}

type auctionSummary struct {
	AuctionID   string `json:"auction_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Seller      string `json:"seller"`
	Supply      uint64 `json:"supply"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
	State       string `json:"state"`
	BidCount    int    `json:"bid_count"`
}

func summarize(a *auction.Auction) auctionSummary {
	return auctionSummary{
		AuctionID:   a.ID(),
		Title:       a.Title(),
		Description: a.Description(),
		Seller:      a.Seller(),
		Supply:      a.Supply(),
		StartTime:   a.StartTime().UTC().Format(time.RFC3339),
		EndTime:     a.EndTime().UTC().Format(time.RFC3339),
		IsAvailable: a.IsAvailable(),
		State:       a.State().String(),
		BidCount:    a.BidCount(),
	}
}

// CreateAuctionHandler handles POST /auctions
func (h *Handler) CreateAuctionHandler(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	now := time.Now()
	a, err := h.factory.CreateAuction(auction.Params{
		Title:        req.Title,
		Description:  req.Description,
		Seller:       req.Seller,
		Supply:       req.Supply,
		ReservePrice: req.ReservePrice,
		StartTime:    now,
		EndTime:      now.Add(time.Duration(req.DurationSeconds) * time.Second),
	})
	if err != nil {
		JSONError(c, http.StatusBadRequest, err.Error())
		return
	}
	h.registry.Add(a)
	JSONResponse(c, http.StatusCreated, summarize(a), "auction created")
}

// ListAuctionsHandler handles GET /auctions
func (h *Handler) ListAuctionsHandler(c *gin.Context) {
	auctions := h.registry.List()
	out := make([]auctionSummary, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, summarize(a))
	}
	JSONResponse(c, http.StatusOK, out, "")
}

// GetAuctionHandler handles GET /auctions/:id
func (h *Handler) GetAuctionHandler(c *gin.Context) {
	a, err := h.registry.Get(c.Param("id"))
	if err != nil {
		status, msg := MapErrorToHTTP(err)
		JSONError(c, status, msg)
		return
	}
	JSONResponse(c, http.StatusOK, summarize(a), "")
}

type encryptInputRequest struct {
	Value uint64 `json:"value"`
}

type encryptedInput struct {
	Handle string `json:"handle"`
	Proof  string `json:"proof"`
}

// EncryptInputHandler handles POST /inputs: the local encryption gateway that
// turns a plaintext value into a ciphertext handle plus validity proof.
func (h *Handler) EncryptInputHandler(c *gin.Context) {
	var req encryptInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	ct, proof, err := h.cop.EncryptInput(req.Value)
	if err != nil {
		JSONError(c, http.StatusInternalServerError, "encryption failed")
		return
	}
	JSONResponse(c, http.StatusCreated, encryptedInput{
		Handle: ct.Hex(),
		Proof:  base64.StdEncoding.EncodeToString(proof),
	}, "input encrypted")
}

type submitBidRequest struct {
	Bidder       string `json:"bidder" binding:"required"`
	PriceHandle  string `json:"price_handle" binding:"required"`
	PriceProof   string `json:"price_proof" binding:"required"`
	AmountHandle string `json:"amount_handle" binding:"required"`
	AmountProof  string `json:"amount_proof" binding:"required"`
}

// SubmitBidHandler handles POST /auctions/:id/bids
func (h *Handler) SubmitBidHandler(c *gin.Context) {
	a, err := h.registry.Get(c.Param("id"))
	if err != nil {
		status, msg := MapErrorToHTTP(err)
		JSONError(c, status, msg)
		return
	}
	var req submitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	encPrice, err := fhe.CiphertextFromHex(req.PriceHandle)
	if err != nil {
		JSONError(c, http.StatusBadRequest, "malformed price handle")
		return
	}
	encAmount, err := fhe.CiphertextFromHex(req.AmountHandle)
	if err != nil {
		JSONError(c, http.StatusBadRequest, "malformed amount handle")
		return
	}
	priceProof, err := base64.StdEncoding.DecodeString(req.PriceProof)
	if err != nil {
		JSONError(c, http.StatusBadRequest, "malformed price proof")
		return
	}
	amountProof, err := base64.StdEncoding.DecodeString(req.AmountProof)
	if err != nil {
		JSONError(c, http.StatusBadRequest, "malformed amount proof")
		return
	}

	bidID, err := a.SubmitBid(req.Bidder, encPrice, priceProof, encAmount, amountProof)
	if err != nil {
		status, msg := MapErrorToHTTP(err)
		JSONError(c, status, msg)
		log.WithFields(log.Fields{
			"auction_id": a.ID(),
			"bidder":     req.Bidder,
			"error":      err.Error(),
		}).Warn("bid rejected")
		return
	}
	JSONResponse(c, http.StatusCreated, gin.H{"bid_id": bidID}, "bid accepted")
}

// FinalizeHandler handles POST /auctions/:id/finalize
func (h *Handler) FinalizeHandler(c *gin.Context) {
	a, err := h.registry.Get(c.Param("id"))
	if err != nil {
		status, msg := MapErrorToHTTP(err)
		JSONError(c, status, msg)
		return
	}
	if err := a.Finalize(); err != nil {
		status, msg := MapErrorToHTTP(err)
		JSONError(c, status, msg)
		return
	}
	clearing, err := a.ClearingPriceHandle()
	if err != nil {
		status, msg := MapErrorToHTTP(err)
		JSONError(c, status, msg)
		return
	}
	JSONResponse(c, http.StatusOK, gin.H{
		"clearing_price_handle": clearing.Hex(),
		"winner_count":          a.WinnerCount(),
	}, "auction finalized")
}

// MyBidsHandler handles GET /auctions/:id/bids/:bidder. The caller's identity
// comes from the X-Account header; asking for another bidder's handles is
// refused.
func (h *Handler) MyBidsHandler(c *gin.Context) {
	a, err := h.registry.Get(c.Param("id"))
	if err != nil {
		status, msg := MapErrorToHTTP(err)
		JSONError(c, status, msg)
		return
	}
	bidder := c.Param("bidder")
	if caller := c.GetHeader("X-Account"); caller != bidder {
		JSONError(c, http.StatusForbidden, "bid handles are visible to their owner only")
		return
	}
	JSONResponse(c, http.StatusOK, a.BidsOf(bidder), "")
}

// ClearingPriceHandler handles GET /auctions/:id/clearing-price
func (h *Handler) ClearingPriceHandler(c *gin.Context) {
	a, err := h.registry.Get(c.Param("id"))
	if err != nil {
		status, msg := MapErrorToHTTP(err)
		JSONError(c, status, msg)
		return
	}
	clearing, err := a.ClearingPriceHandle()
	if err != nil {
		status, msg := MapErrorToHTTP(err)
		JSONError(c, status, msg)
		return
	}
	JSONResponse(c, http.StatusOK, gin.H{"clearing_price_handle": clearing.Hex()}, "")
}

type registerRecipientRequest struct {
	Identity  string `json:"identity" binding:"required"`
	PublicKey string `json:"public_key" binding:"required"`
}

// RegisterRecipientHandler handles POST /recipients: record a party's DH
// public key so ciphertexts can later be disclosed to it.
func (h *Handler) RegisterRecipientHandler(c *gin.Context) {
	var req registerRecipientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	pk, err := fhe.ParseRecipientKey(req.PublicKey)
	if err != nil {
		JSONError(c, http.StatusBadRequest, "malformed public key")
		return
	}
	h.cop.RegisterRecipient(req.Identity, pk)
	JSONResponse(c, http.StatusCreated, gin.H{"identity": req.Identity}, "recipient registered")
}

type discloseClearingPriceRequest struct {
	Recipient string `json:"recipient" binding:"required"`
}

// DiscloseClearingPriceHandler handles POST /auctions/:id/clearing-price/disclose
func (h *Handler) DiscloseClearingPriceHandler(c *gin.Context) {
	a, err := h.registry.Get(c.Param("id"))
	if err != nil {
		status, msg := MapErrorToHTTP(err)
		JSONError(c, status, msg)
		return
	}
	var req discloseClearingPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	dr, err := a.RequestClearingPriceDisclosure(req.Recipient)
	if err != nil {
		status, msg := MapErrorToHTTP(err)
		JSONError(c, status, msg)
		return
	}
	JSONResponse(c, http.StatusAccepted, gin.H{"request_id": dr.ID}, "disclosure queued")
}

type discloseBidRequest struct {
	BidID int `json:"bid_id"`
}

// DiscloseBidHandler handles POST /auctions/:id/bids/:bidder/disclose. Only
// the bid's owner may ask for its plaintexts.
func (h *Handler) DiscloseBidHandler(c *gin.Context) {
	a, err := h.registry.Get(c.Param("id"))
	if err != nil {
		status, msg := MapErrorToHTTP(err)
		JSONError(c, status, msg)
		return
	}
	bidder := c.Param("bidder")
	if caller := c.GetHeader("X-Account"); caller != bidder {
		JSONError(c, http.StatusForbidden, "bid disclosure is available to the owner only")
		return
	}
	var req discloseBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	reqs, err := a.RequestBidDisclosure(bidder, req.BidID)
	if err != nil {
		status, msg := MapErrorToHTTP(err)
		JSONError(c, status, msg)
		return
	}
	ids := make([]string, 0, len(reqs))
	for _, dr := range reqs {
		ids = append(ids, dr.ID)
	}
	JSONResponse(c, http.StatusAccepted, gin.H{"request_ids": ids}, "disclosure queued")
}

// GetDisclosureHandler handles GET /disclosures/:id: the recipient polls for
// the sealed payload once the oracle pass has run.
func (h *Handler) GetDisclosureHandler(c *gin.Context) {
	dr, err := h.cop.Disclosure(c.Param("id"))
	if err != nil {
		status, msg := MapErrorToHTTP(err)
		JSONError(c, status, msg)
		return
	}
	out := gin.H{
		"request_id": dr.ID,
		"handle":     dr.Handle,
		"recipient":  dr.Recipient,
		"resolved":   dr.Resolved,
	}
	if dr.Resolved {
		eph := dr.EphemeralPub.Bytes()
		out["ephemeral_pub"] = hex.EncodeToString(eph[:])
		out["sealed"] = hex.EncodeToString(dr.Sealed)
	}
	JSONResponse(c, http.StatusOK, out, "")
}

type wrapRequest struct {
	Account string `json:"account" binding:"required"`
	Wei     string `json:"wei" binding:"required"`
}

// WrapHandler handles POST /token/wrap: deposit wei, credit confidential units.
func (h *Handler) WrapHandler(c *gin.Context) {
	var req wrapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	units, err := ledger.UnitsFromWei(req.Wei)
	if err != nil {
		JSONError(c, http.StatusBadRequest, err.Error())
		return
	}
	bal, err := h.payment.Deposit(req.Account, units)
	if err != nil {
		status, msg := MapErrorToHTTP(err)
		JSONError(c, status, msg)
		return
	}
	JSONResponse(c, http.StatusOK, gin.H{"balance_handle": bal.Hex()}, "wrapped")
}

// UnwrapHandler handles POST /token/unwrap: withdraw confidential units back
// to a plaintext balance, subject to the encrypted sufficiency check.
func (h *Handler) UnwrapHandler(c *gin.Context) {
	var req wrapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	units, err := ledger.UnitsFromWei(req.Wei)
	if err != nil {
		JSONError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.payment.Withdraw(req.Account, units); err != nil {
		status, msg := MapErrorToHTTP(err)
		JSONError(c, status, msg)
		return
	}
	JSONResponse(c, http.StatusOK, gin.H{
		"released_wei": ledger.WeiFromUnits(h.payment.Released(req.Account)),
	}, "unwrapped")
}

// BalanceHandler handles GET /token/balance/:account
func (h *Handler) BalanceHandler(c *gin.Context) {
	account := c.Param("account")
	JSONResponse(c, http.StatusOK, gin.H{
		"balance_handle": h.payment.BalanceOf(account).Hex(),
	}, "")
}
