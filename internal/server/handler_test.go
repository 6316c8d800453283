// handler_test.go - End-to-end REST flow tests against an in-process engine.

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"sealedbid/internal/auction"
	"sealedbid/internal/events"
	"sealedbid/internal/fhe"
	"sealedbid/internal/ledger"
)

type apiFixture struct {
	t       *testing.T
	cp      *fhe.Coprocessor
	payment *ledger.ConfidentialToken
	router  *gin.Engine
	now     time.Time
}

func newAPIFixture(t *testing.T) *apiFixture {
	gin.SetMode(gin.TestMode)
	cp := fhe.NewInsecure()
	bus := events.NewBus()
	payment := ledger.NewConfidentialToken("Wrapped Ether Confidential", "WETHc", 0, cp, bus)
	f := &apiFixture{t: t, cp: cp, payment: payment, now: time.Now()}
	factory := auction.NewFactory(cp, bus, payment, func() time.Time { return f.now })
	h := NewHandler(factory, payment, cp, NewRegistry())
	f.router = SetupRouter(h, nil)
	return f
}

func (f *apiFixture) do(method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, apiResponse) {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var resp apiResponse
	if w.Body.Len() > 0 {
		require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (f *apiFixture) dataField(resp apiResponse, key string) any {
	f.t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(f.t, ok, "response data is not an object")
	v, ok := m[key]
	require.True(f.t, ok, "missing data field %q", key)
	return v
}

func (f *apiFixture) createAuction(supply uint64, durationSeconds int64) string {
	f.t.Helper()
	w, resp := f.do(http.MethodPost, "/auctions", gin.H{
		"title":            "rare hardware lot",
		"seller":           "seller",
		"supply":           supply,
		"duration_seconds": durationSeconds,
	}, nil)
	require.Equal(f.t, http.StatusCreated, w.Code)
	return f.dataField(resp, "auction_id").(string)
}

func (f *apiFixture) encryptInput(value uint64) (handle, proof string) {
	f.t.Helper()
	w, resp := f.do(http.MethodPost, "/inputs", gin.H{"value": value}, nil)
	require.Equal(f.t, http.StatusCreated, w.Code)
	return f.dataField(resp, "handle").(string), f.dataField(resp, "proof").(string)
}

func (f *apiFixture) submitBid(auctionID, bidder string, price, amount uint64) (*httptest.ResponseRecorder, apiResponse) {
	f.t.Helper()
	ph, pp := f.encryptInput(price)
	ah, ap := f.encryptInput(amount)
	return f.do(http.MethodPost, "/auctions/"+auctionID+"/bids", gin.H{
		"bidder":        bidder,
		"price_handle":  ph,
		"price_proof":   pp,
		"amount_handle": ah,
		"amount_proof":  ap,
	}, nil)
}

func (f *apiFixture) decryptHex(handle string) uint64 {
	f.t.Helper()
	ct, err := fhe.CiphertextFromHex(handle)
	require.NoError(f.t, err)
	v, err := f.cp.DebugDecrypt(ct)
	require.NoError(f.t, err)
	return v.Uint64()
}

func TestAuctionLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	// Fund alice with 600 units (1 unit = 1 gwei).
	w, _ := f.do(http.MethodPost, "/token/wrap", gin.H{
		"account": "alice",
		"wei":     "600000000000",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	id := f.createAuction(10, 3600)

	w, resp := f.do(http.MethodGet, "/auctions/"+id, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, f.dataField(resp, "is_available"))
	require.Equal(t, "open", f.dataField(resp, "state"))

	w, resp = f.submitBid(id, "alice", 100, 6)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, float64(0), f.dataField(resp, "bid_id"))

	// Finalizing before the deadline is refused.
	w, _ = f.do(http.MethodPost, "/auctions/"+id+"/finalize", nil, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	f.now = f.now.Add(2 * time.Hour)

	w, resp = f.do(http.MethodPost, "/auctions/"+id+"/finalize", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), f.dataField(resp, "winner_count"))
	require.Equal(t, uint64(100), f.decryptHex(f.dataField(resp, "clearing_price_handle").(string)))

	w, resp = f.do(http.MethodGet, "/auctions/"+id+"/clearing-price", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, uint64(100), f.decryptHex(f.dataField(resp, "clearing_price_handle").(string)))

	// Alice paid 6 units at price 100, draining her wrapped balance.
	_, resp = f.do(http.MethodGet, "/token/balance/alice", nil, nil)
	require.Equal(t, uint64(0), f.decryptHex(f.dataField(resp, "balance_handle").(string)))
}

func TestBidAfterDeadlineRejected(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createAuction(5, 60)
	f.now = f.now.Add(time.Hour)

	w, resp := f.submitBid(id, "bob", 50, 2)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "auction ended", resp.Message)
}

func TestMyBidsOwnershipEnforced(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createAuction(5, 3600)
	w, _ := f.submitBid(id, "alice", 70, 3)
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = f.do(http.MethodGet, "/auctions/"+id+"/bids/alice", nil, map[string]string{"X-Account": "bob"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w, resp := f.do(http.MethodGet, "/auctions/"+id+"/bids/alice", nil, map[string]string{"X-Account": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	views, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, views, 1)
}

func TestUnknownAuctionIs404(t *testing.T) {
	f := newAPIFixture(t)
	w, resp := f.do(http.MethodGet, "/auctions/no-such-id", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "auction not found", resp.Message)
}

func TestMalformedBidPayload(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createAuction(5, 3600)

	w, _ := f.do(http.MethodPost, "/auctions/"+id+"/bids", gin.H{"bidder": "alice"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	ph, pp := f.encryptInput(10)
	w, resp := f.do(http.MethodPost, "/auctions/"+id+"/bids", gin.H{
		"bidder":        "alice",
		"price_handle":  "zz-not-hex",
		"price_proof":   pp,
		"amount_handle": ph,
		"amount_proof":  pp,
	}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "malformed price handle", resp.Message)
}

func TestWrapRejectsBadWei(t *testing.T) {
	f := newAPIFixture(t)
	w, _ := f.do(http.MethodPost, "/token/wrap", gin.H{"account": "alice", "wei": "-5"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnwrapInsufficientBalance(t *testing.T) {
	f := newAPIFixture(t)
	w, _ := f.do(http.MethodPost, "/token/unwrap", gin.H{"account": "alice", "wei": "1000000000"}, nil)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestClearingPriceDisclosureFlow(t *testing.T) {
	f := newAPIFixture(t)

	kp, err := fhe.GenerateDHKeyPair()
	require.NoError(t, err)
	w, _ := f.do(http.MethodPost, "/recipients", gin.H{
		"identity":   "seller",
		"public_key": kp.PublicHex(),
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	f.do(http.MethodPost, "/token/wrap", gin.H{"account": "alice", "wei": "600000000000"}, nil)
	id := f.createAuction(10, 3600)
	w, _ = f.submitBid(id, "alice", 100, 6)
	require.Equal(t, http.StatusCreated, w.Code)
	f.now = f.now.Add(2 * time.Hour)
	w, _ = f.do(http.MethodPost, "/auctions/"+id+"/finalize", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Unknown recipients are refused before anything is queued.
	w, _ = f.do(http.MethodPost, "/auctions/"+id+"/clearing-price/disclose", gin.H{"recipient": "stranger"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := f.do(http.MethodPost, "/auctions/"+id+"/clearing-price/disclose", gin.H{"recipient": "seller"}, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	reqID := f.dataField(resp, "request_id").(string)

	w, resp = f.do(http.MethodGet, "/disclosures/"+reqID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, f.dataField(resp, "resolved"))

	// Oracle pass runs on a timer in the daemon; drive it directly here.
	n, err := f.cp.ResolvePending()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	w, resp = f.do(http.MethodGet, "/disclosures/"+reqID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, f.dataField(resp, "resolved"))

	dr, err := f.cp.Disclosure(reqID)
	require.NoError(t, err)
	value, err := fhe.OpenDisclosure(dr, kp.Sk)
	require.NoError(t, err)
	require.Equal(t, uint64(100), value.Uint64())
}

func TestRateLimiterRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cp := fhe.NewInsecure()
	bus := events.NewBus()
	payment := ledger.NewConfidentialToken("Wrapped Ether Confidential", "WETHc", 0, cp, bus)
	factory := auction.NewFactory(cp, bus, payment, nil)
	h := NewHandler(factory, payment, cp, NewRegistry())
	router := SetupRouter(h, func() bool { return false })

	req := httptest.NewRequest(http.MethodGet, "/auctions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}
