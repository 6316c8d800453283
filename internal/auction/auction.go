// auction.go - Auction aggregate: bid intake, lifecycle, read accessors.
//
// Each operation runs under the aggregate mutex, mirroring the serialized
// state-transition model of the underlying platform: no interleaving between
// operations on the same auction, time read once per operation from the
// injected clock.

package auction

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"sealedbid/internal/auctionerrors"
	"sealedbid/internal/events"
	"sealedbid/internal/fhe"
	"sealedbid/internal/ledger"
)

// Clock is the platform's authoritative time source.
type Clock func() time.Time

// MaxBids bounds the bid list so the fixed-shape sorting network has a static
// capacity. Must stay below 2^tieBreakBits.
const MaxBids = 1024

// Auction holds one sealed-bid auction for a fixed, publicly-known supply.
type Auction struct {
	mu sync.Mutex

	id           string
	title        string
	description  string
	seller       string
	supply       uint64
	reservePrice uint64
	startTime    time.Time
	endTime      time.Time

	settled bool
	bids    []*Bid

	escrow  string
	payment *ledger.ConfidentialToken
	item    *ledger.ConfidentialToken

	clearingPrice *fhe.Ciphertext
	winnerCount   int

	cop   *fhe.Coprocessor
	bus   *events.Bus
	clock Clock
}

func (a *Auction) ID() string           { return a.id }
func (a *Auction) Title() string        { return a.title }
func (a *Auction) Description() string  { return a.description }
func (a *Auction) Seller() string       { return a.seller }
func (a *Auction) Supply() uint64       { return a.supply }
func (a *Auction) StartTime() time.Time { return a.startTime }
func (a *Auction) EndTime() time.Time   { return a.endTime }

// ItemToken returns the fungible token representing the auctioned supply.
func (a *Auction) ItemToken() *ledger.ConfidentialToken { return a.item }

// EscrowAccount is the ledger identity holding the supply until settlement.
func (a *Auction) EscrowAccount() string { return a.escrow }

// IsAvailable reports the one-way availability flag: true until the auction is
// settled, false forever after.
func (a *Auction) IsAvailable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.settled
}

// State reports the effective lifecycle state at the platform clock's now.
func (a *Auction) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked(a.clock())
}

func (a *Auction) stateLocked(now time.Time) State {
	if a.settled {
		return Settled
	}
	if !now.Before(a.endTime) {
		return ClosedUnsettled
	}
	return Open
}

// SubmitBid validates an encrypted price/amount pair and appends the bid.
// The bid id equals the bid's index; insertion order is the tie-break order.
func (a *Auction) SubmitBid(bidder string, encPrice *fhe.Ciphertext, priceProof []byte, encAmount *fhe.Ciphertext, amountProof []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock()
	if a.stateLocked(now) != Open {
		return 0, fmt.Errorf("auction %s: %w", a.id, auctionerrors.ErrAuctionEnded)
	}
	if len(a.bids) >= MaxBids {
		return 0, fmt.Errorf("auction %s: %w", a.id, auctionerrors.ErrTooManyBids)
	}
	if err := a.cop.VerifyInput(encPrice, priceProof); err != nil {
		return 0, fmt.Errorf("auction %s: price: %w", a.id, auctionerrors.ErrInvalidProof)
	}
	if err := a.cop.VerifyInput(encAmount, amountProof); err != nil {
		return 0, fmt.Errorf("auction %s: amount: %w", a.id, auctionerrors.ErrInvalidProof)
	}

	bid := &Bid{
		ID:              len(a.bids),
		Bidder:          bidder,
		EncryptedPrice:  encPrice,
		EncryptedAmount: encAmount,
		SubmittedAt:     now,
	}
	a.bids = append(a.bids, bid)

	a.bus.Emit(events.TypeBidSubmitted, map[string]string{
		"auction_id": a.id,
		"bid_id":     strconv.Itoa(bid.ID),
		"bidder":     bidder,
		"timestamp":  now.UTC().Format(time.RFC3339),
	})
	return bid.ID, nil
}

// BidCount returns the number of accepted bids.
func (a *Auction) BidCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.bids)
}

// BidsOf returns the bidder's own bid handles, never another bidder's.
func (a *Auction) BidsOf(bidder string) []BidView {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []BidView
	for _, b := range a.bids {
		if b.Bidder != bidder {
			continue
		}
		v := BidView{
			BidID:        b.ID,
			PriceHandle:  b.EncryptedPrice.Hex(),
			AmountHandle: b.EncryptedAmount.Hex(),
			Revealed:     b.Revealed,
			Settled:      b.Settled,
		}
		if b.Allocation != nil {
			v.AllocationHandle = b.Allocation.Hex()
		}
		out = append(out, v)
	}
	return out
}

// ClearingPriceHandle returns the encrypted uniform clearing price once the
// auction is settled.
func (a *Auction) ClearingPriceHandle() (*fhe.Ciphertext, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.settled {
		return nil, fmt.Errorf("auction %s: %w", a.id, auctionerrors.ErrAuctionStillActive)
	}
	return a.clearingPrice, nil
}

// WinnerCount returns the number of winning bids whose settlement completed.
func (a *Auction) WinnerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.winnerCount
}

// RequestBidDisclosure queues selective disclosure of a bid's own ciphertexts
// (price, amount and, after settlement, allocation) to its bidder.
func (a *Auction) RequestBidDisclosure(bidder string, bidID int) ([]*fhe.DisclosureRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if bidID < 0 || bidID >= len(a.bids) || a.bids[bidID].Bidder != bidder {
		return nil, fmt.Errorf("auction %s: bid %d: %w", a.id, bidID, auctionerrors.ErrAuctionNotFound)
	}
	b := a.bids[bidID]
	cts := []*fhe.Ciphertext{b.EncryptedPrice, b.EncryptedAmount}
	if b.Allocation != nil {
		cts = append(cts, b.Allocation)
	}
	var reqs []*fhe.DisclosureRequest
	for _, ct := range cts {
		req, err := a.cop.RequestDisclosure(ct, bidder)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// RequestClearingPriceDisclosure queues selective disclosure of the settled
// clearing price to an authorized recipient.
func (a *Auction) RequestClearingPriceDisclosure(recipient string) (*fhe.DisclosureRequest, error) {
	ct, err := a.ClearingPriceHandle()
	if err != nil {
		return nil, err
	}
	return a.cop.RequestDisclosure(ct, recipient)
}

// Finalize runs the clearing and settlement algorithm exactly once. Valid only
// after the deadline; the first successful invocation performs the transition
// and any other attempt fails without touching state.
func (a *Auction) Finalize() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock()
	switch a.stateLocked(now) {
	case Open:
		return fmt.Errorf("auction %s: %w", a.id, auctionerrors.ErrAuctionStillActive)
	case Settled:
		return fmt.Errorf("auction %s: %w", a.id, auctionerrors.ErrAlreadySettled)
	}

	if err := a.clearAndSettleLocked(); err != nil {
		return fmt.Errorf("auction %s: finalize: %w", a.id, err)
	}

	a.settled = true
	a.bus.Emit(events.TypeAuctionFinalized, map[string]string{
		"auction_id":            a.id,
		"clearing_price_handle": a.clearingPrice.Hex(),
		"winner_count":          strconv.Itoa(a.winnerCount),
	})
	return nil
}
