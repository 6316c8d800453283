// factory.go - Auction creation and item token issuance.
//
// Creating an auction mints the full supply of a fresh item token into the
// auction's escrow account. Settlement later moves escrowed units to winners;
// unsold units stay escrowed.

package auction

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sealedbid/internal/events"
	"sealedbid/internal/fhe"
	"sealedbid/internal/ledger"
)

// Params are the public auction parameters, immutable after creation.
type Params struct {
	Title        string
	Description  string
	Seller       string
	Supply       uint64
	ReservePrice uint64
	StartTime    time.Time
	EndTime      time.Time
}

// Factory builds auctions bound to the shared payment token and coprocessor.
type Factory struct {
	cop     *fhe.Coprocessor
	bus     *events.Bus
	payment *ledger.ConfidentialToken
	clock   Clock
}

// NewFactory creates an auction factory. A nil clock defaults to time.Now.
func NewFactory(cop *fhe.Coprocessor, bus *events.Bus, payment *ledger.ConfidentialToken, clock Clock) *Factory {
	if clock == nil {
		clock = time.Now
	}
	return &Factory{cop: cop, bus: bus, payment: payment, clock: clock}
}

// CreateAuction validates the parameters, mints the supply into escrow and
// returns the live auction.
func (f *Factory) CreateAuction(p Params) (*Auction, error) {
	if p.Seller == "" {
		return nil, errors.New("auction: seller identity required")
	}
	if p.Title == "" {
		return nil, errors.New("auction: title required")
	}
	if p.Supply == 0 {
		return nil, errors.New("auction: supply must be positive")
	}
	if p.StartTime.IsZero() {
		p.StartTime = f.clock()
	}
	if !p.EndTime.After(p.StartTime) {
		return nil, errors.New("auction: end time must be after start time")
	}

	id := uuid.New().String()
	escrow := "auction:" + id
	item := ledger.NewConfidentialToken(p.Title+" Item", "ITEM-"+id[:8], p.Supply, f.cop, f.bus)
	if err := item.Mint(escrow, p.Supply); err != nil {
		return nil, fmt.Errorf("auction: escrow mint: %w", err)
	}

	a := &Auction{
		id:           id,
		title:        p.Title,
		description:  p.Description,
		seller:       p.Seller,
		supply:       p.Supply,
		reservePrice: p.ReservePrice,
		startTime:    p.StartTime,
		endTime:      p.EndTime,
		escrow:       escrow,
		payment:      f.payment,
		item:         item,
		cop:          f.cop,
		bus:          f.bus,
		clock:        f.clock,
	}

	f.bus.Emit(events.TypeAuctionCreated, map[string]string{
		"auction_id": id,
		"seller":     p.Seller,
		"title":      p.Title,
		"supply":     fmt.Sprintf("%d", p.Supply),
		"end_time":   p.EndTime.UTC().Format(time.RFC3339),
	})
	return a, nil
}
