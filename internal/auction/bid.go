// bid.go - Sealed bid records.

package auction

import (
	"time"

	"sealedbid/internal/fhe"
)

// Bid is one accepted sealed bid. The ciphertexts are immutable once accepted;
// a bidder wishing to change price or quantity submits a new bid.
type Bid struct {
	ID              int
	Bidder          string
	EncryptedPrice  *fhe.Ciphertext
	EncryptedAmount *fhe.Ciphertext
	SubmittedAt     time.Time

	// Revealed is set once the clearing pass has decided the bid's inclusion;
	// Settled once its settlement attempt (transfer or documented skip) is done.
	Revealed bool
	Settled  bool

	// Allocation is the encrypted quantity awarded at clearing, at most the
	// requested amount. Nil until finalization.
	Allocation *fhe.Ciphertext
}

// BidView is the per-bidder read model: a bidder only ever sees their own
// handles.
type BidView struct {
	BidID            int    `json:"bid_id"`
	PriceHandle      string `json:"price_handle"`
	AmountHandle     string `json:"amount_handle"`
	AllocationHandle string `json:"allocation_handle,omitempty"`
	Revealed         bool   `json:"revealed"`
	Settled          bool   `json:"settled"`
}
