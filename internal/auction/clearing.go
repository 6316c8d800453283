// clearing.go - Data-oblivious uniform-price clearing.
//
// The clearing pass never branches on plaintext bid data. Bids are sorted by a
// bitonic network over encrypted composite keys, supply is allocated greedily
// with encrypted min/sub, the uniform clearing price is folded out of the
// sorted walk with oblivious selects, and allocations are scattered back to
// submission order with an equality/select sweep. The computation's shape is a
// function of the bid count alone.

package auction

import (
	"strconv"

	"sealedbid/internal/events"
	"sealedbid/internal/fhe"
)

// tieBreakBits packs the submission-order tie-break into the sort key:
// key = price * 2^tieBreakBits + (tieBreakMax - bidID). Descending key order
// is price-descending, then earliest-submission-first (appends happen in
// platform order, so bid id order equals SubmittedAt order).
const (
	tieBreakBits = 20
	tieBreakMax  = 1<<tieBreakBits - 1
)

// slot is one lane of the sorting network. All fields are ciphertexts; tag
// identifies the originating bid for the scatter pass.
type slot struct {
	key    *fhe.Ciphertext
	price  *fhe.Ciphertext
	amount *fhe.Ciphertext
	tag    *fhe.Ciphertext
}

// hom is an error-latching wrapper around coprocessor calls, so the circuit
// code reads as straight-line arithmetic.
type hom struct {
	cop *fhe.Coprocessor
	err error
}

func (h *hom) trivial(v uint64) *fhe.Ciphertext {
	if h.err != nil {
		return nil
	}
	return h.cop.TrivialEncrypt(v)
}

func (h *hom) bin(f func(a, b *fhe.Ciphertext) (*fhe.Ciphertext, error), a, b *fhe.Ciphertext) *fhe.Ciphertext {
	if h.err != nil {
		return nil
	}
	out, err := f(a, b)
	if err != nil {
		h.err = err
	}
	return out
}

func (h *hom) add(a, b *fhe.Ciphertext) *fhe.Ciphertext { return h.bin(h.cop.Add, a, b) }
func (h *hom) sub(a, b *fhe.Ciphertext) *fhe.Ciphertext { return h.bin(h.cop.Sub, a, b) }
func (h *hom) mul(a, b *fhe.Ciphertext) *fhe.Ciphertext { return h.bin(h.cop.Mul, a, b) }
func (h *hom) min(a, b *fhe.Ciphertext) *fhe.Ciphertext { return h.bin(h.cop.Min, a, b) }

func (h *hom) cmp(f func(a, b *fhe.Ciphertext) (*fhe.EncryptedBool, error), a, b *fhe.Ciphertext) *fhe.EncryptedBool {
	if h.err != nil {
		return nil
	}
	out, err := f(a, b)
	if err != nil {
		h.err = err
	}
	return out
}

func (h *hom) lt(a, b *fhe.Ciphertext) *fhe.EncryptedBool { return h.cmp(h.cop.Lt, a, b) }
func (h *hom) gt(a, b *fhe.Ciphertext) *fhe.EncryptedBool { return h.cmp(h.cop.Gt, a, b) }
func (h *hom) eq(a, b *fhe.Ciphertext) *fhe.EncryptedBool { return h.cmp(h.cop.Eq, a, b) }

func (h *hom) mux(cond *fhe.EncryptedBool, a, b *fhe.Ciphertext) *fhe.Ciphertext {
	if h.err != nil {
		return nil
	}
	out, err := h.cop.Select(cond, a, b)
	if err != nil {
		h.err = err
	}
	return out
}

// clearAndSettleLocked computes allocations under encryption and drives the
// confidential transfers. Caller holds the auction mutex and has verified the
// lifecycle precondition.
func (a *Auction) clearAndSettleLocked() error {
	h := &hom{cop: a.cop}
	a.clearingPrice = h.trivial(a.reservePrice)
	a.winnerCount = 0

	n := len(a.bids)
	if n == 0 {
		return h.err
	}

	// Build one slot per bid, padded to a power of two with zero bids so the
	// bitonic network operates on a full lattice.
	size := nextPow2(n)
	radix := h.trivial(1 << tieBreakBits)
	slots := make([]slot, size)
	for i := 0; i < size; i++ {
		if i < n {
			b := a.bids[i]
			slots[i] = slot{
				key:    h.add(h.mul(b.EncryptedPrice, radix), h.trivial(uint64(tieBreakMax-i))),
				price:  b.EncryptedPrice,
				amount: b.EncryptedAmount,
				tag:    h.trivial(uint64(i)),
			}
		} else {
			slots[i] = slot{
				key:    h.trivial(0),
				price:  h.trivial(0),
				amount: h.trivial(0),
				tag:    h.trivial(uint64(i)),
			}
		}
	}

	h.bitonicSortDesc(slots)

	// Greedy fill in sorted order, and fold the uniform clearing price: the
	// last slot with a non-zero allocation leaves its price in the fold.
	zero := h.trivial(0)
	remaining := h.trivial(a.supply)
	clearing := a.clearingPrice
	allocs := make([]*fhe.Ciphertext, size)
	for s := range slots {
		alloc := h.min(slots[s].amount, remaining)
		remaining = h.sub(remaining, alloc)
		allocs[s] = alloc
		clearing = h.mux(h.gt(alloc, zero), slots[s].price, clearing)
	}
	a.clearingPrice = clearing

	// Scatter allocations back to submission order. Fixed O(n^2) sweep keeps
	// the sorted permutation hidden.
	for i, b := range a.bids {
		tag := h.trivial(uint64(i))
		total := h.trivial(0)
		for s := range slots {
			total = h.add(total, h.mux(h.eq(slots[s].tag, tag), allocs[s], zero))
		}
		b.Allocation = total
	}
	if h.err != nil {
		return h.err
	}

	// Settlement: per winning bid, debit allocated*clearing from the bidder,
	// credit the seller, move allocated item units out of escrow. A bid whose
	// payment cannot complete is skipped and its capacity is not redistributed.
	for _, b := range a.bids {
		wonBit, err := a.cop.Gt(b.Allocation, zero)
		if err != nil {
			return err
		}
		won, err := a.cop.DecryptBool(wonBit)
		if err != nil {
			return err
		}
		b.Revealed = true
		if !won {
			b.Settled = true
			continue
		}

		cost := h.mul(b.Allocation, a.clearingPrice)
		if h.err != nil {
			return h.err
		}
		paid, err := a.payment.TransferEncrypted(b.Bidder, a.seller, cost)
		if err != nil {
			return err
		}
		if !paid {
			b.Settled = true
			a.bus.Emit(events.TypeSettlementSkipped, map[string]string{
				"auction_id": a.id,
				"bid_id":     strconv.Itoa(b.ID),
				"bidder":     b.Bidder,
			})
			continue
		}
		if _, err := a.item.TransferEncrypted(a.escrow, b.Bidder, b.Allocation); err != nil {
			return err
		}
		b.Settled = true
		a.winnerCount++
	}
	return nil
}

// bitonicSortDesc sorts slots by key descending with a bitonic network:
// fixed compare-exchange sequence, oblivious swaps.
func (h *hom) bitonicSortDesc(slots []slot) {
	size := len(slots)
	for k := 2; k <= size; k <<= 1 {
		for j := k >> 1; j > 0; j >>= 1 {
			for i := 0; i < size; i++ {
				l := i ^ j
				if l <= i {
					continue
				}
				// Block direction depends only on lane indices, never on data.
				var outOfOrder *fhe.EncryptedBool
				if i&k == 0 {
					outOfOrder = h.lt(slots[i].key, slots[l].key)
				} else {
					outOfOrder = h.lt(slots[l].key, slots[i].key)
				}
				h.swapIf(outOfOrder, &slots[i], &slots[l])
			}
		}
	}
}

// swapIf exchanges two slots when cond holds, via oblivious selects on every
// field.
func (h *hom) swapIf(cond *fhe.EncryptedBool, x, y *slot) {
	if h.err != nil {
		return
	}
	nx := slot{
		key:    h.mux(cond, y.key, x.key),
		price:  h.mux(cond, y.price, x.price),
		amount: h.mux(cond, y.amount, x.amount),
		tag:    h.mux(cond, y.tag, x.tag),
	}
	ny := slot{
		key:    h.mux(cond, x.key, y.key),
		price:  h.mux(cond, x.price, y.price),
		amount: h.mux(cond, x.amount, y.amount),
		tag:    h.mux(cond, x.tag, y.tag),
	}
	*x, *y = nx, ny
}

func nextPow2(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}
