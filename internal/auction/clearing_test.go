package auction

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealedbid/internal/events"
)

// TestUniformPriceScenario is the canonical oversubscription case: supply 10,
// A bids 100/6 first, B bids 150/5 second. Both win (5+6 > 10), B is filled
// first, A takes the remaining 5, and everyone pays the lowest winning price.
func TestUniformPriceScenario(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, 10, 0, time.Hour)

	f.fund(t, "alice", 1000)
	f.fund(t, "bob", 1000)

	aliceBid := f.bid(t, a, "alice", 100, 6)
	f.advance(time.Second)
	bobBid := f.bid(t, a, "bob", 150, 5)

	f.advance(2 * time.Hour)
	require.NoError(t, a.Finalize())

	assert.False(t, a.IsAvailable())
	assert.Equal(t, 2, a.WinnerCount())

	clearing, err := a.ClearingPriceHandle()
	require.NoError(t, err)
	assert.EqualValues(t, 100, f.dec(t, clearing), "uniform price is the lowest winning price")

	assert.EqualValues(t, 5, f.dec(t, a.bids[bobBid].Allocation))
	assert.EqualValues(t, 5, f.dec(t, a.bids[aliceBid].Allocation))

	// Payment: both pay 5 * 100; the seller collects 1000.
	assert.EqualValues(t, 500, f.dec(t, f.payment.BalanceOf("alice")))
	assert.EqualValues(t, 500, f.dec(t, f.payment.BalanceOf("bob")))
	assert.EqualValues(t, 1000, f.dec(t, f.payment.BalanceOf("seller")))

	// Items: 5 each, escrow drained.
	item := a.ItemToken()
	assert.EqualValues(t, 5, f.dec(t, item.BalanceOf("alice")))
	assert.EqualValues(t, 5, f.dec(t, item.BalanceOf("bob")))
	assert.EqualValues(t, 0, f.dec(t, item.BalanceOf(a.EscrowAccount())))

	for _, b := range a.bids {
		assert.True(t, b.Revealed)
		assert.True(t, b.Settled)
	}
}

func TestNoBidsSettlesAtReserve(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, 10, 7, time.Hour)

	f.advance(2 * time.Hour)
	require.NoError(t, a.Finalize())

	assert.False(t, a.IsAvailable())
	assert.Equal(t, 0, a.WinnerCount())

	clearing, err := a.ClearingPriceHandle()
	require.NoError(t, err)
	assert.EqualValues(t, 7, f.dec(t, clearing), "no bids clear at the reserve price")

	// No transfers happened.
	assert.EqualValues(t, 0, f.dec(t, f.payment.BalanceOf("seller")))
	assert.EqualValues(t, 10, f.dec(t, a.ItemToken().BalanceOf(a.EscrowAccount())))
}

func TestEqualPricesBreakTiesBySubmissionOrder(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, 5, 0, time.Hour)
	f.fund(t, "alice", 1000)
	f.fund(t, "bob", 1000)

	first := f.bid(t, a, "alice", 100, 4)
	f.advance(time.Second)
	second := f.bid(t, a, "bob", 100, 4)

	f.advance(2 * time.Hour)
	require.NoError(t, a.Finalize())

	assert.EqualValues(t, 4, f.dec(t, a.bids[first].Allocation), "earlier bid wins the tie")
	assert.EqualValues(t, 1, f.dec(t, a.bids[second].Allocation))
}

// TestSettlementSkipNoCascade: a winner whose payment cannot complete is
// skipped, its capacity is not offered to later bids, and the remaining
// winners still settle.
func TestSettlementSkipNoCascade(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, 10, 0, time.Hour)
	f.fund(t, "alice", 10_000)
	f.fund(t, "carol", 10_000)
	// bob is never funded.

	var skipped []events.Event
	f.bus.Subscribe(func(ev events.Event) {
		if ev.Type == events.TypeSettlementSkipped {
			skipped = append(skipped, ev)
		}
	})

	f.bid(t, a, "alice", 200, 6)
	f.advance(time.Second)
	bobBid := f.bid(t, a, "bob", 150, 4)
	f.advance(time.Second)
	carolBid := f.bid(t, a, "carol", 100, 4)

	f.advance(2 * time.Hour)
	require.NoError(t, a.Finalize(), "one bad bidder must not abort finalize")

	clearing, err := a.ClearingPriceHandle()
	require.NoError(t, err)
	assert.EqualValues(t, 150, f.dec(t, clearing), "bob is still a winner for pricing purposes")

	// Alice settles at the uniform price: 6 * 150.
	assert.EqualValues(t, 10_000-900, f.dec(t, f.payment.BalanceOf("alice")))
	assert.EqualValues(t, 6, f.dec(t, a.ItemToken().BalanceOf("alice")))

	// Bob's allocation is dropped, not redistributed: carol stays at zero and
	// the capacity remains escrowed.
	assert.EqualValues(t, 0, f.dec(t, f.payment.BalanceOf("bob")))
	assert.EqualValues(t, 0, f.dec(t, a.ItemToken().BalanceOf("bob")))
	assert.EqualValues(t, 0, f.dec(t, a.bids[carolBid].Allocation))
	assert.EqualValues(t, 10_000, f.dec(t, f.payment.BalanceOf("carol")))
	assert.EqualValues(t, 4, f.dec(t, a.ItemToken().BalanceOf(a.EscrowAccount())))

	assert.Equal(t, 1, a.WinnerCount())
	require.Len(t, skipped, 1)
	assert.Equal(t, fmt.Sprintf("%d", bobBid), skipped[0].Fields["bid_id"])
	assert.Equal(t, "bob", skipped[0].Fields["bidder"])
	assert.True(t, a.bids[bobBid].Settled)
}

// TestClearingMatchesPlaintextReference cross-checks the encrypted clearing
// against a plaintext simulation over randomized bid sets.
func TestClearingMatchesPlaintextReference(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		f := newFixture(t)
		supply := uint64(rng.Intn(50) + 1)
		a := f.create(t, supply, 0, time.Hour)

		n := rng.Intn(7) + 1
		type pb struct {
			idx           int
			price, amount uint64
		}
		bids := make([]pb, n)
		for i := 0; i < n; i++ {
			bidder := fmt.Sprintf("bidder%d", i)
			price := uint64(rng.Intn(100) + 1)
			amount := uint64(rng.Intn(20) + 1)
			f.fund(t, bidder, price*amount)
			bids[i] = pb{idx: f.bid(t, a, bidder, price, amount), price: price, amount: amount}
			f.advance(time.Second)
		}

		f.advance(2 * time.Hour)
		require.NoError(t, a.Finalize())

		// Plaintext reference: price descending, submission order on ties.
		ordered := append([]pb(nil), bids...)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].price > ordered[j].price })
		remaining := supply
		expected := make([]uint64, n)
		expectedClearing := uint64(0)
		for _, b := range ordered {
			alloc := b.amount
			if alloc > remaining {
				alloc = remaining
			}
			expected[b.idx] = alloc
			remaining -= alloc
			if alloc > 0 {
				expectedClearing = b.price
			}
		}

		var total uint64
		for i, b := range bids {
			got := f.dec(t, a.bids[b.idx].Allocation)
			require.Equal(t, expected[i], got, "round %d bid %d", round, i)
			total += got
		}
		require.LessOrEqual(t, total, supply, "round %d: allocations exceed supply", round)

		clearing, err := a.ClearingPriceHandle()
		require.NoError(t, err)
		require.EqualValues(t, expectedClearing, f.dec(t, clearing), "round %d", round)
	}
}

// TestClearingShapeIsDataOblivious runs two auctions with identical bid counts
// and winner sets but different values, and checks the coprocessor executed
// the same number of operations for both: the circuit's shape must not depend
// on the data.
func TestClearingShapeIsDataOblivious(t *testing.T) {
	run := func(prices, amounts []uint64) uint64 {
		f := newFixture(t)
		a := f.create(t, 1000, 0, time.Hour)
		for i := range prices {
			bidder := fmt.Sprintf("bidder%d", i)
			f.fund(t, bidder, prices[i]*amounts[i]*10)
			f.bid(t, a, bidder, prices[i], amounts[i])
			f.advance(time.Second)
		}
		f.advance(2 * time.Hour)
		before := f.cp.OpCount()
		require.NoError(t, a.Finalize())
		return f.cp.OpCount() - before
	}

	opsA := run([]uint64{10, 80, 40, 66}, []uint64{3, 9, 1, 7})
	opsB := run([]uint64{99, 2, 55, 55}, []uint64{12, 4, 8, 2})
	assert.Equal(t, opsA, opsB)
}
