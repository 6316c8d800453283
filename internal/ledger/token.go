// token.go - Confidential fungible token ledger.
//
// Balances are held as ciphertext handles keyed by account identity and are
// mutated only through the proof-checked operations below. The same type
// serves the wrapped payment asset (WETHc) and the per-auction item tokens.
// Every operation commits both sides inside one critical section, so readers
// never observe a torn transfer, and emits an opaque event carrying handles
// only.

package ledger

import (
	"fmt"
	"sync"

	"sealedbid/internal/auctionerrors"
	"sealedbid/internal/events"
	"sealedbid/internal/fhe"
)

// ConfidentialToken is an account-balance store with encrypted balances.
type ConfidentialToken struct {
	mu       sync.Mutex
	name     string
	symbol   string
	cop      *fhe.Coprocessor
	bus      *events.Bus
	balances map[string]*fhe.Ciphertext
	released map[string]uint64
	minted   uint64
	cap      uint64
}

// NewConfidentialToken creates a token ledger. A non-zero cap bounds the total
// amount Mint may ever issue (item tokens are capped by the auction supply;
// the payment token is uncapped).
func NewConfidentialToken(name, symbol string, cap uint64, cop *fhe.Coprocessor, bus *events.Bus) *ConfidentialToken {
	return &ConfidentialToken{
		name:     name,
		symbol:   symbol,
		cap:      cap,
		cop:      cop,
		bus:      bus,
		balances: make(map[string]*fhe.Ciphertext),
		released: make(map[string]uint64),
	}
}

func (t *ConfidentialToken) Name() string   { return t.name }
func (t *ConfidentialToken) Symbol() string { return t.symbol }

// Deposit converts a plaintext amount into ciphertext and adds it to the
// account's encrypted balance. Always succeeds for uint64 amounts.
func (t *ConfidentialToken) Deposit(account string, amount uint64) (*fhe.Ciphertext, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	enc := t.cop.TrivialEncrypt(amount)
	newBal, err := t.cop.Add(t.balanceLocked(account), enc)
	if err != nil {
		return nil, fmt.Errorf("ledger: deposit for %s: %w", account, err)
	}
	t.balances[account] = newBal
	t.bus.Emit(events.TypeDeposit, map[string]string{
		"token":          t.symbol,
		"account":        account,
		"balance_handle": newBal.Hex(),
	})
	return newBal, nil
}

// Withdraw releases a plaintext amount back to the account's non-confidential
// balance, provided the encrypted balance provably covers it. The sufficiency
// check is an encrypted comparison whose one-bit result is gateway-decrypted;
// the balance magnitude is never revealed.
func (t *ConfidentialToken) Withdraw(account string, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal := t.balanceLocked(account)
	enc := t.cop.TrivialEncrypt(amount)
	covered, err := t.cop.Le(enc, bal)
	if err != nil {
		return fmt.Errorf("ledger: withdraw check for %s: %w", account, err)
	}
	ok, err := t.cop.DecryptBool(covered)
	if err != nil {
		return fmt.Errorf("ledger: withdraw check for %s: %w", account, err)
	}
	if !ok {
		return fmt.Errorf("ledger: withdraw for %s: %w", account, auctionerrors.ErrInsufficientBalance)
	}
	newBal, err := t.cop.Sub(bal, enc)
	if err != nil {
		return fmt.Errorf("ledger: withdraw for %s: %w", account, err)
	}
	t.balances[account] = newBal
	t.released[account] += amount
	t.bus.Emit(events.TypeWithdraw, map[string]string{
		"token":          t.symbol,
		"account":        account,
		"balance_handle": newBal.Hex(),
	})
	return nil
}

// Released reports the plaintext balance released to an account by withdrawals.
func (t *ConfidentialToken) Released(account string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released[account]
}

// Transfer moves an encrypted amount between accounts. The proof must certify
// the ciphertext is a well-formed range-bounded encryption; sufficiency of the
// sender's balance is checked homomorphically. Fails with ErrInvalidProof or
// ErrInsufficientBalance; on failure neither balance changes observably beyond
// the oblivious zero-move.
func (t *ConfidentialToken) Transfer(from, to string, amount *fhe.Ciphertext, proof []byte) error {
	if err := t.cop.VerifyInput(amount, proof); err != nil {
		return fmt.Errorf("ledger: transfer from %s: %w", from, auctionerrors.ErrInvalidProof)
	}
	applied, err := t.TransferEncrypted(from, to, amount)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("ledger: transfer from %s: %w", from, auctionerrors.ErrInsufficientBalance)
	}
	return nil
}

// TransferEncrypted is the engine-internal oblivious transfer used by
// settlement: it always moves Select(amount <= balance, amount, 0) so the
// ledger mutation has a fixed shape, and reports the one-bit outcome so the
// caller can emit a skip event.
func (t *ConfidentialToken) TransferEncrypted(from, to string, amount *fhe.Ciphertext) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fromBal := t.balanceLocked(from)
	toBal := t.balanceLocked(to)

	covered, err := t.cop.Le(amount, fromBal)
	if err != nil {
		return false, fmt.Errorf("ledger: transfer %s -> %s: %w", from, to, err)
	}
	moved, err := t.cop.Select(covered, amount, t.cop.TrivialEncrypt(0))
	if err != nil {
		return false, fmt.Errorf("ledger: transfer %s -> %s: %w", from, to, err)
	}
	newFrom, err := t.cop.Sub(fromBal, moved)
	if err != nil {
		return false, fmt.Errorf("ledger: transfer %s -> %s: %w", from, to, err)
	}
	newTo, err := t.cop.Add(toBal, moved)
	if err != nil {
		return false, fmt.Errorf("ledger: transfer %s -> %s: %w", from, to, err)
	}

	// Both balances commit together; no observable intermediate state.
	t.balances[from] = newFrom
	t.balances[to] = newTo

	applied, err := t.cop.DecryptBool(covered)
	if err != nil {
		return false, fmt.Errorf("ledger: transfer %s -> %s: %w", from, to, err)
	}
	t.bus.Emit(events.TypeTransfer, map[string]string{
		"token":         t.symbol,
		"from":          from,
		"to":            to,
		"amount_handle": moved.Hex(),
	})
	return applied, nil
}

// Mint issues new units to an account, bounded by the token cap.
func (t *ConfidentialToken) Mint(to string, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cap > 0 && t.minted+amount > t.cap {
		return fmt.Errorf("ledger: mint of %d exceeds cap %d for %s", amount, t.cap, t.symbol)
	}
	enc := t.cop.TrivialEncrypt(amount)
	newBal, err := t.cop.Add(t.balanceLocked(to), enc)
	if err != nil {
		return fmt.Errorf("ledger: mint for %s: %w", to, err)
	}
	t.minted += amount
	t.balances[to] = newBal
	t.bus.Emit(events.TypeMint, map[string]string{
		"token":          t.symbol,
		"account":        to,
		"balance_handle": newBal.Hex(),
	})
	return nil
}

// BalanceOf returns the account's balance handle. Unknown accounts hold an
// encrypted zero.
func (t *ConfidentialToken) BalanceOf(account string) *fhe.Ciphertext {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balanceLocked(account)
}

func (t *ConfidentialToken) balanceLocked(account string) *fhe.Ciphertext {
	bal, ok := t.balances[account]
	if !ok {
		bal = t.cop.TrivialEncrypt(0)
		t.balances[account] = bal
	}
	return bal
}
