// persist.go - JSON snapshot of the public ledger state.
//
// The snapshot records the public view only: account identities, balance
// handles, released plaintext balances and the mint counter. The confidential
// store behind the handles lives with the coprocessor collaborator and is not
// part of this file.

package ledger

import (
	"encoding/json"
	"os"

	"sealedbid/internal/fhe"
)

type snapshot struct {
	Name     string            `json:"name"`
	Symbol   string            `json:"symbol"`
	Cap      uint64            `json:"cap"`
	Minted   uint64            `json:"minted"`
	Balances map[string]string `json:"balances"`
	Released map[string]uint64 `json:"released"`
}

// SaveToFile writes the public ledger snapshot. Overwrites the file if it exists.
func (t *ConfidentialToken) SaveToFile(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := snapshot{
		Name:     t.name,
		Symbol:   t.symbol,
		Cap:      t.cap,
		Minted:   t.minted,
		Balances: make(map[string]string, len(t.balances)),
		Released: make(map[string]uint64, len(t.released)),
	}
	for acc, bal := range t.balances {
		s.Balances[acc] = bal.Hex()
	}
	for acc, rel := range t.released {
		s.Released[acc] = rel
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// LoadFromFile restores the public ledger snapshot. Handles are only usable if
// the coprocessor still holds the corresponding ciphertext material.
func (t *ConfidentialToken) LoadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var s snapshot
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.name = s.Name
	t.symbol = s.Symbol
	t.cap = s.Cap
	t.minted = s.Minted
	t.balances = make(map[string]*fhe.Ciphertext, len(s.Balances))
	for acc, h := range s.Balances {
		ct, err := fhe.CiphertextFromHex(h)
		if err != nil {
			return err
		}
		t.balances[acc] = ct
	}
	t.released = make(map[string]uint64, len(s.Released))
	for acc, rel := range s.Released {
		t.released[acc] = rel
	}
	return nil
}
