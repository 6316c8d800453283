// ciphertext.go - Opaque ciphertext handles for the coprocessor.
//
// A handle is a MiMC digest binding the ciphertext to its origin (an input
// commitment or a homomorphic operation over parent handles). Handles carry no
// information about the committed value; the plaintext lives only in the
// coprocessor's confidential store.

package fhe

import (
	"encoding/hex"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bw6-761/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
)

// Ciphertext is an opaque reference to an encrypted unsigned integer.
// Business logic may only pass it back into coprocessor operations.
type Ciphertext struct {
	Handle []byte `json:"handle"`
}

// EncryptedBool is a ciphertext whose underlying value is 0 or 1, produced by
// homomorphic comparisons. It is the only ciphertext kind the engine may ask
// the gateway to decrypt.
type EncryptedBool struct {
	Ciphertext
}

// Hex returns the handle in hex form, for events and wire payloads.
func (c *Ciphertext) Hex() string {
	if c == nil {
		return ""
	}
	return hex.EncodeToString(c.Handle)
}

// CiphertextFromHex reconstructs a handle from its hex form. The coprocessor
// rejects handles it has never issued, so a forged handle cannot be operated on.
func CiphertextFromHex(s string) (*Ciphertext, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return &Ciphertext{Handle: b}, nil
}

// mimcSum hashes field-encoded chunks with the native MiMC used by the input
// circuit. Every chunk is written as a full fr element so native and in-circuit
// digests agree.
func mimcSum(chunks ...*big.Int) []byte {
	h := mimcNative.NewMiMC()
	for _, c := range chunks {
		var e fr.Element
		e.SetBigInt(c)
		b := e.Bytes()
		h.Write(b[:])
	}
	return h.Sum(nil)
}

// opTag turns an operation name into a field element for handle derivation.
func opTag(name string) *big.Int {
	return new(big.Int).SetBytes([]byte(name))
}
