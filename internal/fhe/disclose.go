// disclose.go - Selective disclosure of ciphertexts to authorized parties.
//
// Disclosure is asynchronous: the engine enqueues a request, an oracle pass
// resolves it by sealing the plaintext to the recipient's BLS12-377 DH public
// key, and the recipient opens the sealed payload out-of-band with their
// secret scalar. Only the intended recipient learns the value; the queue and
// events carry handles only.

package fhe

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	bls12377fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
	"github.com/google/uuid"
)

// ErrUnknownRecipient is returned when a disclosure targets an identity with
// no registered DH public key.
var ErrUnknownRecipient = errors.New("fhe: recipient has no registered disclosure key")

// ErrUnknownDisclosure is returned when a disclosure request id is not found.
var ErrUnknownDisclosure = errors.New("fhe: unknown disclosure request")

// DHKeyPair is a BLS12-377 keypair for disclosure key exchange.
type DHKeyPair struct {
	Sk *bls12377fr.Element
	Pk *bls12377.G1Affine
}

// GenerateDHKeyPair generates a random BLS12-377 keypair.
func GenerateDHKeyPair() (*DHKeyPair, error) {
	var sk bls12377fr.Element
	if _, err := sk.SetRandom(); err != nil {
		return nil, err
	}
	g1Jac, _, _, _ := bls12377.Generators()
	var pk bls12377.G1Affine
	pk.FromJacobian(&g1Jac)
	pk.ScalarMultiplication(&pk, sk.BigInt(new(big.Int)))
	return &DHKeyPair{Sk: &sk, Pk: &pk}, nil
}

// DisclosureRequest tracks one pending or resolved disclosure.
type DisclosureRequest struct {
	ID        string
	Handle    string
	Recipient string
	Resolved  bool

	// Set once resolved.
	EphemeralPub *bls12377.G1Affine
	Sealed       []byte
}

// PublicHex returns the compressed hex encoding of the public key, the form
// recipients submit when registering for disclosures.
func (kp *DHKeyPair) PublicHex() string {
	b := kp.Pk.Bytes()
	return hex.EncodeToString(b[:])
}

// ParseRecipientKey decodes a compressed BLS12-377 G1 public key from hex.
func ParseRecipientKey(s string) (*bls12377.G1Affine, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("fhe: recipient key: %w", err)
	}
	var pk bls12377.G1Affine
	if _, err := pk.SetBytes(raw); err != nil {
		return nil, fmt.Errorf("fhe: recipient key: %w", err)
	}
	return &pk, nil
}

// RegisterRecipient records an identity's DH public key for future disclosures.
func (cp *Coprocessor) RegisterRecipient(identity string, pk *bls12377.G1Affine) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.recipients[identity] = pk
}

// RequestDisclosure enqueues a disclosure of ct to recipient. The request is
// resolved asynchronously by ResolvePending.
func (cp *Coprocessor) RequestDisclosure(ct *Ciphertext, recipient string) (*DisclosureRequest, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if _, ok := cp.store[ct.Hex()]; !ok {
		return nil, ErrUnknownHandle
	}
	if _, ok := cp.recipients[recipient]; !ok {
		return nil, ErrUnknownRecipient
	}
	req := &DisclosureRequest{
		ID:        uuid.New().String(),
		Handle:    ct.Hex(),
		Recipient: recipient,
	}
	cp.pending = append(cp.pending, req)
	return req, nil
}

// Disclosure returns a disclosure request by id, resolved or not.
func (cp *Coprocessor) Disclosure(id string) (*DisclosureRequest, error) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	for _, r := range cp.pending {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, ErrUnknownDisclosure
}

// PendingDisclosures returns the requests not yet resolved.
func (cp *Coprocessor) PendingDisclosures() []*DisclosureRequest {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	var out []*DisclosureRequest
	for _, r := range cp.pending {
		if !r.Resolved {
			out = append(out, r)
		}
	}
	return out
}

// ResolvePending runs one oracle pass: every pending request gets its value
// sealed to the recipient's DH key under a fresh ephemeral keypair. Returns
// the number of requests resolved.
func (cp *Coprocessor) ResolvePending() (int, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	resolved := 0
	for _, req := range cp.pending {
		if req.Resolved {
			continue
		}
		value, ok := cp.store[req.Handle]
		if !ok {
			return resolved, ErrUnknownHandle
		}
		recipientPk := cp.recipients[req.Recipient]
		eph, err := GenerateDHKeyPair()
		if err != nil {
			return resolved, err
		}
		var shared bls12377.G1Affine
		shared.ScalarMultiplication(recipientPk, eph.Sk.BigInt(new(big.Int)))
		mask := sharedMask(&shared)
		req.Sealed = xorPad(value.FillBytes(make([]byte, len(mask))), mask)
		req.EphemeralPub = eph.Pk
		req.Resolved = true
		resolved++
	}
	return resolved, nil
}

// OpenDisclosure is the recipient side: recompute the shared secret from the
// ephemeral public key and unseal the value.
func OpenDisclosure(req *DisclosureRequest, sk *bls12377fr.Element) (*big.Int, error) {
	if !req.Resolved {
		return nil, errors.New("fhe: disclosure not yet resolved")
	}
	var shared bls12377.G1Affine
	shared.ScalarMultiplication(req.EphemeralPub, sk.BigInt(new(big.Int)))
	plain := xorPad(req.Sealed, sharedMask(&shared))
	return new(big.Int).SetBytes(plain), nil
}

// sharedMask derives the sealing mask from a DH shared point with MiMC.
func sharedMask(shared *bls12377.G1Affine) []byte {
	h := mimcNative.NewMiMC()
	x := shared.X.Bytes()
	y := shared.Y.Bytes()
	h.Write(x[:])
	h.Write(y[:])
	return h.Sum(nil)
}

// xorPad xors two byte slices, padding the shorter one with zeros.
func xorPad(a, b []byte) []byte {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	out := make([]byte, maxLen)
	for i := 0; i < maxLen; i++ {
		var ab, bb byte
		if i < len(a) {
			ab = a[i]
		}
		if i < len(b) {
			bb = b[i]
		}
		out[i] = ab ^ bb
	}
	return out
}
