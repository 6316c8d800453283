// coprocessor.go - Homomorphic operations over ciphertext handles.
//
// The Coprocessor owns the confidential store mapping handles to plaintexts
// and exposes the fixed operation set the engine is allowed to use. Every
// operation derives a fresh handle, so the public record only ever carries
// opaque references. Operation shape never depends on stored values; the one
// value-dependent escape hatch is DecryptBool, restricted to one-bit
// predicates.

package fhe

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark-crypto/ecc/bw6-761/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
)

var (
	// ErrUnknownHandle is returned when an operand handle was never issued by
	// this coprocessor.
	ErrUnknownHandle = errors.New("fhe: unknown ciphertext handle")
	// ErrProofInvalid is returned when an input proof fails verification.
	ErrProofInvalid = errors.New("fhe: input proof verification failed")
	// ErrNotBoolean is returned when DecryptBool is asked about a ciphertext
	// that is not a comparison result.
	ErrNotBoolean = errors.New("fhe: ciphertext is not an encrypted boolean")
)

// insecureOpeningLen is the wire size of a bare commitment opening:
// a 48-byte fr element (blinding) followed by an 8-byte big-endian value.
const insecureOpeningLen = fr.Bytes + 8

// Coprocessor holds the confidential store and verification keys. It stands in
// for the external threshold network; nothing outside this package reads the
// store.
type Coprocessor struct {
	mu       sync.RWMutex
	store    map[string]*big.Int
	boolSet  map[string]bool
	opCount  uint64
	insecure bool

	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey

	recipients map[string]*bls12377.G1Affine
	pending    []*DisclosureRequest
}

// NewCoprocessor builds a coprocessor with full Groth16 input verification.
// Keys are loaded from keyDir or generated on first use.
func NewCoprocessor(keyDir string) (*Coprocessor, error) {
	ccs, err := CompileInputCircuit()
	if err != nil {
		return nil, fmt.Errorf("compile input circuit: %w", err)
	}
	pk, vk, err := SetupOrLoadKeys(ccs, keyDir)
	if err != nil {
		return nil, fmt.Errorf("input circuit key setup: %w", err)
	}
	cp := newStore()
	cp.ccs = ccs
	cp.pk = pk
	cp.vk = vk
	return cp, nil
}

// NewInsecure builds a coprocessor whose input proofs are bare commitment
// openings instead of Groth16 proofs. Tests and local development only.
func NewInsecure() *Coprocessor {
	cp := newStore()
	cp.insecure = true
	return cp
}

func newStore() *Coprocessor {
	return &Coprocessor{
		store:      make(map[string]*big.Int),
		boolSet:    make(map[string]bool),
		recipients: make(map[string]*bls12377.G1Affine),
	}
}

// OpCount reports how many homomorphic operations have been executed. Used by
// metrics and by tests asserting the clearing circuit has a fixed shape.
func (cp *Coprocessor) OpCount() uint64 {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	return cp.opCount
}

// EncryptInput places value in the confidential store and returns the
// ciphertext together with a validity proof for the 64-bit range bound.
// This is the client-side entry point (wallet collaborator, tests).
func (cp *Coprocessor) EncryptInput(value uint64) (*Ciphertext, []byte, error) {
	var blinding fr.Element
	if _, err := blinding.SetRandom(); err != nil {
		return nil, nil, err
	}
	blindingInt := blinding.BigInt(new(big.Int))
	v := new(big.Int).SetUint64(value)
	handle := mimcSum(v, blindingInt)

	ct := &Ciphertext{Handle: handle}
	cp.register(ct, v, false)

	if cp.insecure {
		opening := make([]byte, 0, insecureOpeningLen)
		bb := blinding.Bytes()
		opening = append(opening, bb[:]...)
		opening = binary.BigEndian.AppendUint64(opening, value)
		return ct, opening, nil
	}

	assignment := &CircuitInput{
		Handle:   new(big.Int).SetBytes(handle),
		Value:    v,
		Blinding: blindingInt,
	}
	witness, err := frontend.NewWitness(assignment, ecc.BW6_761.ScalarField())
	if err != nil {
		return nil, nil, err
	}
	proof, err := groth16.Prove(cp.ccs, cp.pk, witness)
	if err != nil {
		return nil, nil, err
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, nil, err
	}
	return ct, buf.Bytes(), nil
}

// VerifyInput checks a ciphertext+proof pair: the proof must certify that the
// handle commits to a value in [0, 2^RangeBits). The ciphertext material must
// also be present in the store, i.e. it was produced through EncryptInput.
func (cp *Coprocessor) VerifyInput(ct *Ciphertext, proof []byte) error {
	if ct == nil || len(ct.Handle) == 0 {
		return ErrProofInvalid
	}
	if _, err := cp.lookup(ct); err != nil {
		return ErrProofInvalid
	}

	if cp.insecure {
		if len(proof) != insecureOpeningLen {
			return ErrProofInvalid
		}
		blinding := new(big.Int).SetBytes(proof[:fr.Bytes])
		value := binary.BigEndian.Uint64(proof[fr.Bytes:])
		recomputed := mimcSum(new(big.Int).SetUint64(value), blinding)
		if !bytes.Equal(recomputed, ct.Handle) {
			return ErrProofInvalid
		}
		return nil
	}

	g16Proof := groth16.NewProof(ecc.BW6_761)
	if _, err := g16Proof.ReadFrom(bytes.NewReader(proof)); err != nil {
		return ErrProofInvalid
	}
	public := &CircuitInput{Handle: new(big.Int).SetBytes(ct.Handle)}
	w, err := frontend.NewWitness(public, ecc.BW6_761.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return ErrProofInvalid
	}
	if err := groth16.Verify(g16Proof, cp.vk, w); err != nil {
		return ErrProofInvalid
	}
	return nil
}

// TrivialEncrypt lifts a public constant into the ciphertext domain.
func (cp *Coprocessor) TrivialEncrypt(value uint64) *Ciphertext {
	return cp.derive("trivial", new(big.Int).SetUint64(value), false)
}

// Add returns a ciphertext of a+b.
func (cp *Coprocessor) Add(a, b *Ciphertext) (*Ciphertext, error) {
	return cp.binOp("add", a, b, func(x, y *big.Int) (*big.Int, error) {
		return new(big.Int).Add(x, y), nil
	})
}

// Sub returns a ciphertext of a-b. Callers must have established a >= b
// through a prior comparison; an underflow is a programming error.
func (cp *Coprocessor) Sub(a, b *Ciphertext) (*Ciphertext, error) {
	return cp.binOp("sub", a, b, func(x, y *big.Int) (*big.Int, error) {
		if x.Cmp(y) < 0 {
			return nil, errors.New("fhe: homomorphic subtraction underflow")
		}
		return new(big.Int).Sub(x, y), nil
	})
}

// Mul returns a ciphertext of a*b.
func (cp *Coprocessor) Mul(a, b *Ciphertext) (*Ciphertext, error) {
	return cp.binOp("mul", a, b, func(x, y *big.Int) (*big.Int, error) {
		return new(big.Int).Mul(x, y), nil
	})
}

// Min returns a ciphertext of min(a, b).
func (cp *Coprocessor) Min(a, b *Ciphertext) (*Ciphertext, error) {
	return cp.binOp("min", a, b, func(x, y *big.Int) (*big.Int, error) {
		if x.Cmp(y) <= 0 {
			return new(big.Int).Set(x), nil
		}
		return new(big.Int).Set(y), nil
	})
}

// Lt returns an encrypted boolean of a < b.
func (cp *Coprocessor) Lt(a, b *Ciphertext) (*EncryptedBool, error) {
	return cp.cmpOp("lt", a, b, func(c int) bool { return c < 0 })
}

// Le returns an encrypted boolean of a <= b.
func (cp *Coprocessor) Le(a, b *Ciphertext) (*EncryptedBool, error) {
	return cp.cmpOp("le", a, b, func(c int) bool { return c <= 0 })
}

// Gt returns an encrypted boolean of a > b.
func (cp *Coprocessor) Gt(a, b *Ciphertext) (*EncryptedBool, error) {
	return cp.cmpOp("gt", a, b, func(c int) bool { return c > 0 })
}

// Eq returns an encrypted boolean of a == b.
func (cp *Coprocessor) Eq(a, b *Ciphertext) (*EncryptedBool, error) {
	return cp.cmpOp("eq", a, b, func(c int) bool { return c == 0 })
}

// Select returns a ciphertext of (cond ? a : b). The oblivious multiplexer at
// the heart of the sorting network and the greedy fill.
func (cp *Coprocessor) Select(cond *EncryptedBool, a, b *Ciphertext) (*Ciphertext, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cv, err := cp.lookupLocked(&cond.Ciphertext)
	if err != nil {
		return nil, err
	}
	av, err := cp.lookupLocked(a)
	if err != nil {
		return nil, err
	}
	bv, err := cp.lookupLocked(b)
	if err != nil {
		return nil, err
	}
	out := bv
	if cv.Sign() != 0 {
		out = av
	}
	return cp.deriveLocked("select", new(big.Int).Set(out), false, cond.Handle, a.Handle, b.Handle), nil
}

// DecryptBool is the gateway decryption of a one-bit predicate. It refuses to
// decrypt anything but comparison results.
func (cp *Coprocessor) DecryptBool(cond *EncryptedBool) (bool, error) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	key := cond.Hex()
	if !cp.boolSet[key] {
		return false, ErrNotBoolean
	}
	v, ok := cp.store[key]
	if !ok {
		return false, ErrUnknownHandle
	}
	return v.Sign() != 0, nil
}

// DebugDecrypt reveals the plaintext behind a handle. Test and diagnostics
// hook, the in-process analogue of a test network's debug decryption; never
// called from engine code.
func (cp *Coprocessor) DebugDecrypt(ct *Ciphertext) (*big.Int, error) {
	return cp.lookup(ct)
}

func (cp *Coprocessor) binOp(tag string, a, b *Ciphertext, f func(x, y *big.Int) (*big.Int, error)) (*Ciphertext, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	av, err := cp.lookupLocked(a)
	if err != nil {
		return nil, err
	}
	bv, err := cp.lookupLocked(b)
	if err != nil {
		return nil, err
	}
	out, err := f(av, bv)
	if err != nil {
		return nil, err
	}
	return cp.deriveLocked(tag, out, false, a.Handle, b.Handle), nil
}

func (cp *Coprocessor) cmpOp(tag string, a, b *Ciphertext, f func(c int) bool) (*EncryptedBool, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	av, err := cp.lookupLocked(a)
	if err != nil {
		return nil, err
	}
	bv, err := cp.lookupLocked(b)
	if err != nil {
		return nil, err
	}
	out := big.NewInt(0)
	if f(av.Cmp(bv)) {
		out = big.NewInt(1)
	}
	ct := cp.deriveLocked(tag, out, true, a.Handle, b.Handle)
	return &EncryptedBool{Ciphertext: *ct}, nil
}

func (cp *Coprocessor) lookup(ct *Ciphertext) (*big.Int, error) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	return cp.lookupLocked(ct)
}

func (cp *Coprocessor) lookupLocked(ct *Ciphertext) (*big.Int, error) {
	if ct == nil {
		return nil, ErrUnknownHandle
	}
	v, ok := cp.store[ct.Hex()]
	if !ok {
		return nil, ErrUnknownHandle
	}
	return v, nil
}

func (cp *Coprocessor) register(ct *Ciphertext, v *big.Int, isBool bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.store[ct.Hex()] = v
	if isBool {
		cp.boolSet[ct.Hex()] = true
	}
}

func (cp *Coprocessor) derive(tag string, v *big.Int, isBool bool, parents ...[]byte) *Ciphertext {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.deriveLocked(tag, v, isBool, parents...)
}

// deriveLocked mints a fresh handle bound to the operation and its operands.
// A random nonce keeps handles unique even for identical operand pairs.
func (cp *Coprocessor) deriveLocked(tag string, v *big.Int, isBool bool, parents ...[]byte) *Ciphertext {
	nonce := make([]byte, 16)
	rand.Read(nonce)
	chunks := []*big.Int{opTag(tag)}
	for _, p := range parents {
		chunks = append(chunks, new(big.Int).SetBytes(p))
	}
	chunks = append(chunks, new(big.Int).SetBytes(nonce))
	handle := mimcSum(chunks...)
	ct := &Ciphertext{Handle: handle}
	cp.store[ct.Hex()] = v
	if isBool {
		cp.boolSet[ct.Hex()] = true
	}
	cp.opCount++
	return ct
}
