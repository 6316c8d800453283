// circuit.go - Groth16 input-validity circuit for encrypted bid values.
//
// The circuit proves that a public handle is a MiMC commitment to a private
// value within the 64-bit system range. Range-bounding every input keeps later
// homomorphic sums and products inside the field.

package fhe

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// RangeBits is the fixed system range bound: every encrypted input must
// provably fit in an unsigned 64-bit integer.
const RangeBits = 64

// CircuitInput proves knowledge of (Value, Blinding) such that
// Handle = MiMC(Value, Blinding) and Value < 2^RangeBits.
type CircuitInput struct {
	// Public
	Handle frontend.Variable `gnark:",public"`

	// Private
	Value    frontend.Variable
	Blinding frontend.Variable
}

func (c *CircuitInput) Define(api frontend.API) error {
	// (1) Range: decomposing into RangeBits bits constrains the value
	api.ToBinary(c.Value, RangeBits)

	// (2) Commitment
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	hasher.Write(c.Value)
	hasher.Write(c.Blinding)
	api.AssertIsEqual(c.Handle, hasher.Sum())
	return nil
}
