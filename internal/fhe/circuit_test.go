package fhe

import (
	"os"
	"path/filepath"
	"testing"
)

// TestGroth16InputProofEndToEnd exercises the real proving path: compile the
// circuit, set up keys, prove an input and verify it. Slow (Groth16 setup on
// BW6-761), so it is skipped in -short runs.
func TestGroth16InputProofEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Groth16 setup in -short mode")
	}

	keyDir := filepath.Join(t.TempDir(), "keys")
	cp, err := NewCoprocessor(keyDir)
	if err != nil {
		t.Fatalf("NewCoprocessor failed: %v", err)
	}

	ct, proof, err := cp.EncryptInput(987654321)
	if err != nil {
		t.Fatalf("EncryptInput failed: %v", err)
	}
	if err := cp.VerifyInput(ct, proof); err != nil {
		t.Fatalf("VerifyInput failed: %v", err)
	}

	// Tampered proof bytes must not verify.
	tampered := append([]byte(nil), proof...)
	tampered[len(tampered)/2] ^= 0x01
	if err := cp.VerifyInput(ct, tampered); err == nil {
		t.Fatalf("tampered proof verified")
	}

	// A proof is bound to its handle: another ciphertext must reject it.
	other, _, err := cp.EncryptInput(987654321)
	if err != nil {
		t.Fatalf("EncryptInput failed: %v", err)
	}
	if err := cp.VerifyInput(other, proof); err == nil {
		t.Fatalf("proof verified against the wrong handle")
	}

	// Keys must have been cached for reuse.
	if _, err := os.Stat(filepath.Join(keyDir, "CircuitInput_pk.bin")); err != nil {
		t.Fatalf("proving key not cached: %v", err)
	}
}
