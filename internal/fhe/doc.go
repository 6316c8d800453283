// Package fhe implements the confidential-computation coprocessor consumed by
// the auction engine.
//
// Overview:
//   - Values live behind opaque ciphertext handles; business logic never sees
//     raw plaintext, only the operations {verify, add, sub, mul, min, compare,
//     select, disclose}
//   - Input ciphertexts carry a validity proof that the committed value lies in
//     the 64-bit system range, so later homomorphic aggregation cannot overflow
//   - Proofs are Groth16 over BW6-761 (gnark) against a MiMC commitment circuit
//   - Selective disclosure seals a plaintext to a recipient's BLS12-377 DH
//     public key; the recipient opens it with their secret scalar out-of-band
//
// Security Model:
//   - The Coprocessor stands in for the threshold network that holds the
//     confidential store; it is the only component with plaintext access
//   - One-bit predicates (balance checks, winner flags) may be decrypted
//     through DecryptBool, mirroring a gateway decryption; magnitudes may not
//   - All randomness comes from crypto/rand
//
// The insecure constructor replaces the Groth16 proof with a bare commitment
// opening. It exists for tests and local development only.
package fhe
