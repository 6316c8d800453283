package fhe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptInputRoundTrip(t *testing.T) {
	cp := NewInsecure()

	ct, proof, err := cp.EncryptInput(12345)
	require.NoError(t, err)
	require.NoError(t, cp.VerifyInput(ct, proof))

	v, err := cp.DebugDecrypt(ct)
	require.NoError(t, err)
	require.EqualValues(t, 12345, v.Uint64())
}

func TestVerifyInputRejectsTamperedProof(t *testing.T) {
	cp := NewInsecure()

	ct, proof, err := cp.EncryptInput(7)
	require.NoError(t, err)

	tampered := append([]byte(nil), proof...)
	tampered[0] ^= 0xff
	require.ErrorIs(t, cp.VerifyInput(ct, tampered), ErrProofInvalid)

	// Proof for one ciphertext must not verify against another.
	other, _, err := cp.EncryptInput(7)
	require.NoError(t, err)
	require.ErrorIs(t, cp.VerifyInput(other, proof), ErrProofInvalid)
}

func TestVerifyInputRejectsForeignHandle(t *testing.T) {
	cp := NewInsecure()
	forged := &Ciphertext{Handle: []byte{1, 2, 3}}
	require.ErrorIs(t, cp.VerifyInput(forged, nil), ErrProofInvalid)
}

func TestHomomorphicArithmetic(t *testing.T) {
	cp := NewInsecure()
	a, _, err := cp.EncryptInput(100)
	require.NoError(t, err)
	b, _, err := cp.EncryptInput(30)
	require.NoError(t, err)

	sum, err := cp.Add(a, b)
	require.NoError(t, err)
	diff, err := cp.Sub(a, b)
	require.NoError(t, err)
	prod, err := cp.Mul(a, b)
	require.NoError(t, err)
	min, err := cp.Min(a, b)
	require.NoError(t, err)

	for ct, want := range map[*Ciphertext]uint64{sum: 130, diff: 70, prod: 3000, min: 30} {
		v, err := cp.DebugDecrypt(ct)
		require.NoError(t, err)
		require.Equal(t, want, v.Uint64())
	}

	// Result handles are fresh, never operand handles.
	require.NotEqual(t, a.Hex(), sum.Hex())
	require.NotEqual(t, b.Hex(), sum.Hex())

	_, err = cp.Sub(b, a)
	require.Error(t, err, "underflow must be rejected")
}

func TestCompareAndSelect(t *testing.T) {
	cp := NewInsecure()
	a, _, _ := cp.EncryptInput(5)
	b, _, _ := cp.EncryptInput(9)

	lt, err := cp.Lt(a, b)
	require.NoError(t, err)
	ok, err := cp.DecryptBool(lt)
	require.NoError(t, err)
	require.True(t, ok)

	gt, err := cp.Gt(a, b)
	require.NoError(t, err)
	ok, err = cp.DecryptBool(gt)
	require.NoError(t, err)
	require.False(t, ok)

	picked, err := cp.Select(lt, a, b)
	require.NoError(t, err)
	v, err := cp.DebugDecrypt(picked)
	require.NoError(t, err)
	require.EqualValues(t, 5, v.Uint64())

	picked, err = cp.Select(gt, a, b)
	require.NoError(t, err)
	v, err = cp.DebugDecrypt(picked)
	require.NoError(t, err)
	require.EqualValues(t, 9, v.Uint64())
}

func TestDecryptBoolRefusesMagnitudes(t *testing.T) {
	cp := NewInsecure()
	a, _, _ := cp.EncryptInput(1)
	// The value happens to be a valid bit, but the handle was not produced by
	// a comparison, so the gateway must refuse.
	_, err := cp.DecryptBool(&EncryptedBool{Ciphertext: *a})
	require.ErrorIs(t, err, ErrNotBoolean)
}

func TestUnknownHandleRejected(t *testing.T) {
	cp := NewInsecure()
	a, _, _ := cp.EncryptInput(1)
	forged := &Ciphertext{Handle: []byte("nonsense")}
	_, err := cp.Add(a, forged)
	require.ErrorIs(t, err, ErrUnknownHandle)
}

func TestSelectiveDisclosure(t *testing.T) {
	cp := NewInsecure()

	keys, err := GenerateDHKeyPair()
	require.NoError(t, err)
	cp.RegisterRecipient("alice", keys.Pk)

	ct, _, err := cp.EncryptInput(424242)
	require.NoError(t, err)

	_, err = cp.RequestDisclosure(ct, "mallory")
	require.ErrorIs(t, err, ErrUnknownRecipient)

	req, err := cp.RequestDisclosure(ct, "alice")
	require.NoError(t, err)
	require.False(t, req.Resolved)
	require.Len(t, cp.PendingDisclosures(), 1)

	n, err := cp.ResolvePending()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Empty(t, cp.PendingDisclosures())

	v, err := OpenDisclosure(req, keys.Sk)
	require.NoError(t, err)
	require.EqualValues(t, 424242, v.Uint64())

	// A different scalar must not open the payload to the right value.
	wrong, err := GenerateDHKeyPair()
	require.NoError(t, err)
	v, err = OpenDisclosure(req, wrong.Sk)
	require.NoError(t, err)
	require.NotEqual(t, uint64(424242), v.Uint64())
}
