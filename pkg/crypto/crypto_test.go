package crypto_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raikerian/go-discord-voice/pkg/crypto"
)

const headerLen = 12

func testKey() [crypto.KeySize]byte {
	var key [crypto.KeySize]byte
	for i := range key {
		key[i] = byte(i * 7)
	}
	return key
}

func buildPacket(mode crypto.Mode, payload []byte) []byte {
	pkt := make([]byte, headerLen+crypto.TagSize+len(payload)+mode.TrailerSize())
	for i := 0; i < headerLen; i++ {
		pkt[i] = byte(0x80 + i)
	}
	copy(pkt[headerLen+crypto.TagSize:], payload)
	return pkt
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	payload := []byte("not quite opus, but close enough for poly1305")

	for _, mode := range []crypto.Mode{crypto.Normal, crypto.Suffix, crypto.Lite} {
		t.Run(mode.String(), func(t *testing.T) {
			key := testKey()
			enc := crypto.NewState(mode, key)
			dec := crypto.NewState(mode, key)

			pkt := buildPacket(mode, payload)
			total, err := enc.EncryptInPlace(pkt, headerLen, len(payload))
			require.NoError(t, err)
			assert.Equal(t, len(pkt), total)

			// Ciphertext must differ from the plaintext.
			assert.NotEqual(t, payload, pkt[headerLen+crypto.TagSize:headerLen+crypto.TagSize+len(payload)])

			plain, err := dec.DecryptInPlace(pkt[:total], headerLen)
			require.NoError(t, err)
			assert.Equal(t, payload, plain)
		})
	}
}

func TestDecryptRejectsTamperedPacket(t *testing.T) {
	key := testKey()
	enc := crypto.NewState(crypto.Normal, key)
	dec := crypto.NewState(crypto.Normal, key)

	payload := []byte{1, 2, 3, 4, 5}
	pkt := buildPacket(crypto.Normal, payload)
	total, err := enc.EncryptInPlace(pkt, headerLen, len(payload))
	require.NoError(t, err)

	pkt[headerLen+crypto.TagSize] ^= 0xFF
	_, err = dec.DecryptInPlace(pkt[:total], headerLen)
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	enc := crypto.NewState(crypto.Suffix, testKey())
	var otherKey [crypto.KeySize]byte
	dec := crypto.NewState(crypto.Suffix, otherKey)

	payload := []byte{9, 9, 9}
	pkt := buildPacket(crypto.Suffix, payload)
	total, err := enc.EncryptInPlace(pkt, headerLen, len(payload))
	require.NoError(t, err)

	_, err = dec.DecryptInPlace(pkt[:total], headerLen)
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

func TestTooSmallPackets(t *testing.T) {
	s := crypto.NewState(crypto.Lite, testKey())

	_, err := s.EncryptInPlace(make([]byte, headerLen+crypto.TagSize), headerLen, 64)
	assert.ErrorIs(t, err, crypto.ErrTooSmall)

	_, err = s.DecryptInPlace(make([]byte, headerLen+3), headerLen)
	assert.ErrorIs(t, err, crypto.ErrTooSmall)
}

func TestLiteCounterAdvances(t *testing.T) {
	key := testKey()
	enc := crypto.NewState(crypto.Lite, key)

	payload := []byte{0xAA, 0xBB}
	read := func() uint32 {
		pkt := buildPacket(crypto.Lite, payload)
		total, err := enc.EncryptInPlace(pkt, headerLen, len(payload))
		require.NoError(t, err)
		return binary.BigEndian.Uint32(pkt[total-4:])
	}

	first := read()
	second := read()
	assert.Equal(t, first+1, second)
}

func TestNormalModeHasNoTrailer(t *testing.T) {
	assert.Equal(t, 0, crypto.Normal.TrailerSize())
	assert.Equal(t, crypto.NonceSize, crypto.Suffix.TrailerSize())
	assert.Equal(t, 4, crypto.Lite.TrailerSize())
}

func TestSuffixNoncesAreUnique(t *testing.T) {
	enc := crypto.NewState(crypto.Suffix, testKey())
	payload := []byte{1}

	zero := string(make([]byte, crypto.NonceSize))
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		pkt := buildPacket(crypto.Suffix, payload)
		total, err := enc.EncryptInPlace(pkt, headerLen, len(payload))
		require.NoError(t, err)
		nonce := string(pkt[total-crypto.NonceSize:])
		assert.False(t, seen[nonce], "nonce reused")
		assert.NotEqual(t, zero, nonce)
		seen[nonce] = true
	}
}
