// Package crypto seals and opens Discord voice packets in place with
// XSalsa20-Poly1305, supporting the three nonce schemes the voice gateway
// negotiates.
package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// KeySize is the secret key length handed over by the voice gateway.
	KeySize = 32
	// NonceSize is the XSalsa20 nonce length.
	NonceSize = 24
	// TagSize is the Poly1305 authentication tag length, placed at the start
	// of the sealed payload.
	TagSize = secretbox.Overhead
)

var (
	// ErrTooSmall is returned when a packet cannot hold the tag and nonce
	// bytes its mode requires.
	ErrTooSmall = errors.New("packet too small for crypto mode")
	// ErrDecryptionFailed is returned when the Poly1305 tag does not verify.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Mode selects how the nonce of each packet is derived.
type Mode int

const (
	// Normal derives the nonce from the 12-byte RTP header, zero-padded. No
	// extra bytes travel on the wire.
	Normal Mode = iota
	// Suffix appends a random 24-byte nonce to each packet.
	Suffix
	// Lite appends a 4-byte big-endian wrapping counter to each packet.
	Lite
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "xsalsa20_poly1305"
	case Suffix:
		return "xsalsa20_poly1305_suffix"
	case Lite:
		return "xsalsa20_poly1305_lite"
	default:
		return "unknown"
	}
}

// TrailerSize returns the number of nonce bytes appended after the payload.
func (m Mode) TrailerSize() int {
	switch m {
	case Suffix:
		return NonceSize
	case Lite:
		return 4
	default:
		return 0
	}
}

// State carries the session key and, for Lite, the wrapping nonce counter.
// A State belongs to exactly one mixer or receive task; it is not safe for
// concurrent use.
type State struct {
	mode    Mode
	key     [KeySize]byte
	counter uint32

	scratch []byte
}

// NewState builds crypto state for a session. The Lite counter starts at a
// random value.
func NewState(mode Mode, key [KeySize]byte) *State {
	s := &State{mode: mode, key: key}
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err == nil {
		s.counter = binary.BigEndian.Uint32(seed[:])
	}
	return s
}

// Mode returns the nonce scheme of this state.
func (s *State) Mode() Mode { return s.mode }

// EncryptInPlace seals a voice packet. packet[:headerLen] is the RTP header;
// the plaintext sits at packet[headerLen+TagSize : headerLen+TagSize+plainLen].
// On return the tag occupies packet[headerLen : headerLen+TagSize], the
// ciphertext follows it, mode trailer bytes (if any) come last, and the total
// packet length is returned.
func (s *State) EncryptInPlace(packet []byte, headerLen, plainLen int) (int, error) {
	total := headerLen + TagSize + plainLen + s.mode.TrailerSize()
	if len(packet) < total {
		return 0, ErrTooSmall
	}

	var nonce [NonceSize]byte
	body := packet[headerLen:]
	switch s.mode {
	case Normal:
		copy(nonce[:], packet[:headerLen])
	case Suffix:
		if _, err := rand.Read(nonce[:]); err != nil {
			return 0, err
		}
		copy(body[TagSize+plainLen:], nonce[:])
	case Lite:
		binary.BigEndian.PutUint32(nonce[:4], s.counter)
		binary.BigEndian.PutUint32(body[TagSize+plainLen:], s.counter)
		s.counter++ // wraps
	}

	// secretbox cannot seal overlapping buffers, so stage the plaintext.
	s.scratch = append(s.scratch[:0], body[TagSize:TagSize+plainLen]...)
	secretbox.Seal(packet[:headerLen], s.scratch, &nonce, &s.key)
	return total, nil
}

// DecryptInPlace opens a received packet, writing the plaintext back over the
// ciphertext region, and returns the recovered payload. headerLen is the RTP
// header length determined by the caller.
func (s *State) DecryptInPlace(packet []byte, headerLen int) ([]byte, error) {
	trailer := s.mode.TrailerSize()
	if len(packet) < headerLen+TagSize+trailer {
		return nil, ErrTooSmall
	}
	body := packet[headerLen : len(packet)-trailer]

	var nonce [NonceSize]byte
	switch s.mode {
	case Normal:
		copy(nonce[:], packet[:headerLen])
	case Suffix:
		copy(nonce[:], packet[len(packet)-NonceSize:])
	case Lite:
		copy(nonce[:4], packet[len(packet)-4:])
	}

	plain, ok := secretbox.Open(s.scratch[:0], body, &nonce, &s.key)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	s.scratch = plain[:len(plain):cap(plain)]
	n := copy(packet[headerLen+TagSize:], plain)
	return packet[headerLen+TagSize : headerLen+TagSize+n], nil
}
