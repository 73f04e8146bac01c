package transform

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer is the CRYPT-flag hook: AEAD seal/open of a frame payload keyed by
// a per-connection static key, with the nonce bound to msg_id and
// channel_id so no nonce is ever reused under one key (spec §4.4).
type Sealer interface {
	Seal(channelID uint32, msgID uint64, plaintext []byte) ([]byte, error)
	Open(channelID uint32, msgID uint64, ciphertext []byte) ([]byte, error)
}

// chachaSealer implements Sealer with ChaCha20-Poly1305, deriving each
// frame's 12-byte nonce from the first 12 bytes of
// HMAC-SHA256(staticKey, msg_id || channel_id).
type chachaSealer struct {
	staticKey [32]byte
	aead      interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
		Overhead() int
	}
}

// NewChaChaSealer builds a Sealer from a 32-byte static key.
func NewChaChaSealer(staticKey [32]byte) (Sealer, error) {
	aead, err := chacha20poly1305.New(staticKey[:])
	if err != nil {
		return nil, fmt.Errorf("transform: chacha20poly1305 init: %w", err)
	}
	return &chachaSealer{staticKey: staticKey, aead: aead}, nil
}

func (s *chachaSealer) nonce(channelID uint32, msgID uint64) []byte {
	var msg [12]byte
	binary.LittleEndian.PutUint64(msg[0:8], msgID)
	binary.LittleEndian.PutUint32(msg[8:12], channelID)

	mac := hmac.New(sha256.New, s.staticKey[:])
	mac.Write(msg[:])
	sum := mac.Sum(nil)
	return sum[:chacha20poly1305.NonceSize]
}

func (s *chachaSealer) Seal(channelID uint32, msgID uint64, plaintext []byte) ([]byte, error) {
	nonce := s.nonce(channelID, msgID)
	return s.aead.Seal(nil, nonce, plaintext, nil), nil
}

func (s *chachaSealer) Open(channelID uint32, msgID uint64, ciphertext []byte) ([]byte, error) {
	nonce := s.nonce(channelID, msgID)
	out, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("transform: chacha20poly1305 open: %w", err)
	}
	return out, nil
}

// ConstantTimeEqual compares two byte slices in constant time (mirrors
// the teacher's CompareAPIKeys). The session handshake does not call it:
// HELLO/CAPS carry no AEAD key fingerprint.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
