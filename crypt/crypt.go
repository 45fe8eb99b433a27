// Package crypt seals and opens chunk blobs with AES-256-GCM and provides
// the pipeline's nonce source. A blob is sealed in one shot so the
// authentication tag and the blob name cover the whole chunk.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/halcyonfs/braid/chunk"
)

var (
	ErrInvalidKeyLength = errors.New("key must be 32 bytes long")
	ErrAuthFailed       = errors.New("blob authentication failed")
)

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != chunk.KeySize {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES-GCM: %v", err)
	}
	return gcm, nil
}

// Seal encrypts plain into dst and returns the ciphertext blob (same length
// as plain) and the detached authentication tag. dst is reused when it has
// capacity for len(plain)+chunk.TagSize bytes, otherwise a new buffer is
// allocated; the associated data is empty.
func Seal(dst, plain, key []byte, nonce [chunk.NonceSize]byte) ([]byte, [chunk.TagSize]byte, error) {
	var tag [chunk.TagSize]byte

	gcm, err := newGCM(key)
	if err != nil {
		return nil, tag, err
	}

	sealed := gcm.Seal(dst[:0], nonce[:], plain, nil)
	blob := sealed[:len(plain)]
	copy(tag[:], sealed[len(plain):])
	return blob, tag, nil
}

// Open decrypts a blob sealed by Seal, verifying the detached tag. The blob
// and tag are copied into dst before opening; dst is reused when it has
// capacity for len(blob)+chunk.TagSize bytes, otherwise a new buffer is
// allocated. Returns the plaintext, which aliases that buffer.
func Open(dst, blob, key []byte, material chunk.CipherMaterial) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := dst[:0]
	sealed = append(sealed, blob...)
	sealed = append(sealed, material.Tag[:]...)
	plain, err := gcm.Open(sealed[:0], material.Nonce[:], sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return plain, nil
}

// NonceSource produces unique 12-byte GCM nonces: a 64-bit monotonically
// increasing counter (wrapping) followed by 4 bytes of fresh randomness. The
// random suffix makes a repeated nonce after the counter wraps unlikely, not
// impossible. Safe for concurrent use.
type NonceSource struct {
	counter uint64
}

// NewNonceSource returns a NonceSource whose counter starts at a random
// offset.
func NewNonceSource() (*NonceSource, error) {
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("failed to seed nonce counter: %v", err)
	}
	return &NonceSource{counter: binary.BigEndian.Uint64(seed[:])}, nil
}

// Next returns a fresh nonce.
func (s *NonceSource) Next() ([chunk.NonceSize]byte, error) {
	var nonce [chunk.NonceSize]byte
	binary.BigEndian.PutUint64(nonce[:8], atomic.AddUint64(&s.counter, 1))
	if _, err := rand.Read(nonce[8:]); err != nil {
		return nonce, fmt.Errorf("failed to read nonce suffix: %v", err)
	}
	return nonce, nil
}
