// Package chunk defines the fixed chunk format: the plaintext chunk size, the
// header that prefixes every chunk, and the derived names of encrypted chunk
// blobs.
package chunk

import (
	"crypto/sha256"
	"encoding"
	"encoding/hex"
	"errors"
)

const (
	// Size is the number of plaintext payload bytes per chunk. The last
	// chunk of a file may be shorter.
	Size = 64 << 10

	// DigestSize is the size of a SHA-256 digest.
	DigestSize = sha256.Size

	// TagSize is the size of an AES-GCM authentication tag.
	TagSize = 16
	// NonceSize is the size of an AES-GCM nonce.
	NonceSize = 12
	// KeySize is the size of an AES-256 key.
	KeySize = 32

	// HeaderSize is the size of a marshalled Header. The fields are packed
	// in order with no padding.
	HeaderSize = 3*DigestSize + TagSize + NonceSize + KeySize
)

var (
	ErrInvalidHeaderSize = errors.New("invalid header size")
)

// Name identifies an encrypted chunk blob: the SHA-256 of its ciphertext.
// It doubles as the object key under each bucket.
type Name [DigestSize]byte

// NameOf computes the name of an encrypted blob.
func NameOf(blob []byte) Name {
	return sha256.Sum256(blob)
}

// String returns the hex form used as the bucket object key.
func (n Name) String() string {
	return hex.EncodeToString(n[:])
}

// IsZero reports whether the name is all zero, the terminal-link marker.
func (n Name) IsZero() bool {
	return n == Name{}
}

// CipherMaterial carries everything needed to open one encrypted chunk blob.
type CipherMaterial struct {
	Tag   [TagSize]byte
	Nonce [NonceSize]byte
	Key   [KeySize]byte
}

// Link names the next chunk in a file's chain together with the material
// that decrypts it. A zero Link marks the last chunk.
type Link struct {
	// Name is the SHA-256 of the next chunk's encrypted blob.
	Name Name
	// Material decrypts the next chunk's blob.
	Material CipherMaterial
}

// Header is the fixed-size record placed in front of each chunk's payload
// before encryption. Headers are finalized back to front: the header of chunk
// i embeds the name and cipher material of chunk i+1, which only exist once
// chunk i+1 has been encrypted.
type Header struct {
	// PayloadDigest is the SHA-256 of this chunk's plaintext payload.
	PayloadDigest [DigestSize]byte
	// FileDigest is the SHA-256 over the concatenated plaintext of all
	// chunks. Nonzero only in the first chunk.
	FileDigest [DigestSize]byte
	// Next links to the following chunk; zero in the last chunk.
	Next Link
}

var _ encoding.BinaryMarshaler = (*Header)(nil)
var _ encoding.BinaryUnmarshaler = (*Header)(nil)

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (h *Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderSize)
	n := copy(b, h.PayloadDigest[:])
	n += copy(b[n:], h.FileDigest[:])
	n += copy(b[n:], h.Next.Name[:])
	n += copy(b[n:], h.Next.Material.Tag[:])
	n += copy(b[n:], h.Next.Material.Nonce[:])
	copy(b[n:], h.Next.Material.Key[:])
	return b, nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return ErrInvalidHeaderSize
	}
	n := copy(h.PayloadDigest[:], data)
	n += copy(h.FileDigest[:], data[n:])
	n += copy(h.Next.Name[:], data[n:])
	n += copy(h.Next.Material.Tag[:], data[n:])
	n += copy(h.Next.Material.Nonce[:], data[n:])
	copy(h.Next.Material.Key[:], data[n:])
	return nil
}

// Count returns the number of chunks needed to hold size plaintext bytes.
// Every file has at least one chunk, so an empty file still produces a single
// chunk with an empty payload.
func Count(size int64) uint64 {
	if size <= 0 {
		return 1
	}
	return uint64((size + Size - 1) / Size)
}

// StartOffset returns the plaintext offset of chunk i.
func StartOffset(i uint64) int64 {
	return int64(i) * Size
}

// PayloadLen returns the payload length of chunk i of a size-byte file.
func PayloadLen(i uint64, size int64) int {
	if off := StartOffset(i); size-off < Size {
		return int(size - off)
	}
	return Size
}
