// Package manifest defines the per-file descriptor emitted by an upload.
// Persisting it is the caller's responsibility; without it a stored file
// cannot be found or decrypted.
package manifest

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/halcyonfs/braid/chunk"
)

// StoredFile locates and opens the head of a file's chunk chain. Every later
// chunk is reached by following the links embedded in decrypted headers.
type StoredFile struct {
	// FirstName is the name of chunk 0's encrypted blob.
	FirstName chunk.Name
	// Encryption opens chunk 0's blob.
	Encryption chunk.CipherMaterial
	// ChunkCount is the number of chunks in the chain.
	ChunkCount uint64
}

// wire is the msgpack form; fixed-size arrays travel as raw byte strings.
type wire struct {
	FirstName  []byte `msgpack:"first_name"`
	Tag        []byte `msgpack:"tag"`
	Nonce      []byte `msgpack:"nonce"`
	Key        []byte `msgpack:"key"`
	ChunkCount uint64 `msgpack:"chunk_count"`
}

// Save writes the msgpack encoding of f to w.
func (f *StoredFile) Save(w io.Writer) error {
	v := wire{
		FirstName:  f.FirstName[:],
		Tag:        f.Encryption.Tag[:],
		Nonce:      f.Encryption.Nonce[:],
		Key:        f.Encryption.Key[:],
		ChunkCount: f.ChunkCount,
	}
	if err := msgpack.NewEncoder(w).Encode(&v); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return nil
}

// Load reads a msgpack-encoded StoredFile from r.
func Load(r io.Reader) (*StoredFile, error) {
	var v wire
	if err := msgpack.NewDecoder(r).Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if len(v.FirstName) != chunk.DigestSize || len(v.Tag) != chunk.TagSize ||
		len(v.Nonce) != chunk.NonceSize || len(v.Key) != chunk.KeySize {
		return nil, fmt.Errorf("manifest field size mismatch")
	}

	f := &StoredFile{ChunkCount: v.ChunkCount}
	copy(f.FirstName[:], v.FirstName)
	copy(f.Encryption.Tag[:], v.Tag)
	copy(f.Encryption.Nonce[:], v.Nonce)
	copy(f.Encryption.Key[:], v.Key)
	return f, nil
}
