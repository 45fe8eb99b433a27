// Package erasure implements a streaming (N,K) erasure code built on a
// Cauchy generator over GF(2^8). Encoding splits one input stream into N
// shard streams such that any K of them recover the input; every shard is a
// coded combination, none carries the input verbatim. Decoding takes the K
// surviving shard streams plus the set of excluded shard indices.
//
// The hot path never multiplies field elements. The generator (and, for
// decode, the inverted surviving submatrix) is projected onto GF(2) once, so
// each output lane is a plain XOR reduction of word-sized input lanes. A lane
// word is W bytes read big-endian, carrying one bit position of 8·W field
// elements at a time.
package erasure

import (
	"errors"
	"fmt"
	"io"

	"github.com/halcyonfs/braid/gf"
)

var (
	ErrShardCountMismatch = errors.New("shard count mismatch")
	ErrExcludedCount      = errors.New("excluded shard count mismatch")
	ErrExcludedIndex      = errors.New("excluded shard index out of range")
	ErrWordSize           = errors.New("word size must be 1, 4, or 8 bytes")
	ErrBlockTooLarge      = errors.New("data block too large for one-byte length sentinel")
	ErrShortStream        = errors.New("truncated shard stream")
	ErrBadSentinel        = errors.New("corrupt length sentinel in final block")
)

// Coder encodes and decodes shard streams for a fixed (N, K, word width)
// configuration. A Coder is immutable and safe for concurrent use.
type Coder struct {
	n, k, word int
	gen        *gf.Matrix
	enc        *gf.Binary
}

// New returns a Coder producing n shards of which any k recover the data,
// using word-byte lanes (1, 4, or 8). The data block size w·m·K must fit the
// one-byte EOF sentinel, so word·8·k may not exceed 256.
func New(n, k, word int) (*Coder, error) {
	if word != 1 && word != 4 && word != 8 {
		return nil, ErrWordSize
	}
	if k < 1 || n < k {
		return nil, fmt.Errorf("erasure: need 1 <= K <= N, got N=%d K=%d", n, k)
	}
	if word*gf.Bits*k > 256 {
		return nil, ErrBlockTooLarge
	}
	gen, err := gf.Cauchy(n, k)
	if err != nil {
		return nil, fmt.Errorf("erasure: %w", err)
	}
	return &Coder{n: n, k: k, word: word, gen: gen, enc: gen.Binary()}, nil
}

// ShardCount returns N.
func (c *Coder) ShardCount() int { return c.n }

// RequiredShards returns K.
func (c *Coder) RequiredShards() int { return c.k }

// groupSize is the per-shard stride of one code block: w·m bytes.
func (c *Coder) groupSize() int { return c.word * gf.Bits }

// DataBlockSize is the number of plaintext bytes consumed per block: w·m·K.
func (c *Coder) DataBlockSize() int { return c.word * gf.Bits * c.k }

// CodeBlockSize is the number of shard bytes produced per block across all
// shards: w·m·N.
func (c *Coder) CodeBlockSize() int { return c.word * gf.Bits * c.n }

// TotalEncodedSize returns the total number of shard bytes, across all N
// shards, produced by encoding plain input bytes. The encoder always emits a
// terminal length-marked block, so an exact multiple of the data block size
// still costs one extra block.
func (c *Coder) TotalEncodedSize(plain int64) int64 {
	blocks := plain/int64(c.DataBlockSize()) + 1
	return blocks * int64(c.CodeBlockSize())
}

// EncodedShardSize returns the per-shard byte count for plain input bytes.
func (c *Coder) EncodedShardSize(plain int64) int64 {
	return c.TotalEncodedSize(plain) / int64(c.n)
}

// Encode reads data blocks from data and writes one group per block to each
// of the n shard writers. The final block is zero-padded with its true byte
// length recorded in its last byte. Returns the number of input bytes
// consumed.
func (c *Coder) Encode(data io.Reader, shards []io.Writer) (int64, error) {
	if len(shards) != c.n {
		return 0, ErrShardCountMismatch
	}

	db := c.DataBlockSize()
	buf := make([]byte, db)
	obuf := make([]byte, c.groupSize())
	in := make([]uint64, c.k*gf.Bits)
	out := make([]uint64, c.n*gf.Bits)

	var total int64
	for {
		n, err := readBlock(data, buf)
		if err != nil {
			return total, fmt.Errorf("read data block: %w", err)
		}
		total += int64(n)

		short := n < db
		if short {
			for i := n; i < db; i++ {
				buf[i] = 0
			}
			buf[db-1] = byte(n)
		}

		readLanes(buf, in, c.word)
		c.enc.Apply(out, in)

		for s := 0; s < c.n; s++ {
			writeLanes(out[s*gf.Bits:(s+1)*gf.Bits], obuf, c.word)
			if _, err := shards[s].Write(obuf); err != nil {
				return total, fmt.Errorf("write shard %d: %w", s, err)
			}
		}

		if short {
			break
		}
	}
	return total, nil
}

// Decode reads groups from the k surviving shard readers, reconstructs the
// data blocks, and writes the original bytes to out. The shards slice holds
// the surviving shards ordered by ascending shard index; excluded lists the
// n−k missing shard indices. Returns the number of output bytes produced.
func (c *Coder) Decode(shards []io.Reader, excluded []int, out io.Writer) (int64, error) {
	if len(excluded) != c.n-c.k {
		return 0, ErrExcludedCount
	}
	if len(shards) != c.k {
		return 0, ErrShardCountMismatch
	}

	rows, err := c.survivors(excluded)
	if err != nil {
		return 0, err
	}

	// Invert the generator restricted to the surviving rows. Cauchy
	// submatrices are always invertible, so a singular matrix here means a
	// programming error upstream.
	inv, err := c.gen.Sub(rows, nil).Invert()
	if err != nil {
		return 0, fmt.Errorf("decode matrix: %w", err)
	}
	dec := inv.Binary()

	db := c.DataBlockSize()
	gbuf := make([]byte, c.groupSize())
	in := make([]uint64, c.k*gf.Bits)
	data := make([]uint64, c.k*gf.Bits)
	block := make([]byte, db)
	prev := make([]byte, db)
	havePrev := false

	var total int64
	for {
		// One group per lane-reader; EOF on the first reader at a block
		// boundary ends the stream.
		if _, err := io.ReadFull(shards[0], gbuf); err != nil {
			if err == io.EOF {
				break
			}
			return total, fmt.Errorf("read shard %d: %w", rows[0], err)
		}
		readLanes(gbuf, in[:gf.Bits], c.word)

		for s := 1; s < c.k; s++ {
			if _, err := io.ReadFull(shards[s], gbuf); err != nil {
				if err == io.EOF || err == io.ErrUnexpectedEOF {
					return total, fmt.Errorf("shard %d: %w", rows[s], ErrShortStream)
				}
				return total, fmt.Errorf("read shard %d: %w", rows[s], err)
			}
			readLanes(gbuf, in[s*gf.Bits:(s+1)*gf.Bits], c.word)
		}

		if havePrev {
			if _, err := out.Write(prev); err != nil {
				return total, fmt.Errorf("write output: %w", err)
			}
			total += int64(db)
		}

		dec.Apply(data, in)
		writeLanes(data, block, c.word)
		copy(prev, block)
		havePrev = true
	}

	if !havePrev {
		return total, ErrShortStream
	}

	// The last block carries its true byte length in its final byte.
	l := int(prev[db-1])
	if l >= db {
		return total, ErrBadSentinel
	}
	if _, err := out.Write(prev[:l]); err != nil {
		return total, fmt.Errorf("write output: %w", err)
	}
	total += int64(l)
	return total, nil
}

// survivors returns the sorted shard indices not present in excluded.
func (c *Coder) survivors(excluded []int) ([]int, error) {
	gone := make([]bool, c.n)
	for _, e := range excluded {
		if e < 0 || e >= c.n || gone[e] {
			return nil, ErrExcludedIndex
		}
		gone[e] = true
	}
	rows := make([]int, 0, c.k)
	for i := 0; i < c.n; i++ {
		if !gone[i] {
			rows = append(rows, i)
		}
	}
	return rows, nil
}

// readBlock fills buf from r, tolerating a short (or empty) final read.
func readBlock(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return n, nil
	}
	return n, err
}

// readLanes big-endian-decodes consecutive word-byte groups into lane words.
func readLanes(buf []byte, lanes []uint64, word int) {
	for l := range lanes {
		var v uint64
		for _, b := range buf[l*word : (l+1)*word] {
			v = v<<8 | uint64(b)
		}
		lanes[l] = v
	}
}

// writeLanes big-endian-encodes lane words back into buf.
func writeLanes(lanes []uint64, buf []byte, word int) {
	for l, v := range lanes {
		for i := word - 1; i >= 0; i-- {
			buf[l*word+i] = byte(v)
			v >>= 8
		}
	}
}
