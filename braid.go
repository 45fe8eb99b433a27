// Package braid stores files as encrypted, erasure-coded chunk chains spread
// across a set of untrusted object-storage buckets.
//
// A file is split into fixed-size chunks. Each chunk is prefixed with a
// header, sealed with AES-256-GCM, and the resulting blob is striped over N
// buckets with a (N,K) Cauchy erasure code; any K shards recover the blob.
// The header of chunk i names the encrypted blob of chunk i+1 and carries the
// material that decrypts it, so a file is walked forward from a single
// StoredFile descriptor.
//
// Headers are finalized in reverse: the ciphertext (and therefore the name)
// of chunk i depends on its header, which embeds the name of chunk i+1. The
// upload worker runs two passes over the source — pass one hashes the file
// and every chunk payload, pass two walks the chunks last to first,
// encrypting and linking as it goes. A forward build is impossible.
package braid

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/halcyonfs/braid/bucket"
	"github.com/halcyonfs/braid/manifest"
	"github.com/halcyonfs/braid/transport"
)

var (
	ErrAlreadyStarted      = errors.New("pipeline already started")
	ErrStopped             = errors.New("pipeline is stopping")
	ErrChunkCountMismatch  = errors.New("chunk count mismatch")
	ErrMissingBuckets      = errors.New("bucket set is required")
	ErrMissingTransport    = errors.New("transport is required")
	ErrChainTruncated      = errors.New("chunk chain ended early")
	ErrChainOverrun        = errors.New("chunk chain longer than manifest")
	ErrBlobDigestMismatch  = errors.New("blob digest does not match chunk name")
	ErrChunkDigestMismatch = errors.New("payload digest mismatch")
	ErrFileDigestMismatch  = errors.New("full-file digest mismatch")
)

// Options configures a pipeline.
type Options struct {
	// Buckets maps chunk names to shard URIs. Its Count is N.
	Buckets bucket.Set
	// Transport moves shard bytes. Defaults to a plain transport.HTTP.
	Transport transport.Transport
	// RequiredShards is K, the number of shards needed to recover a chunk.
	RequiredShards int
	// WordSize is the erasure lane width in bytes: 1, 4, or 8.
	WordSize int
	// Key is the 32-byte AES-256 key chunks are sealed with. Buckets only
	// see it inside encrypted headers; the emitted StoredFile carries it
	// unencrypted.
	Key []byte
	// QueueDepth is the submit queue's preallocation hint. Default 16.
	QueueDepth int
	// Logger receives pipeline logs. A default logger is used when nil.
	Logger *logrus.Logger
}

func (o *Options) queueDepth() int {
	if o.QueueDepth > 0 {
		return o.QueueDepth
	}
	return 16
}

func (o *Options) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.New()
}

func (o *Options) transport() (transport.Transport, error) {
	if o.Transport != nil {
		return o.Transport, nil
	}
	return &transport.HTTP{}, nil
}

// StopMode selects how Stop treats queued work.
type StopMode int

const (
	// StopDrain finishes everything already queued before exiting.
	StopDrain StopMode = iota
	// StopCancel drops queued items. Dropped items never see a Close
	// call; the in-flight item still completes and is closed.
	StopCancel
)

// UploadCallback observes one submitted upload. Update reports a
// non-decreasing percentage in 0..100. Close fires exactly once per
// submitted file: with the descriptor on success, with the error otherwise.
type UploadCallback interface {
	Update(pct int)
	Close(stored *manifest.StoredFile, err error)
}

// DownloadCallback observes one submitted download. Close fires exactly once
// per submitted file.
type DownloadCallback interface {
	Update(pct int)
	Close(err error)
}
