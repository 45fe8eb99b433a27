package braid

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/halcyonfs/braid/chunk"
	"github.com/halcyonfs/braid/crypt"
	"github.com/halcyonfs/braid/erasure"
	"github.com/halcyonfs/braid/manifest"
	"github.com/halcyonfs/braid/queue"
	"github.com/halcyonfs/braid/transport"
)

// Uploader chunks, encrypts, erasure-codes, and uploads files to the bucket
// set. One worker goroutine processes submitted files in order; the N shard
// uploads of each chunk run in parallel.
type Uploader struct {
	opts  Options
	log   *logrus.Logger
	tr    transport.Transport
	coder *erasure.Coder

	jobs   *queue.Queue[*uploadJob]
	nonces *crypt.NonceSource

	started  atomic.Bool
	stopping atomic.Bool
	wg       sync.WaitGroup

	// Scratch buffers sized to one header+chunk, owned by the worker.
	plainBuf  []byte
	cipherBuf []byte
}

type uploadJob struct {
	src  io.ReadSeeker
	size int64
	cb   UploadCallback
}

// NewUploader validates opts and builds the pipeline. Call Start before
// submitting files.
func NewUploader(opts Options) (*Uploader, error) {
	if opts.Buckets == nil {
		return nil, ErrMissingBuckets
	}
	if len(opts.Key) != chunk.KeySize {
		return nil, crypt.ErrInvalidKeyLength
	}

	tr, err := opts.transport()
	if err != nil {
		return nil, err
	}
	coder, err := erasure.New(opts.Buckets.Count(), opts.RequiredShards, opts.WordSize)
	if err != nil {
		return nil, err
	}
	nonces, err := crypt.NewNonceSource()
	if err != nil {
		return nil, err
	}

	return &Uploader{
		opts:      opts,
		log:       opts.logger(),
		tr:        tr,
		coder:     coder,
		jobs:      queue.New[*uploadJob](opts.queueDepth()),
		nonces:    nonces,
		plainBuf:  make([]byte, chunk.HeaderSize+chunk.Size),
		cipherBuf: make([]byte, chunk.HeaderSize+chunk.Size+chunk.TagSize),
	}, nil
}

// Start spawns the worker. It may be called at most once.
func (u *Uploader) Start() error {
	if !u.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	u.wg.Add(1)
	go u.worker()
	return nil
}

// UploadFile queues src for upload. The stated size is checked against the
// measured size; the measured size wins. src must stay valid until the
// callback's Close fires, and the callback is invoked exactly once.
func (u *Uploader) UploadFile(src io.ReadSeeker, size int64, cb UploadCallback) error {
	if u.stopping.Load() {
		return ErrStopped
	}

	measured, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to measure source: %w", err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind source: %w", err)
	}
	if size >= 0 && size != measured {
		u.log.WithFields(logrus.Fields{
			"stated":   size,
			"measured": measured,
		}).Warn("stated size differs from source, using measured size")
	}

	if err := u.jobs.Push(&uploadJob{src: src, size: measured, cb: cb}); err != nil {
		return ErrStopped
	}
	return nil
}

// Stop shuts the pipeline down and joins the worker. With StopCancel, queued
// items are dropped without a Close call; the in-flight file always
// completes.
func (u *Uploader) Stop(mode StopMode) {
	u.stopping.Store(true)
	if mode == StopCancel {
		dropped := u.jobs.Clear()
		if len(dropped) > 0 {
			u.log.WithField("dropped", len(dropped)).Info("cancelled queued uploads")
		}
	}
	u.jobs.Close()
	if u.started.Load() {
		u.wg.Wait()
	}
}

func (u *Uploader) worker() {
	defer u.wg.Done()
	for {
		job, ok := u.jobs.Pop()
		if !ok {
			return
		}
		u.run(job)
	}
}

// run processes one file and fires its callback exactly once, even when the
// file fails or processing panics.
func (u *Uploader) run(job *uploadJob) {
	var stored *manifest.StoredFile
	var err error

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("upload panicked: %v", r)
			}
		}()
		stored, err = u.processFile(job)
	}()

	if err != nil {
		u.log.WithError(err).WithField("size", job.size).Error("upload failed")
		job.cb.Close(nil, err)
		return
	}
	job.cb.Update(100)
	job.cb.Close(stored, nil)
}

func (u *Uploader) processFile(job *uploadJob) (*manifest.StoredFile, error) {
	count := chunk.Count(job.size)
	headers := make([]chunk.Header, count)

	// Pass 1: roll the full-file hash and record every chunk's payload
	// digest. The header array must be complete before any header is
	// encrypted.
	if _, err := job.src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("source seek: %w", err)
	}
	fileHash := sha256.New()
	payload := u.plainBuf[chunk.HeaderSize:]
	var blocks uint64
	for {
		n, err := io.ReadFull(job.src, payload)
		if n > 0 {
			if blocks >= count {
				return nil, ErrChunkCountMismatch
			}
			fileHash.Write(payload[:n])
			headers[blocks].PayloadDigest = sha256.Sum256(payload[:n])
			blocks++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("source read: %w", err)
		}
	}
	if blocks == 0 {
		// An empty file still stores one chunk with an empty payload.
		headers[0].PayloadDigest = sha256.Sum256(nil)
		blocks = 1
	}
	if blocks != count {
		return nil, ErrChunkCountMismatch
	}
	fileHash.Sum(headers[0].FileDigest[:0])

	// Progress denominator: every chunk's full encoded size.
	var totalEncoded int64
	for i := uint64(0); i < count; i++ {
		blobLen := int64(chunk.HeaderSize + chunk.PayloadLen(i, job.size))
		totalEncoded += u.coder.TotalEncodedSize(blobLen)
	}
	prog := &progress{cb: job.cb, total: totalEncoded}

	u.log.WithFields(logrus.Fields{
		"size":   job.size,
		"chunks": count,
	}).Debug("uploading file")

	// Pass 2: walk the chunks in reverse, sealing and linking. Header i
	// already carries chunk i+1's link by the time it is read here.
	var stored *manifest.StoredFile
	var key [chunk.KeySize]byte
	copy(key[:], u.opts.Key)

	for i := count; i > 0; {
		i--

		hb, err := headers[i].MarshalBinary()
		if err != nil {
			return nil, err
		}
		copy(u.plainBuf, hb)

		if _, err := job.src.Seek(chunk.StartOffset(i), io.SeekStart); err != nil {
			return nil, fmt.Errorf("source seek chunk %d: %w", i, err)
		}
		pl := chunk.PayloadLen(i, job.size)
		if pl > 0 {
			if _, err := io.ReadFull(job.src, u.plainBuf[chunk.HeaderSize:chunk.HeaderSize+pl]); err != nil {
				return nil, fmt.Errorf("source read chunk %d: %w", i, err)
			}
		}
		blob := u.plainBuf[:chunk.HeaderSize+pl]

		nonce, err := u.nonces.Next()
		if err != nil {
			return nil, err
		}
		sealed, tag, err := crypt.Seal(u.cipherBuf, blob, key[:], nonce)
		if err != nil {
			return nil, err
		}
		name := chunk.NameOf(sealed)
		material := chunk.CipherMaterial{Tag: tag, Nonce: nonce, Key: key}

		if i > 0 {
			headers[i-1].Next = chunk.Link{Name: name, Material: material}
		} else {
			stored = &manifest.StoredFile{
				FirstName:  name,
				Encryption: material,
				ChunkCount: count,
			}
		}

		if err := u.putShards(name, sealed, prog); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	return stored, nil
}

// putShards streams one encrypted blob through the erasure encoder into N
// concurrent PUT bodies.
func (u *Uploader) putShards(name chunk.Name, blob []byte, prog *progress) error {
	n := u.coder.ShardCount()
	hdr := u.opts.Buckets.RequestHeader()

	g, ctx := errgroup.WithContext(context.Background())
	writers := make([]io.Writer, n)
	pipes := make([]*io.PipeWriter, n)
	for i := 0; i < n; i++ {
		pr, pw := io.Pipe()
		pipes[i] = pw
		writers[i] = &progressWriter{w: pw, prog: prog}

		uri := u.opts.Buckets.ShardURI(i, name)
		g.Go(func() error {
			err := u.tr.Put(ctx, uri, hdr, pr)
			// Unblock the encoder if this request died early.
			pr.CloseWithError(err)
			return err
		})
	}

	_, encErr := u.coder.Encode(bytes.NewReader(blob), writers)
	for _, pw := range pipes {
		pw.CloseWithError(encErr)
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return encErr
}

// progress accumulates uploaded shard bytes for one file and reports a
// monotone percentage.
type progress struct {
	cb       interface{ Update(pct int) }
	total    int64
	uploaded int64
	last     int
}

func (p *progress) add(n int) {
	p.uploaded += int64(n)
	pct := 100
	if p.total > 0 {
		pct = int(min64(100, p.uploaded*100/p.total))
	}
	if pct > p.last {
		p.last = pct
		p.cb.Update(pct)
	}
}

type progressWriter struct {
	w    io.Writer
	prog *progress
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if n > 0 {
		w.prog.add(n)
	}
	return n, err
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
