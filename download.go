package braid

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/halcyonfs/braid/bucket"
	"github.com/halcyonfs/braid/chunk"
	"github.com/halcyonfs/braid/crypt"
	"github.com/halcyonfs/braid/erasure"
	"github.com/halcyonfs/braid/manifest"
	"github.com/halcyonfs/braid/queue"
	"github.com/halcyonfs/braid/transport"
)

// Downloader walks stored chunk chains back into plaintext. One worker
// goroutine processes submitted files in order; the K shard fetches of each
// chunk run in parallel.
type Downloader struct {
	opts  Options
	log   *logrus.Logger
	tr    transport.Transport
	coder *erasure.Coder

	jobs *queue.Queue[*downloadJob]

	started  atomic.Bool
	stopping atomic.Bool
	wg       sync.WaitGroup

	// blobBuf collects one erasure-decoded blob; plainBuf its decryption.
	blobBuf  bytes.Buffer
	plainBuf []byte
}

type downloadJob struct {
	stored *manifest.StoredFile
	out    io.Writer
	cb     DownloadCallback
}

// NewDownloader validates opts and builds the pipeline. Call Start before
// submitting files.
func NewDownloader(opts Options) (*Downloader, error) {
	if opts.Buckets == nil {
		return nil, ErrMissingBuckets
	}
	tr, err := opts.transport()
	if err != nil {
		return nil, err
	}
	coder, err := erasure.New(opts.Buckets.Count(), opts.RequiredShards, opts.WordSize)
	if err != nil {
		return nil, err
	}

	d := &Downloader{
		opts:     opts,
		log:      opts.logger(),
		tr:       tr,
		coder:    coder,
		jobs:     queue.New[*downloadJob](opts.queueDepth()),
		plainBuf: make([]byte, chunk.HeaderSize+chunk.Size+chunk.TagSize),
	}
	d.blobBuf.Grow(chunk.HeaderSize + chunk.Size)
	return d, nil
}

// Start spawns the worker. It may be called at most once.
func (d *Downloader) Start() error {
	if !d.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	d.wg.Add(1)
	go d.worker()
	return nil
}

// DownloadFile queues a chain walk that appends the file's plaintext to out.
// The callback is invoked exactly once.
func (d *Downloader) DownloadFile(stored *manifest.StoredFile, out io.Writer, cb DownloadCallback) error {
	if d.stopping.Load() {
		return ErrStopped
	}
	if err := d.jobs.Push(&downloadJob{stored: stored, out: out, cb: cb}); err != nil {
		return ErrStopped
	}
	return nil
}

// Stop shuts the pipeline down and joins the worker. With StopCancel, queued
// items are dropped without a Close call.
func (d *Downloader) Stop(mode StopMode) {
	d.stopping.Store(true)
	if mode == StopCancel {
		dropped := d.jobs.Clear()
		if len(dropped) > 0 {
			d.log.WithField("dropped", len(dropped)).Info("cancelled queued downloads")
		}
	}
	d.jobs.Close()
	if d.started.Load() {
		d.wg.Wait()
	}
}

func (d *Downloader) worker() {
	defer d.wg.Done()
	for {
		job, ok := d.jobs.Pop()
		if !ok {
			return
		}
		d.run(job)
	}
}

func (d *Downloader) run(job *downloadJob) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("download panicked: %v", r)
			}
		}()
		err = d.processFile(job)
	}()

	if err != nil {
		d.log.WithError(err).Error("download failed")
		job.cb.Close(err)
		return
	}
	job.cb.Update(100)
	job.cb.Close(nil)
}

func (d *Downloader) processFile(job *downloadJob) error {
	// One excluded-shard draw covers the whole file.
	excluded := sampleExcluded(d.coder.ShardCount(), d.coder.ShardCount()-d.coder.RequiredShards())

	d.log.WithFields(logrus.Fields{
		"first":    job.stored.FirstName.String(),
		"chunks":   job.stored.ChunkCount,
		"excluded": excluded,
	}).Debug("downloading file")

	walker := chainWalker{
		tr:       d.tr,
		buckets:  d.opts.Buckets,
		coder:    d.coder,
		excluded: excluded,
		blobBuf:  &d.blobBuf,
		plainBuf: d.plainBuf,
	}

	fileHash := sha256.New()
	var fileDigest [chunk.DigestSize]byte

	count := job.stored.ChunkCount
	link := chunk.Link{Name: job.stored.FirstName, Material: job.stored.Encryption}
	for i := uint64(0); i < count; i++ {
		hdr, payload, err := walker.next(link)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}

		if i == 0 {
			fileDigest = hdr.FileDigest
		}
		if _, err := job.out.Write(payload); err != nil {
			return fmt.Errorf("chunk %d: write output: %w", i, err)
		}
		fileHash.Write(payload)

		last := i+1 == count
		if last && !hdr.Next.Name.IsZero() {
			return ErrChainOverrun
		}
		if !last {
			if hdr.Next.Name.IsZero() {
				return ErrChainTruncated
			}
			link = hdr.Next
		}

		pct := int(min64(99, int64((i+1)*100/count)))
		job.cb.Update(pct)
	}

	if !bytes.Equal(fileHash.Sum(nil), fileDigest[:]) {
		return ErrFileDigestMismatch
	}
	return nil
}

// chainWalker fetches, decodes, decrypts, and verifies one chunk at a time.
type chainWalker struct {
	tr       transport.Transport
	buckets  bucket.Set
	coder    *erasure.Coder
	excluded []int
	blobBuf  *bytes.Buffer
	plainBuf []byte
}

// next fetches the linked chunk and returns its parsed header and payload.
// The payload aliases the walker's scratch buffer and is only valid until the
// following call.
func (w *chainWalker) next(link chunk.Link) (*chunk.Header, []byte, error) {
	blob, err := w.fetchBlob(link.Name)
	if err != nil {
		return nil, nil, err
	}
	if chunk.NameOf(blob) != link.Name {
		return nil, nil, ErrBlobDigestMismatch
	}

	plain, err := crypt.Open(w.plainBuf, blob, link.Material.Key[:], link.Material)
	if err != nil {
		return nil, nil, err
	}
	if len(plain) < chunk.HeaderSize {
		return nil, nil, chunk.ErrInvalidHeaderSize
	}

	hdr := &chunk.Header{}
	if err := hdr.UnmarshalBinary(plain[:chunk.HeaderSize]); err != nil {
		return nil, nil, err
	}
	payload := plain[chunk.HeaderSize:]
	if sha256.Sum256(payload) != hdr.PayloadDigest {
		return nil, nil, ErrChunkDigestMismatch
	}
	return hdr, payload, nil
}

// fetchBlob opens K of the N shard objects and erasure-decodes them back
// into the encrypted blob.
func (w *chainWalker) fetchBlob(name chunk.Name) ([]byte, error) {
	gone := make([]bool, w.coder.ShardCount())
	for _, e := range w.excluded {
		gone[e] = true
	}

	k := w.coder.RequiredShards()
	bodies := make([]io.ReadCloser, 0, k)
	defer func() {
		for _, b := range bodies {
			b.Close()
		}
	}()

	g, ctx := errgroup.WithContext(context.Background())
	slots := make([]io.ReadCloser, w.coder.ShardCount())
	for i := 0; i < w.coder.ShardCount(); i++ {
		if gone[i] {
			continue
		}
		i := i
		g.Go(func() error {
			body, err := w.tr.Get(ctx, w.buckets.ShardURI(i, name), w.buckets.RequestHeader())
			if err != nil {
				return fmt.Errorf("shard %d: %w", i, err)
			}
			slots[i] = body
			return nil
		})
	}
	err := g.Wait()
	for _, b := range slots {
		if b != nil {
			bodies = append(bodies, b)
		}
	}
	if err != nil {
		return nil, err
	}

	readers := make([]io.Reader, 0, k)
	for _, b := range slots {
		if b != nil {
			readers = append(readers, b)
		}
	}

	w.blobBuf.Reset()
	if _, err := w.coder.Decode(readers, w.excluded, w.blobBuf); err != nil {
		return nil, err
	}
	return w.blobBuf.Bytes(), nil
}

// sampleExcluded draws m distinct shard indices from [0, n) uniformly.
func sampleExcluded(n, m int) []int {
	perm := rand.Perm(n)
	excluded := append([]int(nil), perm[:m]...)
	sort.Ints(excluded)
	return excluded
}
