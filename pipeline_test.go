package braid_test

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/halcyonfs/braid"
	"github.com/halcyonfs/braid/bucket"
	"github.com/halcyonfs/braid/manifest"
	"github.com/halcyonfs/braid/transport"
)

var testKey = []byte("11111111222222223333333344444444")

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testOptions(mem *bucket.Memory) braid.Options {
	return braid.Options{
		Buckets:        mem,
		Transport:      mem,
		RequiredShards: 3,
		WordSize:       8,
		Key:            testKey,
		Logger:         quietLogger(),
	}
}

// uploadRecorder collects callback traffic for one upload.
type uploadRecorder struct {
	mu     sync.Mutex
	pcts   []int
	stored *manifest.StoredFile
	err    error
	closes int
	done   chan struct{}
}

func newUploadRecorder() *uploadRecorder {
	return &uploadRecorder{done: make(chan struct{})}
}

func (r *uploadRecorder) Update(pct int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pcts = append(r.pcts, pct)
}

func (r *uploadRecorder) Close(stored *manifest.StoredFile, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = stored
	r.err = err
	r.closes++
	if r.closes == 1 {
		close(r.done)
	}
}

func (r *uploadRecorder) wait(t *testing.T) *manifest.StoredFile {
	t.Helper()
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NoError(t, r.err)
	require.NotNil(t, r.stored)
	return r.stored
}

// downloadRecorder collects callback traffic for one download.
type downloadRecorder struct {
	mu     sync.Mutex
	pcts   []int
	err    error
	closes int
	done   chan struct{}
}

func newDownloadRecorder() *downloadRecorder {
	return &downloadRecorder{done: make(chan struct{})}
}

func (r *downloadRecorder) Update(pct int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pcts = append(r.pcts, pct)
}

func (r *downloadRecorder) Close(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.closes++
	if r.closes == 1 {
		close(r.done)
	}
}

func (r *downloadRecorder) wait(t *testing.T) error {
	t.Helper()
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// gatedTransport blocks the first Put until released, so tests can pin a
// file in flight.
type gatedTransport struct {
	transport.Transport
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newGatedTransport(inner transport.Transport) *gatedTransport {
	return &gatedTransport{
		Transport: inner,
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (g *gatedTransport) Put(ctx context.Context, uri string, header http.Header, body io.Reader) error {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.Transport.Put(ctx, uri, header, body)
}
