package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/halcyonfs/braid/transport"
)

func TestPutStreamsBody(t *testing.T) {
	assert := assert.New(t)

	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodPut, r.Method)
		assert.Equal("token", r.Header.Get("X-Auth"))
		b, err := io.ReadAll(r.Body)
		assert.NoError(err)
		got = b
	}))
	defer srv.Close()

	tr := &transport.HTTP{Client: srv.Client()}
	hdr := http.Header{"X-Auth": []string{"token"}}
	err := tr.Put(context.Background(), srv.URL+"/obj", hdr, io.LimitReader(neverEnding('x'), 1000))
	assert.NoError(err)
	assert.Len(got, 1000)
}

func TestPutRejectsBadStatus(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	tr := &transport.HTTP{Client: srv.Client()}
	err := tr.Put(context.Background(), srv.URL+"/obj", nil, nil)
	assert.Error(err)
}

func TestGetRetriesTransientFailures(t *testing.T) {
	assert := assert.New(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("shard bytes"))
	}))
	defer srv.Close()

	tr := &transport.HTTP{Client: srv.Client(), RetryBase: time.Millisecond}
	body, err := tr.Get(context.Background(), srv.URL+"/obj", nil)
	assert.NoError(err)
	defer body.Close()

	b, err := io.ReadAll(body)
	assert.NoError(err)
	assert.Equal([]byte("shard bytes"), b)
	assert.EqualValues(3, calls.Load())
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	assert := assert.New(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	tr := &transport.HTTP{Client: srv.Client(), RetryBase: time.Millisecond}
	_, err := tr.Get(context.Background(), srv.URL+"/obj", nil)
	assert.Error(err)
	assert.EqualValues(1, calls.Load())
}

// neverEnding is an endless reader of one repeated byte.
type neverEnding byte

func (b neverEnding) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(b)
	}
	return len(p), nil
}
