// Package transport abstracts the HTTP client used to move shard bytes to
// and from buckets. The pipelines only need streaming PUT and GET; request
// signing and URI layout belong to the bucket set.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// Transport moves shard bytes to and from bucket URIs.
type Transport interface {
	// Put uploads body to uri. The body is streamed and consumed exactly
	// once.
	Put(ctx context.Context, uri string, header http.Header, body io.Reader) error
	// Get opens a reader over the object at uri. The caller must close it.
	Get(ctx context.Context, uri string, header http.Header) (io.ReadCloser, error)
}

// HTTP is a Transport over net/http. GETs are retried with Fibonacci backoff
// on transient failures; PUT bodies stream straight out of the erasure
// encoder and are not replayable, so PUTs are attempted once.
type HTTP struct {
	// Client is the underlying client. http.DefaultClient when nil.
	Client *http.Client
	// MaxRetries bounds GET retry attempts. Default 5.
	MaxRetries uint64
	// RetryBase is the first Fibonacci backoff delay. Default 500ms.
	RetryBase time.Duration
}

var _ Transport = (*HTTP)(nil)

func (t *HTTP) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}

func (t *HTTP) retries() uint64 {
	if t.MaxRetries > 0 {
		return t.MaxRetries
	}
	return 5
}

func (t *HTTP) retryBase() time.Duration {
	if t.RetryBase > 0 {
		return t.RetryBase
	}
	return 500 * time.Millisecond
}

// Put implements Transport.
func (t *HTTP) Put(ctx context.Context, uri string, header http.Header, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uri, body)
	if err != nil {
		return fmt.Errorf("failed to build PUT %s: %w", uri, err)
	}
	mergeHeader(req.Header, header)

	resp, err := t.client().Do(req)
	if err != nil {
		return fmt.Errorf("PUT %s: %w", uri, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("PUT %s: unexpected status %s", uri, resp.Status)
	}
	return nil
}

// Get implements Transport.
func (t *HTTP) Get(ctx context.Context, uri string, header http.Header) (io.ReadCloser, error) {
	var body io.ReadCloser

	b := retry.NewFibonacci(t.retryBase())
	err := retry.Do(ctx, retry.WithMaxRetries(t.retries(), b), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return err
		}
		mergeHeader(req.Header, header)

		resp, err := t.client().Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return retry.RetryableError(fmt.Errorf("GET %s: status %s", uri, resp.Status))
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return fmt.Errorf("GET %s: unexpected status %s", uri, resp.Status)
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func mergeHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
