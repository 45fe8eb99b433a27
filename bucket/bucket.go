// Package bucket maps chunk names onto the object-storage buckets holding
// their shards. Providers differ in URI layout and request signing; the
// pipelines only ever see the Set interface.
package bucket

import (
	"net/http"

	"github.com/halcyonfs/braid/chunk"
)

// Set is a fixed group of N buckets. Shard i of every chunk lives in bucket
// i; the object key is the hex form of the chunk name.
type Set interface {
	// Count returns the number of buckets, N.
	Count() int
	// ShardURI returns the resource URI for shard i of the named chunk.
	ShardURI(i int, name chunk.Name) string
	// RequestHeader returns the header block attached to every request,
	// e.g. authorization. May be nil.
	RequestHeader() http.Header
}

// URLSet is a Set over plain base URLs, one per bucket. The object URI is
// "<base>/<hex name>".
type URLSet struct {
	// Bases are the bucket base URLs without a trailing slash.
	Bases []string
	// Header is attached to every request.
	Header http.Header
}

var _ Set = (*URLSet)(nil)

// Count implements Set.
func (s *URLSet) Count() int { return len(s.Bases) }

// ShardURI implements Set.
func (s *URLSet) ShardURI(i int, name chunk.Name) string {
	return s.Bases[i] + "/" + name.String()
}

// RequestHeader implements Set.
func (s *URLSet) RequestHeader() http.Header { return s.Header }
