package bucket

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/halcyonfs/braid/chunk"
	"github.com/halcyonfs/braid/transport"
)

// Memory is an in-process bucket set used by tests and local experiments. It
// implements both Set and transport.Transport, so a pipeline pointed at a
// Memory performs real shard striping without a network.
type Memory struct {
	mu      sync.RWMutex
	objects []map[string][]byte
}

var _ Set = (*Memory)(nil)
var _ transport.Transport = (*Memory)(nil)

// NewMemory returns a Memory holding n empty buckets.
func NewMemory(n int) *Memory {
	objects := make([]map[string][]byte, n)
	for i := range objects {
		objects[i] = make(map[string][]byte)
	}
	return &Memory{objects: objects}
}

// Count implements Set.
func (m *Memory) Count() int { return len(m.objects) }

// ShardURI implements Set.
func (m *Memory) ShardURI(i int, name chunk.Name) string {
	return fmt.Sprintf("mem://%d/%s", i, name)
}

// RequestHeader implements Set.
func (m *Memory) RequestHeader() http.Header { return nil }

func (m *Memory) parse(uri string) (int, string, error) {
	rest, ok := strings.CutPrefix(uri, "mem://")
	if !ok {
		return 0, "", fmt.Errorf("not a memory bucket URI: %s", uri)
	}
	idx, key, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, "", fmt.Errorf("malformed memory bucket URI: %s", uri)
	}
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 || i >= len(m.objects) {
		return 0, "", fmt.Errorf("bad bucket index in URI: %s", uri)
	}
	return i, key, nil
}

// Put implements transport.Transport.
func (m *Memory) Put(ctx context.Context, uri string, header http.Header, body io.Reader) error {
	i, key, err := m.parse(uri)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[i][key] = data
	return nil
}

// Get implements transport.Transport.
func (m *Memory) Get(ctx context.Context, uri string, header http.Header) (io.ReadCloser, error) {
	i, key, err := m.parse(uri)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.objects[i][key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object not found: %s", uri)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Object returns the raw shard bytes stored in bucket i under name.
func (m *Memory) Object(i int, name chunk.Name) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[i][name.String()]
	return data, ok
}

// Delete removes the shard of name from bucket i, simulating shard loss.
func (m *Memory) Delete(i int, name chunk.Name) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects[i], name.String())
}

// ObjectCount returns the number of objects held in bucket i.
func (m *Memory) ObjectCount(i int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects[i])
}
