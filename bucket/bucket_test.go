package bucket_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/halcyonfs/braid/bucket"
	"github.com/halcyonfs/braid/chunk"
)

func TestURLSet(t *testing.T) {
	assert := assert.New(t)

	s := &bucket.URLSet{
		Bases:  []string{"https://a.example/v", "https://b.example/v"},
		Header: http.Header{"Authorization": []string{"Bearer x"}},
	}
	name := chunk.NameOf([]byte("blob"))

	assert.Equal(2, s.Count())
	assert.Equal("https://a.example/v/"+name.String(), s.ShardURI(0, name))
	assert.Equal("https://b.example/v/"+name.String(), s.ShardURI(1, name))
	assert.Equal("Bearer x", s.RequestHeader().Get("Authorization"))
}

func TestMemoryPutGet(t *testing.T) {
	assert := assert.New(t)

	m := bucket.NewMemory(3)
	name := chunk.NameOf([]byte("blob"))
	ctx := context.Background()

	assert.Equal(3, m.Count())
	assert.NoError(m.Put(ctx, m.ShardURI(1, name), nil, bytes.NewReader([]byte("shard one"))))
	assert.Equal(1, m.ObjectCount(1))
	assert.Equal(0, m.ObjectCount(0))

	body, err := m.Get(ctx, m.ShardURI(1, name), nil)
	assert.NoError(err)
	got, err := io.ReadAll(body)
	assert.NoError(err)
	assert.NoError(body.Close())
	assert.Equal([]byte("shard one"), got)

	// Objects are per bucket.
	_, err = m.Get(ctx, m.ShardURI(0, name), nil)
	assert.Error(err)

	m.Delete(1, name)
	_, err = m.Get(ctx, m.ShardURI(1, name), nil)
	assert.Error(err)
}

func TestMemoryRejectsForeignURI(t *testing.T) {
	assert := assert.New(t)

	m := bucket.NewMemory(1)
	assert.Error(m.Put(context.Background(), "https://elsewhere/x", nil, bytes.NewReader(nil)))
	_, err := m.Get(context.Background(), "mem://9/abc", nil)
	assert.Error(err)
}
