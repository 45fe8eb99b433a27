package manifest_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/halcyonfs/braid/manifest"
)

func TestSaveLoad(t *testing.T) {
	assert := assert.New(t)

	f := &manifest.StoredFile{ChunkCount: 11}
	copy(f.FirstName[:], "FIRSTNAME FIRSTNAME FIRSTNAME 32")
	copy(f.Encryption.Tag[:], "TAGTAGTAGTAGTAG!")
	copy(f.Encryption.Nonce[:], "NONCENONCE12")
	copy(f.Encryption.Key[:], "KEYKEYKEYKEYKEYKEYKEYKEYKEYKEY32")

	var buf bytes.Buffer
	assert.NoError(f.Save(&buf))

	got, err := manifest.Load(&buf)
	assert.NoError(err)
	assert.Equal(f, got)
}

func TestLoadGarbage(t *testing.T) {
	assert := assert.New(t)

	_, err := manifest.Load(bytes.NewReader([]byte("not msgpack at all")))
	assert.Error(err)
}
