package gf

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// combinations returns every size-k subset of [0, n).
func combinations(n, k int) [][]int {
	var out [][]int
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		out = append(out, append([]int(nil), idx...))
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			break
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
	return out
}

func TestCauchyEverySubmatrixInvertible(t *testing.T) {
	assert := assert.New(t)

	n, k := 5, 3
	g, err := Cauchy(n, k)
	assert.NoError(err)

	for _, rows := range combinations(n, k) {
		sub := g.Sub(rows, nil)
		inv, err := sub.Invert()
		assert.NoError(err, "rows=%v", rows)

		prod, err := inv.Mul(sub)
		assert.NoError(err)
		assert.Equal(Identity(k), prod, "rows=%v", rows)
	}
}

func TestCauchyFieldExhausted(t *testing.T) {
	assert := assert.New(t)

	_, err := Cauchy(200, 100)
	assert.ErrorIs(err, ErrFieldExhausted)
}

func TestInvertSingular(t *testing.T) {
	assert := assert.New(t)

	m := NewMatrix(2, 2)
	m.Set(0, 0, 5)
	m.Set(0, 1, 10)
	m.Set(1, 0, 5)
	m.Set(1, 1, 10)

	_, err := m.Invert()
	assert.ErrorIs(err, ErrSingular)
}

func TestInvertNotSquare(t *testing.T) {
	assert := assert.New(t)

	_, err := NewMatrix(2, 3).Invert()
	assert.ErrorIs(err, ErrDimensions)
}

func TestBinaryProjectionMatchesFieldMul(t *testing.T) {
	assert := assert.New(t)

	// A 1x1 matrix's projection applied to the bit lanes of v must equal
	// field multiplication, for 256 randomly drawn element pairs.
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 256; trial++ {
		e := byte(rng.Intn(Order))
		v := byte(rng.Intn(Order))

		m := NewMatrix(1, 1)
		m.Set(0, 0, e)
		b := m.Binary()

		src := make([]uint64, Bits)
		for c := 0; c < Bits; c++ {
			src[c] = uint64(v >> c & 1)
		}
		dst := make([]uint64, Bits)
		b.Apply(dst, src)

		var got byte
		for r := 0; r < Bits; r++ {
			got |= byte(dst[r]&1) << r
		}
		assert.Equal(Mul(e, v), got, "e=%d v=%d", e, v)
	}
}

func TestBinaryApplyLinearity(t *testing.T) {
	assert := assert.New(t)

	g, err := Cauchy(5, 3)
	assert.NoError(err)
	b := g.Binary()

	rng := rand.New(rand.NewSource(2))
	a := make([]uint64, b.Cols())
	c := make([]uint64, b.Cols())
	sum := make([]uint64, b.Cols())
	for i := range a {
		a[i] = rng.Uint64()
		c[i] = rng.Uint64()
		sum[i] = a[i] ^ c[i]
	}

	outA := make([]uint64, b.Rows())
	outC := make([]uint64, b.Rows())
	outSum := make([]uint64, b.Rows())
	b.Apply(outA, a)
	b.Apply(outC, c)
	b.Apply(outSum, sum)

	for r := range outSum {
		assert.Equal(outA[r]^outC[r], outSum[r], "row %d", r)
	}
}
