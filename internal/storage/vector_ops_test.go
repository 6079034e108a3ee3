package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerializeVector_RoundTrip(t *testing.T) {
	in := []float32{0, 1, -1, 0.5, math.MaxFloat32, math.SmallestNonzeroFloat32}
	blob := serializeVector(in)
	assert.Len(t, blob, len(in)*4)
	assert.Equal(t, in, deserializeVector(blob))
}

func TestDeserializeVector_Empty(t *testing.T) {
	assert.Empty(t, deserializeVector(nil))
	// trailing partial float is ignored
	assert.Len(t, deserializeVector([]byte{0, 0, 128, 63, 1}), 1)
}
