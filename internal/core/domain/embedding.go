package domain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// EmbeddingDimension is the length of every face embedding.
const EmbeddingDimension = 128

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrCorruptVector     = errors.New("corrupt embedding blob")
	ErrUndecodableImage  = errors.New("image could not be decoded")
)

// Vector is a face embedding as produced by the face encoder.
type Vector []float64

// EmbeddingRecord is one (user, embedding) pair as read from the enrollment store.
type EmbeddingRecord struct {
	UserID   string
	UserName string
	Vector   Vector
}

// EncodeVector serialises v as a raw little-endian float64 array.
func EncodeVector(v Vector) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector. The dimension is implied by
// the blob length; callers check it against EmbeddingDimension.
func DecodeVector(b []byte) (Vector, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptVector, len(b))
	}
	v := make(Vector, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v, nil
}

// EuclideanDistance returns the L2 distance between a and b.
func EuclideanDistance(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
