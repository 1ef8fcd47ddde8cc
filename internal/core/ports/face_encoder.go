package ports

import (
	"context"

	"github.com/99minutos/access-control/internal/core/domain"
)

// ExtractionStatus tells the pipeline how face extraction ended.
type ExtractionStatus int

const (
	ExtractionOK ExtractionStatus = iota
	ExtractionDecodeFailed
	ExtractionNoFace
)

// Extraction is the outcome of running the face encoder on one image.
// Vectors is non-empty only when Status is ExtractionOK.
type Extraction struct {
	Status  ExtractionStatus
	Vectors []domain.Vector
}

// FaceEncoder turns an image into one embedding per detected face.
// A returned error is an infrastructure failure, never a "no face" result.
type FaceEncoder interface {
	Extract(ctx context.Context, image []byte) (Extraction, error)
}
