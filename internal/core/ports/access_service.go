package ports

import (
	"context"

	"github.com/99minutos/access-control/internal/core/domain"
)

// RecognitionService runs the face decision pipeline.
type RecognitionService interface {
	// Recognize decides on a raw image. The error is non-nil only for
	// infrastructure failures; the verdict is then a server_error denial.
	Recognize(ctx context.Context, image []byte) (domain.Verdict, error)
	// Known is the number of embeddings in the published cache snapshot.
	Known() int
}

// CredentialService runs the credential decision pipeline.
type CredentialService interface {
	Resolve(ctx context.Context, uid string) (domain.Verdict, error)
}

// AuditRecorder appends decisions to the audit trail. It never fails the caller.
type AuditRecorder interface {
	Record(ctx context.Context, entry domain.AccessLogEntry)
}
