package service

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/99minutos/access-control/internal/core/domain"
	"github.com/99minutos/access-control/internal/core/ports"
)

type enrollmentService struct {
	users       ports.EnrollmentRepository
	credentials ports.CredentialRepository
	encoder     ports.FaceEncoder
	captures    ports.CaptureStore
	tracker     ports.TokenTracker
	refresher   ports.CacheRefresher
	log         zerolog.Logger
}

// NewEnrollmentService wires the administrative mutations. captures may be
// nil, in which case enrollment images are not kept.
func NewEnrollmentService(
	users ports.EnrollmentRepository,
	credentials ports.CredentialRepository,
	encoder ports.FaceEncoder,
	captures ports.CaptureStore,
	tracker ports.TokenTracker,
	refresher ports.CacheRefresher,
	log zerolog.Logger,
) ports.EnrollmentService {
	return &enrollmentService{
		users:       users,
		credentials: credentials,
		encoder:     encoder,
		captures:    captures,
		tracker:     tracker,
		refresher:   refresher,
		log:         log,
	}
}

func (s *enrollmentService) EnrollUser(ctx context.Context, in ports.EnrollInput) (*ports.EnrollResult, error) {
	// 1. Validate everything before touching the store.
	name, err := domain.NormalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	for i, v := range in.Vectors {
		if len(v) != domain.EmbeddingDimension {
			return nil, fmt.Errorf("%w: vector %d has %d values", domain.ErrDimensionMismatch, i, len(v))
		}
	}
	uid := domain.NormalizeUID(in.CredentialUID)

	// 2. Create (or reuse) the user. From here on rows are committed, so
	// the cache is refreshed whatever happens next.
	userID, err := s.users.InsertUser(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("enroll %q: %w", name, err)
	}
	res := &ports.EnrollResult{UserID: userID, Name: name}

	err = s.attach(ctx, res, in, uid)

	// 6. Refresh so the new embeddings are matchable right away.
	res.CacheRefreshed = s.refresh(ctx)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("user_id", userID).
		Str("name", name).
		Int("embeddings", res.Embeddings).
		Int("skipped_images", res.SkippedImages).
		Bool("credential", res.CredentialUID != "").
		Msg("user enrolled")

	return res, nil
}

// attach stores the images, raw vectors and credential of in for the user
// in res, counting what was stored.
func (s *enrollmentService) attach(ctx context.Context, res *ports.EnrollResult, in ports.EnrollInput, uid string) error {
	// 3. Images: extract, keep the ones with a face, store their vectors.
	for _, img := range in.Images {
		stored, err := s.enrollImage(ctx, res.UserID, res.Name, img)
		if err != nil {
			return err
		}
		if stored == 0 {
			res.SkippedImages++
			continue
		}
		res.Embeddings += stored
	}

	// 4. Raw vectors carry no image.
	for _, v := range in.Vectors {
		if err := s.users.InsertEmbedding(ctx, res.UserID, v, ""); err != nil {
			return fmt.Errorf("enroll %q: insert embedding: %w", res.Name, err)
		}
		res.Embeddings++
	}

	// 5. Optional credential.
	if uid != "" {
		if err := s.bind(ctx, uid, res.UserID); err != nil {
			return err
		}
		res.CredentialUID = uid
	}
	return nil
}

// enrollImage returns the number of embeddings stored for img. Images the
// encoder rejects, cannot decode or finds no face in store nothing.
func (s *enrollmentService) enrollImage(ctx context.Context, userID, name string, img ports.EnrollImage) (int, error) {
	if len(img.Data) == 0 {
		return 0, nil
	}
	ext, err := s.encoder.Extract(ctx, img.Data)
	if err != nil {
		s.log.Warn().Err(err).Str("file", img.Filename).Msg("enrollment image skipped, extraction failed")
		return 0, nil
	}
	if ext.Status != ports.ExtractionOK || len(ext.Vectors) == 0 {
		s.log.Debug().Str("file", img.Filename).Msg("enrollment image skipped, no face")
		return 0, nil
	}

	ref := ""
	if s.captures != nil {
		key := path.Join("known", SafeName(name), SafeName(img.Filename))
		if ref, err = s.captures.Save(ctx, key, img.Data); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("failed to store enrollment image")
			ref = ""
		}
	}

	for _, v := range ext.Vectors {
		if err := s.users.InsertEmbedding(ctx, userID, v, ref); err != nil {
			return 0, fmt.Errorf("enroll %q: insert embedding: %w", name, err)
		}
	}
	return len(ext.Vectors), nil
}

func (s *enrollmentService) DeleteUser(ctx context.Context, userID string) (*ports.MutationResult, error) {
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", userID).Msg("user deleted")
	return &ports.MutationResult{CacheRefreshed: s.refresh(ctx)}, nil
}

func (s *enrollmentService) BindCredential(ctx context.Context, rawUID, userID string) error {
	uid := domain.NormalizeUID(rawUID)
	if uid == "" {
		return domain.ErrEmptyUID
	}
	return s.bind(ctx, uid, userID)
}

func (s *enrollmentService) bind(ctx context.Context, uid, userID string) error {
	if err := s.credentials.UpsertCredentialBinding(ctx, uid, userID); err != nil {
		return fmt.Errorf("bind credential %s: %w", uid, err)
	}

	// A swipe consumed by enrollment must not be offered again.
	last, err := s.tracker.Peek(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read last seen token")
		return nil
	}
	if last.UID == uid {
		if err := s.tracker.Clear(ctx); err != nil {
			s.log.Warn().Err(err).Msg("failed to clear last seen token")
		}
	}
	return nil
}

func (s *enrollmentService) DeleteCredential(ctx context.Context, id string) error {
	return s.credentials.DeleteCredential(ctx, id)
}

func (s *enrollmentService) ListUsers(ctx context.Context) ([]domain.UserSummary, error) {
	return s.users.ListUsers(ctx)
}

func (s *enrollmentService) ListCredentials(ctx context.Context) ([]domain.Credential, error) {
	return s.credentials.ListCredentials(ctx)
}

// refresh rebuilds the cache after a committed mutation. It outlives the
// request so a disconnecting admin cannot leave the cache stale. Failure is
// reported to the caller as a flag; the mutation itself stands.
func (s *enrollmentService) refresh(ctx context.Context) bool {
	if err := s.refresher.Refresh(context.WithoutCancel(ctx)); err != nil {
		s.log.Warn().Err(err).Msg("mutation committed but cache refresh failed")
		return false
	}
	return true
}

// SafeName reduces s to a single path element of letters, digits, dot,
// dash and underscore. Whitespace becomes an underscore.
func SafeName(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '\t':
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unnamed"
	}
	return out
}
