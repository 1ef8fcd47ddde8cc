package service

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/rs/zerolog"

	"github.com/99minutos/access-control/internal/core/domain"
	"github.com/99minutos/access-control/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type storedEmbedding struct {
	userID string
	vector domain.Vector
	ref    string
}

type stubEnrollmentRepo struct {
	users      map[string]string // name -> id
	embeddings []storedEmbedding
	nextID     int
	insertErr  error
	embedErr   error
	deleted    []string
}

func newStubEnrollmentRepo() *stubEnrollmentRepo {
	return &stubEnrollmentRepo{users: make(map[string]string)}
}

func (r *stubEnrollmentRepo) ListAllEmbeddings(_ context.Context) ([]domain.EmbeddingRecord, error) {
	var out []domain.EmbeddingRecord
	for _, e := range r.embeddings {
		out = append(out, domain.EmbeddingRecord{UserID: e.userID, Vector: e.vector})
	}
	return out, nil
}

func (r *stubEnrollmentRepo) InsertUser(_ context.Context, name string) (string, error) {
	if r.insertErr != nil {
		return "", r.insertErr
	}
	if id, ok := r.users[name]; ok {
		return id, nil
	}
	r.nextID++
	id := strconv.Itoa(r.nextID)
	r.users[name] = id
	return id, nil
}

func (r *stubEnrollmentRepo) InsertEmbedding(_ context.Context, userID string, v domain.Vector, ref string) error {
	if r.embedErr != nil {
		return r.embedErr
	}
	r.embeddings = append(r.embeddings, storedEmbedding{userID: userID, vector: v, ref: ref})
	return nil
}

func (r *stubEnrollmentRepo) DeleteUser(_ context.Context, userID string) error {
	for name, id := range r.users {
		if id == userID {
			delete(r.users, name)
			r.deleted = append(r.deleted, userID)
			return nil
		}
	}
	return domain.ErrUserNotFound
}

func (r *stubEnrollmentRepo) ListUsers(_ context.Context) ([]domain.UserSummary, error) {
	var out []domain.UserSummary
	for name, id := range r.users {
		out = append(out, domain.UserSummary{User: domain.User{ID: id, Name: name}})
	}
	return out, nil
}

func (r *stubEnrollmentRepo) CountUsers(_ context.Context) (int64, error) {
	return int64(len(r.users)), nil
}

func (r *stubEnrollmentRepo) CountEmbeddings(_ context.Context) (int64, error) {
	return int64(len(r.embeddings)), nil
}

type stubRefresher struct {
	calls  int
	err    error
	ctxErr error // ctx.Err() seen by the last refresh
}

func (r *stubRefresher) Refresh(ctx context.Context) error {
	r.calls++
	r.ctxErr = ctx.Err()
	return r.err
}

type enrollFixture struct {
	users     *stubEnrollmentRepo
	creds     *stubCredentialRepo
	encoder   *stubEncoder
	captures  *stubCaptureStore
	tracker   *MemoryTokenTracker
	refresher *stubRefresher
	svc       ports.EnrollmentService
}

func newEnrollFixture() *enrollFixture {
	f := &enrollFixture{
		users:     newStubEnrollmentRepo(),
		creds:     newStubCredentialRepo(),
		encoder:   &stubEncoder{result: ports.Extraction{Status: ports.ExtractionOK, Vectors: []domain.Vector{vec(0.3)}}},
		captures:  newStubCaptureStore(),
		tracker:   NewMemoryTokenTracker(0),
		refresher: &stubRefresher{},
	}
	f.svc = NewEnrollmentService(f.users, f.creds, f.encoder, f.captures, f.tracker, f.refresher, zerolog.Nop())
	return f
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestEnrollmentService_EnrollUser_Images(t *testing.T) {
	f := newEnrollFixture()

	res, err := f.svc.EnrollUser(context.Background(), ports.EnrollInput{
		Name:   "  Ana Maria ",
		Images: []ports.EnrollImage{{Filename: "front view.jpg", Data: []byte("img")}},
	})
	if err != nil {
		t.Fatalf("EnrollUser: %v", err)
	}
	if res.Name != "Ana Maria" || res.Embeddings != 1 || res.SkippedImages != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.CacheRefreshed || f.refresher.calls != 1 {
		t.Fatalf("expected one synchronous refresh, got %d", f.refresher.calls)
	}

	const key = "known/Ana_Maria/front_view.jpg"
	if _, ok := f.captures.saved[key]; !ok {
		t.Fatalf("expected image stored under %s, got %v", key, f.captures.saved)
	}
	if len(f.users.embeddings) != 1 || f.users.embeddings[0].ref != key {
		t.Fatalf("unexpected stored embeddings: %+v", f.users.embeddings)
	}
}

func TestEnrollmentService_EnrollUser_SkipsFacelessImages(t *testing.T) {
	f := newEnrollFixture()
	f.encoder.result = ports.Extraction{Status: ports.ExtractionNoFace}

	res, err := f.svc.EnrollUser(context.Background(), ports.EnrollInput{
		Name:   "bob",
		Images: []ports.EnrollImage{{Filename: "a.jpg", Data: []byte("x")}, {Filename: "b.jpg", Data: []byte("y")}},
	})
	if err != nil {
		t.Fatalf("EnrollUser: %v", err)
	}
	if res.Embeddings != 0 || res.SkippedImages != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(f.captures.saved) != 0 {
		t.Fatalf("faceless images must not be kept, got %v", f.captures.saved)
	}
}

func TestEnrollmentService_EnrollUser_EncoderFailureSkipsImage(t *testing.T) {
	f := newEnrollFixture()
	f.encoder.err = errors.New("encoder down")
	f.encoder.failOn = 2

	res, err := f.svc.EnrollUser(context.Background(), ports.EnrollInput{
		Name:   "bob",
		Images: []ports.EnrollImage{{Filename: "a.jpg", Data: []byte("x")}, {Filename: "b.jpg", Data: []byte("y")}},
	})
	if err != nil {
		t.Fatalf("EnrollUser: %v", err)
	}
	if res.Embeddings != 1 || res.SkippedImages != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(f.users.embeddings) != 1 || !res.CacheRefreshed || f.refresher.calls != 1 {
		t.Fatalf("expected the stored embedding to be refreshed into the cache, refresh calls=%d", f.refresher.calls)
	}
}

func TestEnrollmentService_EnrollUser_PartialFailureStillRefreshes(t *testing.T) {
	f := newEnrollFixture()
	f.creds.bindErr = domain.ErrUserNotFound

	_, err := f.svc.EnrollUser(context.Background(), ports.EnrollInput{
		Name:          "ivy",
		Vectors:       []domain.Vector{vec(0.5)},
		CredentialUID: "CAFE",
	})
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if len(f.users.embeddings) != 1 {
		t.Fatalf("expected the vector to be committed, got %d", len(f.users.embeddings))
	}
	if f.refresher.calls != 1 {
		t.Fatalf("committed rows must reach the cache, refresh calls=%d", f.refresher.calls)
	}

	f = newEnrollFixture()
	f.users.embedErr = errors.New("disk full")
	if _, err := f.svc.EnrollUser(context.Background(), ports.EnrollInput{Name: "jon", Vectors: []domain.Vector{vec(0)}}); err == nil {
		t.Fatal("expected insert failure to be returned")
	}
	if f.refresher.calls != 1 {
		t.Fatalf("user row is committed, expected a refresh, got %d", f.refresher.calls)
	}
}

func TestEnrollmentService_RefreshOutlivesRequest(t *testing.T) {
	f := newEnrollFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.EnrollUser(ctx, ports.EnrollInput{Name: "kim", Vectors: []domain.Vector{vec(0)}})
	if err != nil {
		t.Fatalf("EnrollUser: %v", err)
	}
	if !res.CacheRefreshed || f.refresher.ctxErr != nil {
		t.Fatalf("refresh inherited request cancellation: %v", f.refresher.ctxErr)
	}
}

func TestEnrollmentService_EnrollUser_RawVectors(t *testing.T) {
	f := newEnrollFixture()

	res, err := f.svc.EnrollUser(context.Background(), ports.EnrollInput{
		Name:    "carol",
		Vectors: []domain.Vector{vec(1), vec(2)},
	})
	if err != nil {
		t.Fatalf("EnrollUser: %v", err)
	}
	if res.Embeddings != 2 || f.encoder.calls != 0 {
		t.Fatalf("unexpected result: %+v (encoder calls %d)", res, f.encoder.calls)
	}
	if f.users.embeddings[0].ref != "" {
		t.Fatalf("raw vectors carry no image ref, got %q", f.users.embeddings[0].ref)
	}
}

func TestEnrollmentService_EnrollUser_Validation(t *testing.T) {
	f := newEnrollFixture()

	if _, err := f.svc.EnrollUser(context.Background(), ports.EnrollInput{Name: "   "}); !errors.Is(err, domain.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	_, err := f.svc.EnrollUser(context.Background(), ports.EnrollInput{Name: "dan", Vectors: []domain.Vector{{1, 2, 3}}})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if len(f.users.users) != 0 {
		t.Fatal("invalid input must not create a user")
	}
}

func TestEnrollmentService_EnrollUser_IdempotentByName(t *testing.T) {
	f := newEnrollFixture()
	first, _ := f.svc.EnrollUser(context.Background(), ports.EnrollInput{Name: "eve"})
	second, _ := f.svc.EnrollUser(context.Background(), ports.EnrollInput{Name: "eve"})
	if first.UserID != second.UserID {
		t.Fatalf("expected same user id, got %s and %s", first.UserID, second.UserID)
	}
}

func TestEnrollmentService_EnrollUser_CredentialClearsMatchingSwipe(t *testing.T) {
	f := newEnrollFixture()
	_ = f.tracker.Observe(context.Background(), "04AB")

	res, err := f.svc.EnrollUser(context.Background(), ports.EnrollInput{Name: "fay", CredentialUID: " 04ab "})
	if err != nil {
		t.Fatalf("EnrollUser: %v", err)
	}
	if res.CredentialUID != "04AB" || f.creds.bound["04AB"] != res.UserID {
		t.Fatalf("credential not bound: %+v %v", res, f.creds.bound)
	}
	last, _ := f.tracker.Peek(context.Background())
	if last.UID != "" {
		t.Fatalf("expected tracker cleared, got %q", last.UID)
	}
}

func TestEnrollmentService_BindCredential_KeepsOtherSwipe(t *testing.T) {
	f := newEnrollFixture()
	_ = f.tracker.Observe(context.Background(), "OTHER")

	if err := f.svc.BindCredential(context.Background(), "card1", "1"); err != nil {
		t.Fatalf("BindCredential: %v", err)
	}
	last, _ := f.tracker.Peek(context.Background())
	if last.UID != "OTHER" {
		t.Fatalf("unrelated swipe must survive, got %q", last.UID)
	}
	if err := f.svc.BindCredential(context.Background(), "  ", "1"); !errors.Is(err, domain.ErrEmptyUID) {
		t.Fatalf("expected ErrEmptyUID, got %v", err)
	}
}

func TestEnrollmentService_BindCredential_UnknownUser(t *testing.T) {
	f := newEnrollFixture()
	f.creds.bindErr = domain.ErrUserNotFound
	if err := f.svc.BindCredential(context.Background(), "abc", "404"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestEnrollmentService_RefreshFailureDegrades(t *testing.T) {
	f := newEnrollFixture()
	f.refresher.err = errors.New("db busy")

	res, err := f.svc.EnrollUser(context.Background(), ports.EnrollInput{Name: "gus", Vectors: []domain.Vector{vec(0)}})
	if err != nil {
		t.Fatalf("mutation must stand when refresh fails, got %v", err)
	}
	if res.CacheRefreshed {
		t.Fatal("expected CacheRefreshed=false")
	}
}

func TestEnrollmentService_DeleteUser(t *testing.T) {
	f := newEnrollFixture()
	res, _ := f.svc.EnrollUser(context.Background(), ports.EnrollInput{Name: "hal"})

	out, err := f.svc.DeleteUser(context.Background(), res.UserID)
	if err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if !out.CacheRefreshed || f.refresher.calls != 2 {
		t.Fatalf("expected refresh after delete, calls=%d", f.refresher.calls)
	}

	if _, err := f.svc.DeleteUser(context.Background(), "missing"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if f.refresher.calls != 2 {
		t.Fatal("failed delete must not refresh")
	}
}

func TestSafeName(t *testing.T) {
	cases := map[string]string{
		"Ana Maria":        "Ana_Maria",
		"../../etc/passwd": "etcpasswd",
		"photo.JPG":        "photo.JPG",
		"...":              "unnamed",
		"José":             "Jos",
	}
	for in, want := range cases {
		if got := SafeName(in); got != want {
			t.Fatalf("SafeName(%q) = %q, want %q", in, got, want)
		}
	}
}
