package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/inboxlab/styledex/internal/domain"
	"github.com/inboxlab/styledex/internal/domain/lexical"
)

// fakeStore keys collections by "user/direction".
type fakeStore struct {
	corpora   map[string][]domain.Point
	applyErr  map[string]error
	applied   map[string][]domain.PointUpdate
	scanErr   map[string]error
	applyCall int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		corpora:  make(map[string][]domain.Point),
		applyErr: make(map[string]error),
		applied:  make(map[string][]domain.PointUpdate),
		scanErr:  make(map[string]error),
	}
}

func key(userID string, dir domain.Direction) string {
	return userID + "/" + string(dir)
}

func (f *fakeStore) addEmails(userID string, dir domain.Direction, texts ...string) {
	k := key(userID, dir)
	for i, text := range texts {
		f.corpora[k] = append(f.corpora[k], domain.Point{
			ID:      fmt.Sprintf("%s-%s-%d", userID, dir, i),
			Payload: domain.Payload{UserID: userID, Text: text},
		})
	}
}

func (f *fakeStore) Exists(_ context.Context, userID string, dir domain.Direction) (bool, error) {
	_, ok := f.corpora[key(userID, dir)]
	return ok, nil
}

func (f *fakeStore) ScanPage(_ context.Context, userID string, dir domain.Direction, cursor uint64, count int) ([]domain.Point, uint64, error) {
	k := key(userID, dir)
	if err := f.scanErr[k]; err != nil {
		return nil, 0, err
	}
	points := f.corpora[k]
	start := int(cursor)
	if start >= len(points) {
		return nil, 0, nil
	}
	end := min(start+count, len(points))
	var next uint64
	if end < len(points) {
		next = uint64(end)
	}
	return points[start:end], next, nil
}

func (f *fakeStore) ApplyUpdates(_ context.Context, userID string, dir domain.Direction, updates []domain.PointUpdate) error {
	f.applyCall++
	k := key(userID, dir)
	if err := f.applyErr[k]; err != nil {
		return err
	}
	f.applied[k] = append(f.applied[k], updates...)
	return nil
}

type fakeEncoderStore struct {
	saved map[string]lexical.Encoder
	err   error
}

func (f *fakeEncoderStore) Save(_ context.Context, userID string, enc lexical.Encoder) error {
	if f.err != nil {
		return f.err
	}
	if f.saved == nil {
		f.saved = make(map[string]lexical.Encoder)
	}
	f.saved[userID] = enc
	return nil
}

type fakeUsers struct {
	users []string
	err   error
}

func (f *fakeUsers) ActiveUsers(_ context.Context) ([]string, error) {
	return f.users, f.err
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(_ context.Context) error { return f.err }

func TestRun_TwoUsers_OneEmpty(t *testing.T) {
	store := newFakeStore()
	// User A has a sent collection with no documents.
	store.corpora[key("alice", domain.DirectionSent)] = nil
	// User B has sent mail in both directions.
	store.addEmails("bob", domain.DirectionSent,
		"thanks for the update", "see you at the meeting", "attached is the draft",
		"let me know what you think", "sounds good to me", "happy to help",
		"thanks again", "will do", "on my way", "talk soon",
	)
	store.addEmails("bob", domain.DirectionReceived, "please review the attached")

	encoders := &fakeEncoderStore{}
	svc := New(store, encoders, &fakeUsers{users: []string{"alice", "bob"}}, &fakePinger{}, 100, 200)

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.UsersProcessed != 2 {
		t.Errorf("users processed: got %d, want 2", report.UsersProcessed)
	}
	if len(report.Errors) != 0 {
		t.Errorf("errors: got %v, want none", report.Errors)
	}
	if report.PointsUpdated != 11 {
		t.Errorf("points updated: got %d, want 11 (10 sent + 1 received for bob)", report.PointsUpdated)
	}

	// Alice's empty corpus still gets an (empty) encoder snapshot and no writes.
	if enc, ok := encoders.saved["alice"]; !ok || !enc.IsEmpty() {
		t.Error("alice should have an empty encoder snapshot saved")
	}
	if got := len(store.applied[key("alice", domain.DirectionSent)]); got != 0 {
		t.Errorf("alice updates: got %d, want 0", got)
	}

	if enc, ok := encoders.saved["bob"]; !ok || enc.IsEmpty() {
		t.Error("bob should have a fitted encoder snapshot saved")
	}
	if got := len(store.applied[key("bob", domain.DirectionSent)]); got != 10 {
		t.Errorf("bob sent updates: got %d, want 10", got)
	}
	if got := len(store.applied[key("bob", domain.DirectionReceived)]); got != 1 {
		t.Errorf("bob received updates: got %d, want 1", got)
	}
}

func TestRun_UpdatesAreSparseOnly(t *testing.T) {
	store := newFakeStore()
	store.addEmails("u1", domain.DirectionSent, "hello world", "hello again")

	svc := New(store, &fakeEncoderStore{}, &fakeUsers{users: []string{"u1"}}, &fakePinger{}, 100, 200)
	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, u := range store.applied[key("u1", domain.DirectionSent)] {
		if !u.HasSparse() {
			t.Error("migration update must carry a sparse vector")
		}
		if u.HasDense() || u.HasPayload() {
			t.Error("migration update must not touch dense vector or payload")
		}
	}
}

func TestRun_PingFailureTerminal(t *testing.T) {
	svc := New(newFakeStore(), &fakeEncoderStore{}, &fakeUsers{}, &fakePinger{err: errors.New("refused")}, 100, 200)

	_, err := svc.Run(context.Background())
	if err == nil {
		t.Fatal("unreachable store must fail the run")
	}
	if !strings.Contains(err.Error(), string(StateNotStarted)) {
		t.Errorf("error should name the failing state, got %v", err)
	}
}

func TestRun_EnumerationFailureTerminal(t *testing.T) {
	svc := New(newFakeStore(), &fakeEncoderStore{}, &fakeUsers{err: errors.New("smembers failed")}, &fakePinger{}, 100, 200)

	if _, err := svc.Run(context.Background()); err == nil {
		t.Fatal("user enumeration failure must fail the run")
	}
}

func TestRun_PerUserErrorContinues(t *testing.T) {
	store := newFakeStore()
	store.addEmails("broken", domain.DirectionSent, "some text")
	store.scanErr[key("broken", domain.DirectionSent)] = errors.New("scan failed")
	store.addEmails("ok", domain.DirectionSent, "thanks for everything")

	svc := New(store, &fakeEncoderStore{}, &fakeUsers{users: []string{"broken", "ok"}}, &fakePinger{}, 100, 200)

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("per-user failures must not fail the run: %v", err)
	}
	if report.UsersProcessed != 2 {
		t.Errorf("users processed: got %d, want 2", report.UsersProcessed)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("errors: got %v, want 1", report.Errors)
	}
	if !strings.Contains(report.Errors[0], "broken") {
		t.Errorf("error should name the user, got %q", report.Errors[0])
	}
	if got := len(store.applied[key("ok", domain.DirectionSent)]); got != 1 {
		t.Errorf("healthy user updates: got %d, want 1", got)
	}
}

func TestRun_FailedBatchSkipped(t *testing.T) {
	store := newFakeStore()
	store.addEmails("u1", domain.DirectionSent, "one thing", "another thing", "third thing")
	store.applyErr[key("u1", domain.DirectionReceived)] = errors.New("write failed")
	store.addEmails("u1", domain.DirectionReceived, "incoming thing")

	svc := New(store, &fakeEncoderStore{}, &fakeUsers{users: []string{"u1"}}, &fakePinger{}, 100, 200)

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.PointsUpdated != 3 {
		t.Errorf("points updated: got %d, want 3 (received batch failed)", report.PointsUpdated)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("errors: got %v, want 1 batch error", report.Errors)
	}
	if !strings.Contains(report.Errors[0], string(StateUpserting)) {
		t.Errorf("batch error should name the failing state, got %q", report.Errors[0])
	}
}

func TestRun_ReceivedScanErrorNamesState(t *testing.T) {
	store := newFakeStore()
	store.addEmails("u1", domain.DirectionSent, "one thing", "another thing")
	store.addEmails("u1", domain.DirectionReceived, "incoming thing")
	store.scanErr[key("u1", domain.DirectionReceived)] = errors.New("scan failed")

	svc := New(store, &fakeEncoderStore{}, &fakeUsers{users: []string{"u1"}}, &fakePinger{}, 100, 200)

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.PointsUpdated != 2 {
		t.Errorf("points updated: got %d, want 2 (sent direction only)", report.PointsUpdated)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("errors: got %v, want 1", report.Errors)
	}
	if !strings.Contains(report.Errors[0], string(StateEncoding)) {
		t.Errorf("error should name the failing state, got %q", report.Errors[0])
	}
}

func TestRun_Batching(t *testing.T) {
	store := newFakeStore()
	texts := make([]string, 25)
	for i := range texts {
		texts[i] = fmt.Sprintf("message number %d with shared words", i)
	}
	store.addEmails("u1", domain.DirectionSent, texts...)

	svc := New(store, &fakeEncoderStore{}, &fakeUsers{users: []string{"u1"}}, &fakePinger{}, 10, 200)

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.PointsUpdated != 25 {
		t.Errorf("points updated: got %d, want 25", report.PointsUpdated)
	}
	if store.applyCall != 3 {
		t.Errorf("apply calls: got %d, want 3 (batches of 10)", store.applyCall)
	}
}

func TestRun_MissingReceivedCorpusIsFine(t *testing.T) {
	store := newFakeStore()
	store.addEmails("u1", domain.DirectionSent, "only outgoing mail here")

	svc := New(store, &fakeEncoderStore{}, &fakeUsers{users: []string{"u1"}}, &fakePinger{}, 100, 200)

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Errors) != 0 {
		t.Errorf("errors: got %v, want none", report.Errors)
	}
	if report.PointsUpdated != 1 {
		t.Errorf("points updated: got %d, want 1", report.PointsUpdated)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	store := newFakeStore()
	store.addEmails("u1", domain.DirectionSent, "text")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := New(store, &fakeEncoderStore{}, &fakeUsers{users: []string{"u1"}}, &fakePinger{}, 100, 200)
	if _, err := svc.Run(ctx); err == nil {
		t.Fatal("cancelled context must interrupt the run")
	}
}
