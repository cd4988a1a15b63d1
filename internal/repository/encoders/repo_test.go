package encoders

import (
	"context"
	"errors"
	"testing"

	"github.com/inboxlab/styledex/internal/db"
	"github.com/inboxlab/styledex/internal/domain/lexical"
)

type mockKVStore struct {
	data   map[string][]byte
	getErr error
	setErr error
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: make(map[string][]byte)}
}

func (m *mockKVStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKVStore) Set(_ context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func TestSaveAndLoad(t *testing.T) {
	ms := newMockKVStore()
	repo := New(ms)
	ctx := context.Background()

	enc := lexical.Fit([]string{"thanks for everything", "thanks again"})
	if err := repo.Save(ctx, "alice", enc); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, found, err := repo.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatal("expected snapshot to be found")
	}
	if got.DocCount() != enc.DocCount() || got.VocabSize() != enc.VocabSize() {
		t.Errorf("restored encoder: docs=%d vocab=%d, want docs=%d vocab=%d",
			got.DocCount(), got.VocabSize(), enc.DocCount(), enc.VocabSize())
	}
}

func TestSave_ReplacesPrevious(t *testing.T) {
	ms := newMockKVStore()
	repo := New(ms)
	ctx := context.Background()

	if err := repo.Save(ctx, "alice", lexical.Fit([]string{"one doc"})); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, "alice", lexical.Fit([]string{"one doc", "two docs"})); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, _, err := repo.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.DocCount() != 2 {
		t.Errorf("doc count: got %d, want 2 (latest snapshot)", got.DocCount())
	}
}

func TestLoad_NotFound(t *testing.T) {
	repo := New(newMockKVStore())

	enc, found, err := repo.Load(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("missing snapshot must not be an error, got %v", err)
	}
	if found {
		t.Error("expected found=false")
	}
	if !enc.IsEmpty() {
		t.Error("expected empty encoder")
	}
}

func TestLoad_StoreError(t *testing.T) {
	ms := newMockKVStore()
	ms.getErr = errors.New("conn reset")
	repo := New(ms)

	if _, _, err := repo.Load(context.Background(), "alice"); err == nil {
		t.Fatal("store failure must surface as an error")
	}
}

func TestLoad_CorruptSnapshot(t *testing.T) {
	ms := newMockKVStore()
	ms.data[encKeyPrefix+"alice"] = []byte("{broken")
	repo := New(ms)

	if _, _, err := repo.Load(context.Background(), "alice"); err == nil {
		t.Fatal("corrupt snapshot must surface as an error")
	}
}
