package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chiRouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/inboxlab/styledex/internal/domain"
	"github.com/inboxlab/styledex/internal/domain/lexical"
	healthuc "github.com/inboxlab/styledex/internal/usecase/health"
	ingestuc "github.com/inboxlab/styledex/internal/usecase/ingest"
	migrateuc "github.com/inboxlab/styledex/internal/usecase/migrate"
	queryuc "github.com/inboxlab/styledex/internal/usecase/query"
)

// --- Fakes across all usecase contracts ---

type fakeCorpus struct {
	exists bool
	points map[string]domain.Point
	dense  []domain.Neighbor
}

func (f *fakeCorpus) Exists(_ context.Context, _ string, _ domain.Direction) (bool, error) {
	return f.exists, nil
}

func (f *fakeCorpus) Count(_ context.Context, _ string, _ domain.Direction) (int, error) {
	return len(f.points), nil
}

func (f *fakeCorpus) NearestByDense(_ context.Context, _ string, _ domain.Direction, _ []float32, _ int) ([]domain.Neighbor, error) {
	return f.dense, nil
}

func (f *fakeCorpus) NearestBySparse(_ context.Context, _ string, _ domain.Direction, _ domain.SparseVector, _ int) ([]domain.Neighbor, error) {
	return nil, nil
}

func (f *fakeCorpus) GetPoints(_ context.Context, _ string, _ domain.Direction, ids []string) ([]domain.Point, error) {
	var out []domain.Point
	for _, id := range ids {
		if p, ok := f.points[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCorpus) EnsureCollection(_ context.Context, _ string, _ domain.Direction, _ int) error {
	return nil
}

func (f *fakeCorpus) Upsert(_ context.Context, _ string, _ domain.Direction, points []domain.Point) error {
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeCorpus) ScanPage(_ context.Context, _ string, _ domain.Direction, _ uint64, _ int) ([]domain.Point, uint64, error) {
	return nil, 0, nil
}

func (f *fakeCorpus) ApplyUpdates(_ context.Context, _ string, _ domain.Direction, _ []domain.PointUpdate) error {
	return nil
}

type fakeEncoders struct{}

func (fakeEncoders) Load(_ context.Context, _ string) (lexical.Encoder, bool, error) {
	return lexical.Encoder{}, false, nil
}

func (fakeEncoders) Save(_ context.Context, _ string, _ lexical.Encoder) error { return nil }

type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: make([]float32, f.dim)}, nil
}

func (f fakeEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

type fakeUsers struct{}

func (fakeUsers) Register(_ context.Context, _ string) error      { return nil }
func (fakeUsers) ActiveUsers(_ context.Context) ([]string, error) { return nil, nil }

type fakePinger struct{ err error }

func (f fakePinger) Ping(_ context.Context) error { return f.err }

func newTestRouter(t *testing.T, corpus *fakeCorpus, dbErr error) http.Handler {
	return newTestRouterThreshold(t, corpus, dbErr, 0)
}

func newTestRouterThreshold(t *testing.T, corpus *fakeCorpus, dbErr error, scoreThreshold float64) http.Handler {
	t.Helper()

	emb := fakeEmbedder{dim: 4}
	querySvc := queryuc.New(corpus, fakeEncoders{}, emb, queryuc.Params{
		OverfetchMultiplier: 5,
		SemanticWeight:      0.7,
		LexicalWeight:       0.3,
	})
	ingestSvc := ingestuc.New(corpus, fakeUsers{}, emb, 4)
	migrateSvc := migrateuc.New(corpus, fakeEncoders{}, fakeUsers{}, fakePinger{err: dbErr}, 100, 200)
	healthSvc := healthuc.New(fakePinger{err: dbErr}, nil)

	server := NewServer(querySvc, ingestSvc, migrateSvc, healthSvc, scoreThreshold, zap.NewNop())

	r := chiRouter.NewRouter()
	server.RegisterRoutes(r)
	return r
}

func emptyCorpus() *fakeCorpus {
	return &fakeCorpus{points: make(map[string]domain.Point)}
}

func TestSearch_BadRequest(t *testing.T) {
	router := newTestRouter(t, emptyCorpus(), nil)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{broken`},
		{"missing user", `{"direction":"sent","query":"hello"}`},
		{"missing query", `{"user_id":"alice","direction":"sent"}`},
		{"bad direction", `{"user_id":"alice","direction":"sideways","query":"hello"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/search", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestSearch_MissingCorpus_200WithFailedResult(t *testing.T) {
	router := newTestRouter(t, emptyCorpus(), nil)

	body := `{"user_id":"alice","direction":"sent","query":"hello"}`
	req := httptest.NewRequest("POST", "/v1/search", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}

	var res struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Success {
		t.Error("result should be unsuccessful for a missing corpus")
	}
	if res.Error == "" {
		t.Error("result should carry a reason")
	}
}

func TestSearch_ReturnsDocuments(t *testing.T) {
	corpus := emptyCorpus()
	corpus.exists = true
	corpus.points["m1"] = domain.Point{ID: "m1", Payload: domain.Payload{UserID: "alice", Text: "hi there"}}
	corpus.dense = []domain.Neighbor{{ID: "m1", Score: 0.9}}
	router := newTestRouter(t, corpus, nil)

	body := `{"user_id":"alice","direction":"sent","query":"hello","limit":5}`
	req := httptest.NewRequest("POST", "/v1/search", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (%s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var res struct {
		Success   bool `json:"success"`
		Documents []struct {
			ID string `json:"id"`
		} `json:"documents"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success {
		t.Fatal("search should succeed")
	}
	if len(res.Documents) != 1 || res.Documents[0].ID != "m1" {
		t.Errorf("documents: got %+v", res.Documents)
	}
}

func TestSearch_ConfiguredDefaultThreshold(t *testing.T) {
	corpus := emptyCorpus()
	corpus.exists = true
	corpus.points["m1"] = domain.Point{ID: "m1", Payload: domain.Payload{UserID: "alice", Text: "hi there"}}
	corpus.points["m2"] = domain.Point{ID: "m2", Payload: domain.Payload{UserID: "alice", Text: "unrelated"}}
	corpus.dense = []domain.Neighbor{{ID: "m1", Score: 0.9}, {ID: "m2", Score: 0.2}}
	router := newTestRouterThreshold(t, corpus, nil, 0.5)

	search := func(t *testing.T, body string) []struct {
		ID string `json:"id"`
	} {
		t.Helper()
		req := httptest.NewRequest("POST", "/v1/search", strings.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status: got %d, want %d (%s)", rr.Code, http.StatusOK, rr.Body.String())
		}
		var res struct {
			Documents []struct {
				ID string `json:"id"`
			} `json:"documents"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return res.Documents
	}

	// No threshold in the request: the configured default filters the
	// low-scoring hit.
	docs := search(t, `{"user_id":"alice","direction":"sent","query":"hello"}`)
	if len(docs) != 1 || docs[0].ID != "m1" {
		t.Errorf("default threshold: got %+v, want only m1", docs)
	}

	// An explicit threshold, even zero, overrides the default.
	docs = search(t, `{"user_id":"alice","direction":"sent","query":"hello","score_threshold":0}`)
	if len(docs) != 2 {
		t.Errorf("explicit zero threshold: got %+v, want both documents", docs)
	}
}

func TestIngest_OK(t *testing.T) {
	corpus := emptyCorpus()
	router := newTestRouter(t, corpus, nil)

	body := `{"direction":"sent","emails":[{"id":"m1","text":"thanks for the update"}]}`
	req := httptest.NewRequest("POST", "/v1/users/alice/emails", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (%s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	if _, ok := corpus.points["m1"]; !ok {
		t.Error("point not stored")
	}
}

func TestIngest_BadDirection(t *testing.T) {
	router := newTestRouter(t, emptyCorpus(), nil)

	body := `{"direction":"up","emails":[]}`
	req := httptest.NewRequest("POST", "/v1/users/alice/emails", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestMigrate_OK(t *testing.T) {
	router := newTestRouter(t, emptyCorpus(), nil)

	req := httptest.NewRequest("POST", "/v1/migrations/sparse", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (%s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var res struct {
		UsersProcessed int      `json:"users_processed"`
		Errors         []string `json:"errors"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.UsersProcessed != 0 {
		t.Errorf("users processed: got %d, want 0", res.UsersProcessed)
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, emptyCorpus(), nil)

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestHealth_Degraded(t *testing.T) {
	router := newTestRouter(t, emptyCorpus(), errors.New("db down"))

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}
