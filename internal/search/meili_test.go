package search

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"jarvis/board/internal/store"
)

// fakeMeiliServer answers the handful of endpoints the client uses. While
// down, every request fails with a non-retried 500.
type fakeMeiliServer struct {
	up        atomic.Bool
	mu        sync.Mutex
	documents []TaskDocument
}

func (f *fakeMeiliServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !f.up.Load() {
		http.Error(w, `{"message":"down","code":"internal","type":"internal"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/health" {
		_, _ = io.WriteString(w, `{"status":"available"}`)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/indexes/"+idxTasks+"/documents" {
		var docs []TaskDocument
		if err := json.NewDecoder(r.Body).Decode(&docs); err == nil {
			f.mu.Lock()
			f.documents = append(f.documents, docs...)
			f.mu.Unlock()
		}
	}
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, `{"taskUid":1,"indexUid":"`+idxTasks+`","status":"enqueued","type":"documentAdditionOrUpdate","enqueuedAt":"2024-01-01T00:00:00Z"}`)
}

func (f *fakeMeiliServer) indexedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.documents))
	for _, doc := range f.documents {
		ids = append(ids, doc.ID)
	}
	return ids
}

func TestSearchRequestRequiresEveryTerm(t *testing.T) {
	req := searchRequest(7)
	if req.MatchingStrategy != meili.All {
		t.Fatalf("expected matching strategy %q, got %q", meili.All, req.MatchingStrategy)
	}
	if req.Limit != 7 || !req.ShowRankingScore {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestRecoveryReindexesTasksWrittenDuringOutage(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := &fakeMeiliServer{}
	server := httptest.NewServer(fake)
	defer server.Close()

	created := store.Task{ID: 5, Title: "Renew passport"}
	tasks := &fakeTasks{tasks: map[int64]store.Task{created.ID: created}}

	m := newMeili(server.URL, "", zaptest.NewLogger(t), 10*time.Millisecond)
	svc := NewService(m, tasks, zaptest.NewLogger(t))
	defer svc.Close()

	if svc.Engine() != EngineDatabase {
		t.Fatal("expected meilisearch to start unhealthy")
	}
	// Written while the index is unreachable: nothing is pushed.
	svc.IndexTask(created)

	fake.up.Store(true)
	deadline := time.After(2 * time.Second)
	for svc.Engine() != EngineMeili {
		select {
		case <-deadline:
			t.Fatal("meilisearch never recovered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	ids := fake.indexedIDs()
	if len(ids) != 1 || ids[0] != created.ID {
		t.Fatalf("expected task %d to be reindexed before meilisearch was used, got %v", created.ID, ids)
	}
}

func TestRecoveryWaitsForSuccessfulCatchUp(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := &fakeMeiliServer{}
	server := httptest.NewServer(fake)
	defer server.Close()

	m := newMeili(server.URL, "", zaptest.NewLogger(t), 10*time.Millisecond)
	defer m.Close()

	var attempts atomic.Int32
	m.OnRecover(func() error {
		if attempts.Add(1) == 1 {
			return io.ErrUnexpectedEOF
		}
		return nil
	})
	fake.up.Store(true)

	deadline := time.After(2 * time.Second)
	for !m.Healthy() {
		select {
		case <-deadline:
			t.Fatal("meilisearch never recovered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if n := attempts.Load(); n < 2 {
		t.Fatalf("expected a failed catch-up to be retried, got %d attempts", n)
	}
}
