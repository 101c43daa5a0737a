package search

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const idxTasks = "jarvis_tasks"

const healthInterval = 10 * time.Second

// Meili indexes and queries tasks in Meilisearch.
type Meili struct {
	client    meili.ServiceManager
	logger    *zap.Logger
	healthy   atomic.Bool
	onRecover atomic.Pointer[func() error]
	interval  time.Duration
	done      chan struct{}
	stopped   chan struct{}
}

// NewMeili creates a Meilisearch client and configures the task index. The
// client starts unhealthy when the first health check fails and recovers
// through the background loop.
func NewMeili(url, apiKey string, logger *zap.Logger) *Meili {
	return newMeili(url, apiKey, logger, healthInterval)
}

func newMeili(url, apiKey string, logger *zap.Logger, interval time.Duration) *Meili {
	m := &Meili{
		client:   meili.New(url, meili.WithAPIKey(apiKey)),
		logger:   logger.Named("meili"),
		interval: interval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		m.logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxTasks,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug("create index (may already exist)", zap.String("index", idxTasks), zap.Error(err))
	}

	index := m.client.Index(idxTasks)
	filterable := []interface{}{"category", "priority", "status"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", zap.String("index", idxTasks), zap.Error(err))
	}
	searchable := []string{"title", "description", "category"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", zap.String("index", idxTasks), zap.Error(err))
	}
}

// OnRecover registers fn to run when Meilisearch comes back from an outage,
// after the index is reconfigured. Writes made while it was down never reached
// the index, so fn resends them. Meilisearch stays out of use until fn
// succeeds; a failure is retried on the next health check.
func (m *Meili) OnRecover(fn func() error) {
	m.onRecover.Store(&fn)
}

func (m *Meili) healthLoop() {
	defer close(m.stopped)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			if err == nil && !m.healthy.Load() {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
				if fn := m.onRecover.Load(); fn != nil {
					if err = (*fn)(); err != nil {
						m.logger.Warn("catch up after recovery", zap.Error(err))
					}
				}
			}
			m.healthy.Store(err == nil)
		}
	}
}

// Close stops the background health monitor and waits for it to exit.
func (m *Meili) Close() {
	close(m.done)
	<-m.stopped
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

type meiliHit struct {
	ID    int64
	Score float64
}

// Search returns matching task ids best first and the estimated total.
func (m *Meili) Search(terms []string, limit int) ([]meiliHit, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	resp, err := m.client.Index(idxTasks).Search(strings.Join(terms, " "), searchRequest(limit))
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	hits := make([]meiliHit, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if decoded, ok := decodeHit(hit); ok {
			hits = append(hits, decoded)
		}
	}
	return hits, int(resp.EstimatedTotalHits), nil
}

// searchRequest asks for ids only. Every term must match, as in the
// database index.
func searchRequest(limit int) *meili.SearchRequest {
	return &meili.SearchRequest{
		Limit:                int64(limit),
		AttributesToRetrieve: []string{"id"},
		ShowRankingScore:     true,
		MatchingStrategy:     meili.All,
	}
}

func decodeHit(hit meili.Hit) (meiliHit, bool) {
	raw, ok := hit["id"]
	if !ok {
		return meiliHit{}, false
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return meiliHit{}, false
	}
	result := meiliHit{ID: id}
	if rawScore, ok := hit["_rankingScore"]; ok {
		_ = json.Unmarshal(rawScore, &result.Score)
	}
	return result, true
}

// IndexTasks adds or replaces tasks in the index.
func (m *Meili) IndexTasks(documents []TaskDocument) error {
	if len(documents) == 0 {
		return nil
	}
	_, err := m.client.Index(idxTasks).AddDocuments(documents, nil)
	return err
}

// DeleteTask removes a task from the index.
func (m *Meili) DeleteTask(id int64) error {
	_, err := m.client.Index(idxTasks).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}
