package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
)

const idxKeys = "localeforge_keys"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  zerolog.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the key index.
// An unreachable server is reported unhealthy and retried by the health loop.
func NewMeili(url, apiKey string, logger zerolog.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		logger: logger.With().Str("component", "search").Logger(),
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		m.logger.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
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
		Uid:        idxKeys,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug().Err(err).Str("index", idxKeys).Msg("create index (may already exist)")
	}

	index := m.client.Index(idxKeys)
	filterable := []interface{}{"branchId", "projectId", "namespace"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn().Err(err).Str("index", idxKeys).Msg("update filterable attributes")
	}
	searchable := []string{"name", "namespace", "values"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn().Err(err).Str("index", idxKeys).Msg("update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info().Msg("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	resp, err := m.client.Index(idxKeys).Search(q.Text, &meili.SearchRequest{
		Limit:                 int64(q.limit()),
		Offset:                int64(q.offset()),
		Filter:                []string{fmt.Sprintf("branchId = %q", q.BranchID)},
		AttributesToHighlight: []string{"values"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		KeyID:     decodeString(hit, "id"),
		Namespace: decodeString(hit, "namespace"),
		Name:      decodeString(hit, "name"),
		Snippet:   highlightedValue(hit),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// highlightedValue picks the first translation (by language) that carries
// a highlight, falling back to the first non-empty one.
func highlightedValue(hit meili.Hit) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted struct {
		Values map[string]string `json:"values"`
	}
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	languages := make([]string, 0, len(formatted.Values))
	for lang := range formatted.Values {
		languages = append(languages, lang)
	}
	sort.Strings(languages)

	fallback := ""
	for _, lang := range languages {
		value := strings.TrimSpace(formatted.Values[lang])
		if strings.Contains(value, "<mark>") {
			return value
		}
		if fallback == "" {
			fallback = value
		}
	}
	return fallback
}

// IndexKeys adds or replaces key records.
func (m *Meili) IndexKeys(records []KeyRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxKeys).AddDocuments(records, nil)
	return err
}

// DeleteKey removes a key from the index.
func (m *Meili) DeleteKey(id string) error {
	_, err := m.client.Index(idxKeys).DeleteDocument(id, nil)
	return err
}
