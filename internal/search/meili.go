package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
)

const (
	idxBoards = "taskplanner_boards"
	idxCards  = "taskplanner_cards"
)

var errUnhealthy = errors.New("meilisearch unhealthy")

// Meili searches boards and cards in Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     zerolog.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a client and configures indexes when the server
// answers. An unreachable server is retried by the health loop.
func NewMeili(url, apiKey string, logger zerolog.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		log:    logger.With().Str("component", "meilisearch").Logger(),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		m.log.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		searchable []string
	}{
		{uid: idxBoards, searchable: []string{"name", "description"}},
		{uid: idxCards, searchable: []string{"name", "description"}},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idx.uid, PrimaryKey: "id"}); err != nil {
			m.log.Debug().Err(err).Str("index", idx.uid).Msg("create index (may already exist)")
		}
		index := m.client.Index(idx.uid)
		filterable := []interface{}{"boardId"}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			m.log.Warn().Err(err).Str("index", idx.uid).Msg("update filterable attributes")
		}
		searchable := idx.searchable
		if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
			m.log.Warn().Err(err).Str("index", idx.uid).Msg("update searchable attributes")
		}
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
				m.log.Info().Msg("meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
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

// Search queries both indexes, or one of them, in a single multi-search.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, errUnhealthy
	}
	if !q.scoped() {
		return nil, 0, nil
	}

	var queries []*meili.SearchRequest
	for _, target := range []struct {
		uid  string
		rtyp ResultType
	}{
		{idxBoards, ResultBoard},
		{idxCards, ResultCard},
	} {
		if q.FilterType != "" && q.FilterType != target.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              target.uid,
			Query:                 q.Text,
			Limit:                 int64(q.limit()),
			Offset:                int64(q.offset()),
			AttributesToHighlight: []string{"name", "description"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		}
		if filter := boardFilter(q); filter != "" {
			sr.Filter = filter
		}
		queries = append(queries, sr)
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}
	return results, total, nil
}

// boardFilter restricts hits to the caller's boards.
func boardFilter(q Query) string {
	if q.All {
		return ""
	}
	ids := make([]string, len(q.BoardIDs))
	for i, id := range q.BoardIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return "boardId IN [" + strings.Join(ids, ", ") + "]"
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxBoards:
		return ResultBoard
	case idxCards:
		return ResultCard
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	return Result{
		Type:    rtyp,
		ID:      decodeInt(hit, "id"),
		BoardID: decodeInt(hit, "boardId"),
		ListID:  decodeInt(hit, "listId"),
		Title:   firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name")),
		Snippet: firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description")),
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

func decodeInt(hit meili.Hit, key string) int64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	s, _ := formatted[key].(string)
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func (m *Meili) IndexBoards(boards []BoardRecord) error {
	if len(boards) == 0 {
		return nil
	}
	_, err := m.client.Index(idxBoards).AddDocuments(boards, nil)
	return err
}

func (m *Meili) IndexCards(cards []CardRecord) error {
	if len(cards) == 0 {
		return nil
	}
	_, err := m.client.Index(idxCards).AddDocuments(cards, nil)
	return err
}

func (m *Meili) DeleteBoard(id int64) error {
	_, err := m.client.Index(idxBoards).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}

func (m *Meili) DeleteCard(id int64) error {
	_, err := m.client.Index(idxCards).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}
