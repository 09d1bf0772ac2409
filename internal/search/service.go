package search

import (
	"context"

	"github.com/rs/zerolog"
)

// Service is the facade that tries Meilisearch first and falls back to SQL.
type Service struct {
	meili    *Meili
	fallback *SQLSearch
	log      zerolog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, fallback *SQLSearch, logger zerolog.Logger) *Service {
	return &Service{meili: meili, fallback: fallback, log: logger.With().Str("component", "search").Logger()}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexing() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn().Err(err).Msg("meilisearch failed, falling back to sql search")
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.Error().Err(err).Msg("sql search failed")
		return Response{Results: []Result{}, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

func (s *Service) indexing() bool {
	return s.meili != nil && s.meili.Healthy()
}

// IndexBoard pushes a board to Meilisearch without waiting.
func (s *Service) IndexBoard(b BoardRecord) {
	if !s.indexing() {
		return
	}
	b.BoardID = b.ID
	go func() {
		if err := s.meili.IndexBoards([]BoardRecord{b}); err != nil {
			s.log.Error().Err(err).Int64("board_id", b.ID).Msg("index board")
		}
	}()
}

func (s *Service) IndexCard(c CardRecord) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := s.meili.IndexCards([]CardRecord{c}); err != nil {
			s.log.Error().Err(err).Int64("card_id", c.ID).Msg("index card")
		}
	}()
}

// DeleteBoard drops the board and the given cards from the index.
func (s *Service) DeleteBoard(id int64, cardIDs []int64) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := s.meili.DeleteBoard(id); err != nil {
			s.log.Error().Err(err).Int64("board_id", id).Msg("delete board from index")
		}
		for _, cardID := range cardIDs {
			if err := s.meili.DeleteCard(cardID); err != nil {
				s.log.Error().Err(err).Int64("card_id", cardID).Msg("delete card from index")
			}
		}
	}()
}

func (s *Service) DeleteCards(ids ...int64) {
	if !s.indexing() || len(ids) == 0 {
		return
	}
	go func() {
		for _, id := range ids {
			if err := s.meili.DeleteCard(id); err != nil {
				s.log.Error().Err(err).Int64("card_id", id).Msg("delete card from index")
			}
		}
	}()
}

// ReindexAll loads every board and card from the database into
// Meilisearch. It is a no-op while Meilisearch is unavailable.
func (s *Service) ReindexAll(ctx context.Context) {
	if !s.indexing() || s.fallback == nil {
		return
	}
	boards, cards, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("reindex load failed")
		return
	}
	if err := s.meili.IndexBoards(boards); err != nil {
		s.log.Error().Err(err).Msg("reindex boards")
	}
	if err := s.meili.IndexCards(cards); err != nil {
		s.log.Error().Err(err).Msg("reindex cards")
	}
	s.log.Info().Int("boards", len(boards)).Int("cards", len(cards)).Msg("search reindexed")
}

// Close stops the Meilisearch health loop, if any.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
