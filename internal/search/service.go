package search

import (
	"context"

	"github.com/rs/zerolog"
)

type keyIndex interface {
	Searcher
	IndexKeys(records []KeyRecord) error
	DeleteKey(id string) error
}

type recordLoader interface {
	Searcher
	LoadBranchRecords(ctx context.Context, branchID string) ([]KeyRecord, error)
}

// Service tries Meilisearch first and falls back to Postgres.
type Service struct {
	index    keyIndex
	fallback recordLoader
	logger   zerolog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, pg *PgSearch, logger zerolog.Logger) *Service {
	s := &Service{logger: logger.With().Str("component", "search").Logger()}
	if meili != nil {
		s.index = meili
	}
	if pg != nil {
		s.fallback = pg
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.index != nil && s.index.Healthy() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn().Err(err).Msg("meilisearch error, falling back to postgres")
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error().Err(err).Msg("postgres search failed")
		return Response{Results: []Result{}, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexKeys pushes records to the index (fire-and-forget).
func (s *Service) IndexKeys(records []KeyRecord) {
	if s.index == nil || !s.index.Healthy() || len(records) == 0 {
		return
	}
	go func() {
		if err := s.index.IndexKeys(records); err != nil {
			s.logger.Warn().Err(err).Int("count", len(records)).Msg("index keys")
		}
	}()
}

// DeleteKeys removes keys from the index (fire-and-forget).
func (s *Service) DeleteKeys(ids []string) {
	if s.index == nil || !s.index.Healthy() || len(ids) == 0 {
		return
	}
	go func() {
		for _, id := range ids {
			if err := s.index.DeleteKey(id); err != nil {
				s.logger.Warn().Err(err).Str("key_id", id).Msg("delete key from index")
			}
		}
	}()
}

// ReindexBranch reloads a branch's keys from Postgres and pushes them to
// Meilisearch. It runs synchronously.
func (s *Service) ReindexBranch(ctx context.Context, branchID string) {
	if s.index == nil || !s.index.Healthy() || s.fallback == nil {
		return
	}
	records, err := s.fallback.LoadBranchRecords(ctx, branchID)
	if err != nil {
		s.logger.Warn().Err(err).Str("branch_id", branchID).Msg("reindex load failed")
		return
	}
	if err := s.index.IndexKeys(records); err != nil {
		s.logger.Warn().Err(err).Str("branch_id", branchID).Msg("reindex branch")
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
