package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"github.com/civic-tally/tally/internal/shared"
)

// Row is one view row keyed by column name.
type Row = map[string]any

// RowSource reads the rows of a view.
type RowSource interface {
	Rows(ctx context.Context, v View) ([]Row, error)
}

// ReportResult carries every section of a report.
type ReportResult struct {
	Sections map[string][]Row `json:"sections"`
	Metadata ReportMetadata   `json:"metadata"`
}

// ReportMetadata describes a generated report.
type ReportMetadata struct {
	GeneratedAt time.Time `json:"generatedAt"`
	PrimaryRows int       `json:"primaryRows"`
}

// Service resolves catalog names to cached view data.
type Service struct {
	rows   RowSource
	cache  *Cache
	clock  clock.Clock
	logger *slog.Logger
}

// NewService constructs a Service. cache may be nil.
func NewService(rows RowSource, cache *Cache, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{rows: rows, cache: cache, clock: clk, logger: logger}
}

// Fetch returns the rows of a view, or a ReportResult for a report.
// Unknown names yield shared.ErrNotFound.
func (s *Service) Fetch(ctx context.Context, name string) (any, error) {
	if v, ok := views[name]; ok {
		var rows []Row
		err := s.cached(ctx, &rows, func(ctx context.Context) (any, error) {
			return s.viewRows(ctx, v)
		}, "view", name)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []Row{}
		}
		return rows, nil
	}
	if rep, ok := reports[name]; ok {
		var result ReportResult
		err := s.cached(ctx, &result, func(ctx context.Context) (any, error) {
			return s.report(ctx, rep)
		}, "report", name)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("stats %q: %w", name, shared.ErrNotFound)
}

// cached serves from Redis when it is reachable and from the database otherwise.
func (s *Service) cached(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	key, err := s.cache.BuildKey(ctx, parts...)
	if err == nil {
		err = s.cache.FetchJSON(ctx, key, dest, loader)
		if !errors.Is(err, ErrCacheUnavailable) {
			return err
		}
	}
	s.logger.Warn("stats cache bypassed", slog.Any("error", err))
	return loadInto(ctx, dest, loader)
}

func (s *Service) viewRows(ctx context.Context, v View) ([]Row, error) {
	rows, err := s.rows.Rows(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("stats: read %s: %w", v.Relation, err)
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}

func (s *Service) report(ctx context.Context, rep Report) (ReportResult, error) {
	result := ReportResult{Sections: make(map[string][]Row, len(rep.Sections))}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for section, v := range rep.Sections {
		section, v := section, v
		g.Go(func() error {
			rows, err := s.viewRows(gctx, v)
			if err != nil {
				return err
			}
			mu.Lock()
			result.Sections[section] = rows
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ReportResult{}, err
	}
	result.Metadata = ReportMetadata{
		GeneratedAt: s.clock.Now().UTC(),
		PrimaryRows: len(result.Sections[rep.Primary]),
	}
	return result, nil
}
