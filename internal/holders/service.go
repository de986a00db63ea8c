package holders

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/element-scan/holders-indexer/internal/adapter"
	"github.com/element-scan/holders-indexer/internal/domain"
	"github.com/element-scan/holders-indexer/internal/logger"
	"github.com/element-scan/holders-indexer/internal/registry"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Page is one page of ranked holders plus the contract-wide summary
type Page struct {
	Contract           string               `json:"contract"`
	Holders            []domain.Holder      `json:"holders"`
	Page               int                  `json:"page"`
	PageSize           int                  `json:"page_size"`
	TotalPages         int                  `json:"total_pages"`
	TotalTokens        int                  `json:"total_tokens"`
	TotalHolders       int                  `json:"total_holders"`
	Summary            domain.GlobalMetrics `json:"summary"`
	LastProcessedBlock uint64               `json:"last_processed_block"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// Progress is the poller-visible view of a contract's population state
type Progress struct {
	Contract     string               `json:"contract"`
	IsPopulating bool                 `json:"is_populating"`
	Step         domain.PopulationStep `json:"step"`
	Percentage   float64              `json:"percentage"`
	Processed    int                  `json:"processed"`
	Total        int                  `json:"total"`
	Error        string               `json:"error,omitempty"`
	ErrorLog     []domain.ErrorEntry  `json:"error_log,omitempty"`
	TotalOwners  int                  `json:"total_owners"`
	LastUpdated  time.Time            `json:"last_updated"`
}

// Service is the read/trigger API over the populator. Reads serve the
// last good snapshot; a miss populates synchronously, a stale hit
// refreshes in the background.
type Service struct {
	pop        *Populator
	reg        *registry.Registry
	clock      adapter.Clock
	staleAfter time.Duration
}

// NewService creates the holders service. staleAfter controls when a
// served snapshot additionally kicks off a background refresh (0
// disables background refreshes).
func NewService(pop *Populator, reg *registry.Registry, clock adapter.Clock, staleAfter time.Duration) *Service {
	return &Service{pop: pop, reg: reg, clock: clock, staleAfter: staleAfter}
}

// Contracts returns the registered contract keys
func (s *Service) Contracts() []string {
	return s.reg.Keys()
}

// ListHolders returns one page of ranked holders. refresh forces a
// synchronous repopulation before serving; otherwise a cache miss
// populates synchronously and a stale snapshot is served as-is while a
// background refresh runs.
func (s *Service) ListHolders(ctx context.Context, key string, page, pageSize int, refresh bool) (*Page, error) {
	snapshot, err := s.snapshot(ctx, key, refresh)
	if err != nil {
		return nil, err
	}

	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)
	if page <= 0 {
		page = 1
	}

	total := len(snapshot.Holders)
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))

	start := (page - 1) * pageSize
	var holders []domain.Holder
	if start < total {
		holders = snapshot.Holders[start:min(start+pageSize, total)]
	} else {
		holders = []domain.Holder{}
	}

	return &Page{
		Contract:           key,
		Holders:            holders,
		Page:               page,
		PageSize:           pageSize,
		TotalPages:         totalPages,
		TotalTokens:        snapshot.Metrics.TotalLive,
		TotalHolders:       total,
		Summary:            snapshot.Metrics,
		LastProcessedBlock: snapshot.LastProcessedBlock,
		UpdatedAt:          snapshot.UpdatedAt,
	}, nil
}

// GetHolder returns the aggregate record for one wallet. refresh forces
// a synchronous repopulation before the lookup, same as for ListHolders.
func (s *Service) GetHolder(ctx context.Context, key, wallet string, refresh bool) (*domain.Holder, error) {
	if !domain.ValidAddress(wallet) {
		return nil, fmt.Errorf("%w: invalid wallet address %q", domain.ErrHolderNotFound, wallet)
	}

	snapshot, err := s.snapshot(ctx, key, refresh)
	if err != nil {
		return nil, err
	}

	normalized := domain.NormalizeAddress(wallet)
	for i := range snapshot.Holders {
		if snapshot.Holders[i].Wallet == normalized {
			holder := snapshot.Holders[i]
			return &holder, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrHolderNotFound, normalized)
}

// Progress returns the population state for a contract
func (s *Service) Progress(ctx context.Context, key string) (*Progress, error) {
	state, err := s.pop.Progress(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Progress{
		Contract:     key,
		IsPopulating: state.IsPopulating,
		Step:         state.Progress.Step,
		Percentage:   state.Progress.Percentage(),
		Processed:    state.Progress.ProcessedNFTs,
		Total:        state.Progress.TotalNFTs,
		Error:        state.Progress.Error,
		ErrorLog:     state.Progress.ErrorLog,
		TotalOwners:  state.TotalOwners,
		LastUpdated:  state.LastUpdated,
	}, nil
}

// Trigger starts a population run in the background. It reports whether
// a new run was started; false means one is already in flight.
func (s *Service) Trigger(key string, force bool) (bool, error) {
	if _, err := s.reg.Get(key); err != nil {
		return false, err
	}
	if s.pop.IsPopulating(key) {
		return false, nil
	}

	go func() {
		// detached from the request lifecycle on purpose
		if err := s.pop.Populate(context.Background(), key, force); err != nil && err != domain.ErrPopulationInProgress {
			logger.Error(err, zap.String("contract", key))
		}
	}()
	return true, nil
}

// snapshot returns a servable snapshot, populating when there is none.
// When a run is already in flight it waits for that run instead of
// failing, so concurrent cold-cache readers all ride the same run.
func (s *Service) snapshot(ctx context.Context, key string, refresh bool) (*Snapshot, error) {
	snapshot, err := s.pop.Snapshot(ctx, key)
	if err != nil {
		return nil, err
	}

	if snapshot != nil && !refresh {
		if s.staleAfter > 0 && s.clock.Now().Sub(snapshot.UpdatedAt) > s.staleAfter {
			if started, err := s.Trigger(key, false); err == nil && started {
				logger.DebugCtx(ctx, "stale snapshot, background refresh started", zap.String("contract", key))
			}
		}
		return snapshot, nil
	}

	err = s.pop.Populate(ctx, key, false)
	if err == domain.ErrPopulationInProgress {
		if err := s.pop.Wait(ctx, key); err != nil {
			return nil, err
		}
	} else if err != nil && snapshot != nil {
		// a failed refresh should not take down reads that have a last
		// good snapshot to fall back on
		logger.WarnCtx(ctx, "refresh failed, serving previous snapshot",
			zap.String("contract", key), zap.Error(err))
		return snapshot, nil
	} else if err != nil {
		return nil, err
	}

	snapshot, serr := s.pop.Snapshot(ctx, key)
	if serr != nil {
		return nil, serr
	}
	if snapshot == nil {
		return nil, domain.ErrNoSnapshot
	}
	return snapshot, nil
}
