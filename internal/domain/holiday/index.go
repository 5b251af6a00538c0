package holiday

import (
	"context"
	"sort"

	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// Index answers freeze queries for one owner. It is an immutable snapshot of
// the owner's holiday periods; build a new one after any create, cancel or end.
type Index struct {
	ownerID string
	periods []Period
}

// NewIndex builds an index from the owner's periods.
// Periods that were cancelled before they started are dropped.
func NewIndex(ownerID string, periods []Period) *Index {
	kept := make([]Period, 0, len(periods))
	for _, p := range periods {
		if !p.Effective() {
			continue
		}
		kept = append(kept, p)
	}
	sort.Slice(kept, func(i, j int) bool {
		return kept[i].StartDate < kept[j].StartDate
	})
	return &Index{ownerID: ownerID, periods: kept}
}

// EmptyIndex returns an index that freezes nothing.
func EmptyIndex(ownerID string) *Index {
	return &Index{ownerID: ownerID}
}

// OwnerID returns the owner the index was built for.
func (ix *Index) OwnerID() string {
	return ix.ownerID
}

// Periods returns a copy of the indexed periods.
func (ix *Index) Periods() []Period {
	out := make([]Period, len(ix.periods))
	copy(out, ix.periods)
	return out
}

// Resolve returns the strongest freeze that covers habitID on date.
// Overlapping task-level freezes are unioned.
func (ix *Index) Resolve(habitID string, date timeutil.Date) Freeze {
	if ix == nil {
		return NoFreeze
	}
	result := NoFreeze
	for i := range ix.periods {
		p := &ix.periods[i]
		if p.StartDate.After(date) {
			break
		}
		if !p.Contains(date) {
			continue
		}
		result = result.merge(p.FreezeFor(habitID))
		if result.Mode == FreezeAll {
			return result
		}
	}
	return result
}

// FreezeFunc adapts the index to the callback shape used by the streak calculator.
func (ix *Index) FreezeFunc(habitID string) func(timeutil.Date) Freeze {
	return func(d timeutil.Date) Freeze {
		return ix.Resolve(habitID, d)
	}
}

// ActiveOn returns the periods covering date, regardless of habit.
func (ix *Index) ActiveOn(date timeutil.Date) []Period {
	if ix == nil {
		return nil
	}
	var out []Period
	for _, p := range ix.periods {
		if p.Contains(date) {
			out = append(out, p)
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Repository persists holiday periods.
type Repository interface {
	// Save creates or updates a period.
	Save(ctx context.Context, period *Period) error

	// FindByID returns a period by id.
	FindByID(ctx context.Context, id string) (*Period, error)

	// FindByOwner returns every period of an owner, in any status.
	FindByOwner(ctx context.Context, ownerID string) ([]Period, error)

	// FindExpired returns active periods whose end date is before today.
	FindExpired(ctx context.Context, today timeutil.Date) ([]Period, error)
}

// Cache stores the built freeze state per owner.
// Implementations must make Invalidate take effect before the next Get.
type Cache interface {
	Get(ctx context.Context, ownerID string) ([]Period, bool, error)
	Set(ctx context.Context, ownerID string, periods []Period) error
	Invalidate(ctx context.Context, ownerID string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// MANAGER
// ══════════════════════════════════════════════════════════════════════════════

// Manager loads freeze indexes through the cache and keeps the cache honest
// when periods change.
type Manager struct {
	repo         Repository
	cache        Cache
	onCacheError CacheErrorFunc
}

// CacheErrorFunc receives cache failures that did not fail the read.
// op is "get" or "set".
type CacheErrorFunc func(op, ownerID string, err error)

// NewManager creates a manager. cache may be nil.
func NewManager(repo Repository, cache Cache) *Manager {
	return &Manager{repo: repo, cache: cache}
}

// OnCacheError sets the callback for cache failures.
func (m *Manager) OnCacheError(fn CacheErrorFunc) *Manager {
	m.onCacheError = fn
	return m
}

// Index returns the freeze index for an owner.
// Cache errors are reported to OnCacheError and fall through to the repository.
func (m *Manager) Index(ctx context.Context, ownerID string) (*Index, error) {
	if m.cache != nil {
		periods, ok, err := m.cache.Get(ctx, ownerID)
		switch {
		case err != nil:
			m.cacheError("get", ownerID, err)
		case ok:
			return NewIndex(ownerID, periods), nil
		}
	}

	periods, err := m.repo.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		if err := m.cache.Set(ctx, ownerID, periods); err != nil {
			m.cacheError("set", ownerID, err)
		}
	}
	return NewIndex(ownerID, periods), nil
}

func (m *Manager) cacheError(op, ownerID string, err error) {
	if m.onCacheError != nil {
		m.onCacheError(op, ownerID, err)
	}
}

// Invalidate drops the cached freeze state of an owner.
func (m *Manager) Invalidate(ctx context.Context, ownerID string) error {
	if m.cache == nil {
		return nil
	}
	return m.cache.Invalidate(ctx, ownerID)
}

// AffectedHabits returns which of habitIDs the period can change.
func AffectedHabits(p *Period, habitIDs []string) []string {
	var out []string
	for _, id := range habitIDs {
		if p.Affects(id) {
			out = append(out, id)
		}
	}
	return out
}
