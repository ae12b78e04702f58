package storage

import (
	"context"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/streamvault/streamvault-go/internal/apperrors"
	"github.com/streamvault/streamvault-go/internal/logging"
)

// UsageProbe reports free/total bytes for a path root. Production code
// uses DiskUsage (backed by gopsutil); tests substitute a fake.
type UsageProbe func(root string) (free, total int64, err error)

// Selector owns the set of storage paths, probes their health on an
// interval, and implements the four selection strategies from
// strategies.
type Selector struct {
	mu    sync.RWMutex
	paths []*Path
	rrIdx int

	probe   UsageProbe
	limiter *rate.Limiter
	sf      singleflight.Group

	events *Broadcaster
	logger *logging.Logger

	cleanup CleanupConfig
}

// CleanupConfig controls retention-based cleanup.
type CleanupConfig struct {
	Enabled              bool
	MaxSizeGB            float64
	MaxUsedFraction      float64 // defaults to 0.90
	MaxAge               time.Duration
	MinSegmentsPerStream int
	PerStreamRetention   map[string]time.Duration
}

// NewSelector constructs a Selector. probeInterval sets the rate of
// the selector's token-bucket limiter; ProbeAll does not consult that
// limiter, so every ProbeAll call probes every path, and probe
// frequency is set by the caller.
func NewSelector(probe UsageProbe, probeInterval time.Duration, events *Broadcaster, logger *logging.Logger, cleanup CleanupConfig) *Selector {
	if cleanup.MaxUsedFraction <= 0 {
		cleanup.MaxUsedFraction = 0.90
	}
	if probeInterval <= 0 {
		probeInterval = 30 * time.Second
	}
	return &Selector{
		probe:   probe,
		limiter: rate.NewLimiter(rate.Every(probeInterval), 1),
		events:  events,
		logger:  logger,
		cleanup: cleanup,
	}
}

// AddPath registers a storage path (config load or dynamic mount
// detection).
func (s *Selector) AddPath(p *Path) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.isHealthy = true
	p.lastSeen = time.Now()
	s.paths = append(s.paths, p)
}

// RemovePath removes a path by name.
func (s *Selector) RemovePath(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.paths {
		if p.Name == name {
			s.paths = append(s.paths[:i], s.paths[i+1:]...)
			return
		}
	}
}

// Paths returns a snapshot of every registered path.
func (s *Selector) Paths() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, len(s.paths))
	for _, p := range s.paths {
		out = append(out, p.snapshot())
	}
	return out
}

// ProbeAll probes every registered path's health: existence test plus a
// scratch-file create/delete. Health flips emit
// PathUnavailable/PathRecovered.
func (s *Selector) ProbeAll(ctx context.Context) {
	s.mu.RLock()
	paths := append([]*Path(nil), s.paths...)
	s.mu.RUnlock()

	for _, p := range paths {
		s.probeOne(ctx, p)
	}
}

func (s *Selector) probeOne(ctx context.Context, p *Path) {
	_, err, _ := s.sf.Do(p.Name, func() (interface{}, error) {
		wasHealthy := p.snapshot().IsHealthy
		healthy := s.checkWritable(p.Root)

		free, total, uerr := s.probe(p.Root)
		used := total - free
		if uerr != nil {
			healthy = false
		}
		p.setProbe(free, total, used, healthy)

		if s.events != nil {
			if wasHealthy && !healthy {
				s.events.Publish(Event{Kind: EventPathUnavailable, Path: p.Name})
			} else if !wasHealthy && healthy {
				s.events.Publish(Event{Kind: EventPathRecovered, Path: p.Name})
			}
			if total > 0 {
				pct := float64(used) / float64(total) * 100
				if pct >= 90 {
					s.events.Publish(Event{Kind: EventLowSpace, Path: p.Name, Data: map[string]interface{}{"percent": pct}})
				}
			}
		}
		return nil, nil
	})
	_ = err
}

func (s *Selector) checkWritable(root string) bool {
	if _, err := os.Stat(root); err != nil {
		return false
	}
	f, err := os.CreateTemp(root, ".probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

// Select picks a storage path for streamID using strategy, applying the
// size-hint filter before the strategy.
func (s *Selector) Select(streamID string, strategy Strategy, sizeHint int64) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*Path, 0, len(s.paths))
	for _, p := range s.paths {
		snap := p.snapshot()
		if !snap.Enabled || !snap.IsHealthy {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return Snapshot{}, apperrors.AllPathsUnavailable("storage.select_path")
	}

	if sizeHint > 0 {
		filtered := candidates[:0:0]
		maxAvail := int64(0)
		for _, p := range candidates {
			snap := p.snapshot()
			if snap.BytesFree >= sizeHint {
				filtered = append(filtered, p)
			}
			if snap.BytesFree > maxAvail {
				maxAvail = snap.BytesFree
			}
		}
		if len(filtered) == 0 {
			return Snapshot{}, apperrors.InsufficientSpace("storage.select_path", sizeHint, maxAvail)
		}
		candidates = filtered
	}

	var chosen *Path
	switch strategy {
	case StrategyRoundRobin:
		chosen = s.selectRoundRobin(candidates)
	case StrategyLeastUsed:
		chosen = s.selectLeastUsed(candidates)
	case StrategyPriority:
		chosen = s.selectPriority(candidates)
	case StrategyAffinity:
		chosen = s.selectAffinity(candidates, streamID)
	default:
		chosen = s.selectPriority(candidates)
	}
	return chosen.snapshot(), nil
}

func (s *Selector) selectRoundRobin(candidates []*Path) *Path {
	s.rrIdx = (s.rrIdx + 1) % len(candidates)
	return candidates[s.rrIdx]
}

func (s *Selector) selectLeastUsed(candidates []*Path) *Path {
	best := candidates[0]
	bestUsed := best.snapshot().BytesUsed
	for _, p := range candidates[1:] {
		used := p.snapshot().BytesUsed
		if used < bestUsed {
			best, bestUsed = p, used
		}
	}
	return best
}

func (s *Selector) selectPriority(candidates []*Path) *Path {
	best := candidates[0]
	for _, p := range candidates[1:] {
		if p.Priority < best.Priority {
			best = p
		}
	}
	return best
}

func (s *Selector) selectAffinity(candidates []*Path, streamID string) *Path {
	for _, p := range candidates {
		if p.hasAffinity(streamID) {
			return p
		}
	}
	return s.selectLeastUsed(candidates)
}

// DiskUsage is the production UsageProbe, backed by the portable
// statfs-equivalent wrapper in diskusage.go.
func DiskUsage(root string) (free, total int64, err error) {
	return statfs(root)
}
