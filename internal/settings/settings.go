package settings

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spigell/radar-pilot/internal/policy"
)

// KeyMatchThreshold is the admin config entry holding the qualifying threshold.
const KeyMatchThreshold = "match_threshold"

// ConfigFetcher reads the remote admin configuration as flat key/value pairs.
type ConfigFetcher interface {
	GetConfig(ctx context.Context) (map[string]string, error)
}

// Source holds the process-wide threshold snapshot. Readers always get an
// immutable copy; Refresh swaps the pointer.
type Source struct {
	fetcher  ConfigFetcher
	logger   *zap.Logger
	defaults policy.Thresholds

	current atomic.Pointer[policy.Thresholds]
	group   singleflight.Group
}

// New seeds the snapshot with defaults. fetcher may be nil, in which case the
// defaults are served forever.
func New(fetcher ConfigFetcher, logger *zap.Logger, defaults policy.Thresholds) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults = defaults.Normalize()
	s := &Source{
		fetcher:  fetcher,
		logger:   logger,
		defaults: defaults,
	}
	s.current.Store(&defaults)

	return s
}

func (s *Source) Current() policy.Thresholds {
	return *s.current.Load()
}

// Refresh pulls the admin config. On a fetch error the previous snapshot is
// kept and the error returned; a missing or malformed threshold falls back to
// the configured default without an error.
func (s *Source) Refresh(ctx context.Context) (policy.Thresholds, error) {
	if s.fetcher == nil {
		return s.Current(), nil
	}

	v, err, _ := s.group.Do("admin-config", func() (any, error) {
		values, err := s.fetcher.GetConfig(ctx)
		if err != nil {
			return nil, err
		}

		next := s.defaults
		qualify, ok := ParseThreshold(values[KeyMatchThreshold], s.defaults.Qualify)
		if !ok {
			s.logger.Warn("admin threshold missing or malformed, using default",
				zap.String("key", KeyMatchThreshold),
				zap.String("value", values[KeyMatchThreshold]),
				zap.Float64("default", s.defaults.Qualify),
			)
		}
		next.Qualify = qualify
		next = next.Normalize()

		s.current.Store(&next)
		s.logger.Debug("thresholds refreshed",
			zap.Float64("qualify", next.Qualify),
			zap.Float64("high", next.High),
		)

		return next, nil
	})
	if err != nil {
		s.logger.Warn("failed to refresh admin config, keeping previous thresholds", zap.Error(err))
		return s.Current(), fmt.Errorf("refreshing admin config: %w", err)
	}

	return v.(policy.Thresholds), nil
}

// ParseThreshold reads a 0..1 threshold. The second return is false when the
// value was unusable and def was returned instead.
func ParseThreshold(raw string, def float64) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, false
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || v < 0 || v > 1 {
		return def, false
	}

	return v, true
}
