package settings

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/radar-pilot/internal/policy"
)

type stubFetcher struct {
	values map[string]string
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (f *stubFetcher) GetConfig(ctx context.Context) (map[string]string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	return f.values, f.err
}

func TestParseThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{raw: "0.65", want: 0.65, ok: true},
		{raw: " 0 ", want: 0, ok: true},
		{raw: "1", want: 1, ok: true},
		{raw: "", want: 0.5},
		{raw: "abc", want: 0.5},
		{raw: "65", want: 0.5},
		{raw: "-0.1", want: 0.5},
		{raw: "NaN", want: 0.5},
	}

	for _, tt := range tests {
		got, ok := ParseThreshold(tt.raw, 0.5)
		assert.Equal(t, tt.want, got, "raw %q", tt.raw)
		assert.Equal(t, tt.ok, ok, "raw %q", tt.raw)
	}
}

func TestRefreshAppliesAdminThreshold(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{values: map[string]string{KeyMatchThreshold: "0.6", "other": "x"}}
	src := New(fetcher, zap.NewNop(), policy.DefaultThresholds())

	assert.Equal(t, policy.DefaultThresholds(), src.Current())

	got, err := src.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, policy.Thresholds{Qualify: 0.6, High: 0.8}, got)
	assert.Equal(t, got, src.Current())
}

func TestRefreshMalformedFallsBackToDefault(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	fetcher := &stubFetcher{values: map[string]string{KeyMatchThreshold: "lots"}}
	src := New(fetcher, zap.New(core), policy.DefaultThresholds())

	got, err := src.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Qualify)
	assert.Equal(t, 1, logs.FilterMessage("admin threshold missing or malformed, using default").Len())
}

func TestRefreshErrorKeepsPreviousSnapshot(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{values: map[string]string{KeyMatchThreshold: "0.7"}}
	src := New(fetcher, zap.NewNop(), policy.DefaultThresholds())

	_, err := src.Refresh(context.Background())
	require.NoError(t, err)

	fetcher.err = errors.New("connection refused")
	got, err := src.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0.7, got.Qualify)
	assert.Equal(t, 0.7, src.Current().Qualify)
}

func TestRefreshWithoutFetcher(t *testing.T) {
	t.Parallel()

	src := New(nil, nil, policy.Thresholds{Qualify: 0.4, High: 0.9})

	got, err := src.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, policy.Thresholds{Qualify: 0.4, High: 0.9}, got)
}

func TestConcurrentRefreshesCollapse(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{values: map[string]string{KeyMatchThreshold: "0.55"}, delay: 50 * time.Millisecond}
	src := New(fetcher, zap.NewNop(), policy.DefaultThresholds())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = src.Refresh(context.Background())
		}()
	}
	wg.Wait()

	assert.Less(t, fetcher.calls.Load(), int32(8))
	assert.Equal(t, 0.55, src.Current().Qualify)
}
