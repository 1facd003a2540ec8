package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

type scriptedStrategy struct {
	name     string
	interval time.Duration
	signals  []domain.TradeSignal
	closed   bool
}

func (s *scriptedStrategy) Name() string            { return s.name }
func (s *scriptedStrategy) Interval() time.Duration { return s.interval }
func (s *scriptedStrategy) Close() error            { s.closed = true; return nil }

func (s *scriptedStrategy) Scan(context.Context) ([]domain.TradeSignal, error) {
	return s.signals, nil
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&scriptedStrategy{name: "a"}))
	assert.Error(t, r.Register(&scriptedStrategy{name: "a"}))

	_, err := r.Get("missing")
	assert.Error(t, err)
}

func TestEngineRejectsUnknownStrategy(t *testing.T) {
	r := NewRegistry()
	ch := make(chan domain.TradeSignal, 1)
	_, err := NewEngine(r, []string{"ghost"}, ch, testLogger())
	assert.Error(t, err)
}

func TestEngineEmitsAndCloses(t *testing.T) {
	sig := domain.TradeSignal{ID: uuid.New().String(), Strategy: "scripted", Ticker: "T"}
	s := &scriptedStrategy{name: "scripted", interval: 5 * time.Millisecond,
		signals: []domain.TradeSignal{sig}}

	r := NewRegistry()
	require.NoError(t, r.Register(s))

	ch := make(chan domain.TradeSignal, 16)
	e, err := NewEngine(r, []string{"scripted"}, ch, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.RunAll(ctx) }()

	select {
	case got := <-ch:
		assert.Equal(t, sig.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no signal emitted")
	}

	cancel()
	require.NoError(t, <-done, "cancellation is a clean shutdown")
	assert.True(t, s.closed)

	recent := e.RecentSignals(10)
	require.NotEmpty(t, recent)
	assert.Equal(t, sig.ID, recent[0].ID)
}

func TestEngineDropsOnFullChannel(t *testing.T) {
	sig := domain.TradeSignal{ID: uuid.New().String(), Strategy: "scripted", Ticker: "T"}
	e := &Engine{signalCh: make(chan domain.TradeSignal), logger: testLogger(), recentLimit: 10}

	e.emit(context.Background(), []domain.TradeSignal{sig, sig})
	assert.Empty(t, e.RecentSignals(10), "dropped signals are not recorded")
}
