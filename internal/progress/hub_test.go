package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHubFlushesFullBatch(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 8, MaxBatch: 2, FlushInterval: time.Minute}, sink)
	t.Cleanup(func() { require.NoError(t, hub.Close(context.Background())) })

	hub.Emit(sampleEvent(StageJobStart))
	hub.Emit(sampleEvent(StageJobStart))
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubFlushesOnInterval(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatch: 10, FlushInterval: 20 * time.Millisecond}, sink)
	t.Cleanup(func() { require.NoError(t, hub.Close(context.Background())) })

	hub.Emit(sampleEvent(StageJobStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	hub := &Hub{events: make(chan Event), logger: zap.New(core)}
	start := time.Now()
	hub.Emit(sampleEvent(StageJobStart))
	hub.Emit(sampleEvent(StageJobStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.EqualValues(t, 2, hub.Dropped())

	// The second drop falls inside the warning window.
	warnings := logs.FilterMessage("progress events dropped").All()
	require.Len(t, warnings, 1)
	require.EqualValues(t, 1, warnings[0].ContextMap()["dropped"])
	require.EqualValues(t, 1, hub.unwarned.Load())
}

func TestHubDrainsOnClose(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatch: 100, FlushInterval: time.Minute}, sink)
	hub.Emit(sampleEvent(StageJobStart))

	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.True(t, sink.closed)

	hub.Emit(sampleEvent(StageJobDone))
	require.Len(t, sink.Batches(), 1)
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, sampleEvent(StageJobStart).Validate())
	require.Error(t, Event{Stage: StageJobStart, TS: time.Now()}.Validate())

	fetch := sampleEvent(StageFetchDone)
	fetch.Host = ""
	require.Error(t, fetch.Validate())

	unknown := sampleEvent("NOPE")
	require.Error(t, unknown.Validate())
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, Status2xx, ClassifyStatus(204))
	require.Equal(t, Status3xx, ClassifyStatus(301))
	require.Equal(t, Status4xx, ClassifyStatus(404))
	require.Equal(t, Status5xx, ClassifyStatus(503))
	require.Equal(t, StatusNone, ClassifyStatus(0))
}

type recordingSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func (s *recordingSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Event(nil), s.batches...)
}

func sampleEvent(stage Stage) Event {
	return Event{
		JobID:      "job-1",
		TS:         time.Now(),
		Stage:      stage,
		Host:       "example.com",
		StatusCode: 200,
	}
}
