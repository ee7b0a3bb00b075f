package progress

import (
	"context"
	"fmt"
	"time"
)

type bytesSink struct {
	bytes int64
}

func (s *bytesSink) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		s.bytes += evt.Bytes
	}
	return nil
}

func (*bytesSink) Close(context.Context) error { return nil }

// ExampleHub_Emit totals downloaded bytes through a custom sink.
func ExampleHub_Emit() {
	sink := &bytesSink{}
	hub := NewHub(Config{MaxBatch: 1}, sink)

	hub.Emit(Event{
		JobID:      "example",
		TS:         time.Unix(0, 0),
		Stage:      StageFetchDone,
		Host:       "example.com",
		StatusCode: 200,
		Bytes:      512,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("bytes downloaded: %d\n", sink.bytes)
	// Output:
	// bytes downloaded: 512
}
