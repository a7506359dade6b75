package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/zulandar/plotcraft/internal/progress"
)

// errClientGone is returned by a stream sink once its client has left.
var errClientGone = errors.New("server: client disconnected")

// streamSink hands run events to the request goroutine that owns the
// response writer. Once gone is closed, events are dropped.
type streamSink struct {
	events chan progress.Event
	gone   chan struct{}
}

func newStreamSink() *streamSink {
	return &streamSink{
		events: make(chan progress.Event, 256),
		gone:   make(chan struct{}),
	}
}

func (s *streamSink) Emit(ctx context.Context, ev progress.Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-s.gone:
		return errClientGone
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
