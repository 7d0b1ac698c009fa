package exec

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one parsed server-sent event from the engine stream.
type sseEvent struct {
	Event string
	Data  string
}

// readSSE parses a text/event-stream body, invoking emit for each complete
// event. Comment lines (leading ':') and unknown fields are ignored. Returns
// the underlying read error, if any; io.EOF is not an error.
func readSSE(r io.Reader, emit func(sseEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var ev sseEvent
	var data []string
	flush := func() error {
		if ev.Event == "" && len(data) == 0 {
			return nil
		}
		ev.Data = strings.Join(data, "\n")
		err := emit(ev)
		ev = sseEvent{}
		data = nil
		return err
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// keep-alive comment
		case strings.HasPrefix(line, "event:"):
			ev.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	// Stream ended mid-event: deliver what we have.
	return flush()
}
