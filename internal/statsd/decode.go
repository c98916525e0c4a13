package statsd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// DecodeFlushEvent reads a JSON flush event. Unknown fields are ignored.
func DecodeFlushEvent(r io.Reader) (FlushEvent, error) {
	var ev FlushEvent

	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := dec.Decode(&ev); err != nil {
		return FlushEvent{}, fmt.Errorf("decoding flush event: %w", err)
	}

	if ev.Timestamp <= 0 {
		return FlushEvent{}, fmt.Errorf("flush event timestamp must be positive, got %d", ev.Timestamp)
	}

	return ev, nil
}

// DecodeFlushEventBytes is DecodeFlushEvent over an in-memory body.
func DecodeFlushEventBytes(data []byte) (FlushEvent, error) {
	return DecodeFlushEvent(bytes.NewReader(data))
}
