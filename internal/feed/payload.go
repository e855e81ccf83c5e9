package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// LegacyChannel carries a bare target id on creation only.
const LegacyChannel = "new_monitor"

var ErrBadPayload = errors.New("bad feed payload")

type wirePayload struct {
	Op string `json:"op"`
	ID string `json:"id"`
}

// ParsePayload decodes a notification body. A JSON object must carry both
// op and id; anything else is taken as a bare id announcing a new target.
func ParsePayload(payload string) (Event, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Event{}, fmt.Errorf("%w: empty", ErrBadPayload)
	}

	if !strings.HasPrefix(payload, "{") {
		return Event{Op: Created, ID: strings.Trim(payload, `"`)}, nil
	}

	var w wirePayload
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if w.ID == "" {
		return Event{}, fmt.Errorf("%w: missing id", ErrBadPayload)
	}

	switch op := Op(strings.ToLower(w.Op)); op {
	case Created, Updated, Deleted:
		return Event{Op: op, ID: w.ID}, nil
	default:
		return Event{}, fmt.Errorf("%w: unknown op %q", ErrBadPayload, w.Op)
	}
}

// EncodePayload is the inverse of ParsePayload for publishers.
func EncodePayload(e Event) string {
	b, _ := json.Marshal(wirePayload{Op: string(e.Op), ID: e.ID})
	return string(b)
}
