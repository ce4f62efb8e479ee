package processor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"oddsflow/models"
)

// ProtocolError reports a frame whose payload could not be turned into a
// record batch. The frame is dropped; the connection carries on.
type ProtocolError struct {
	Event   string
	Payload string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error in %s frame: %v", e.Event, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ErrNoObject is returned when no offset of a payload holds a JSON object.
var ErrNoObject = errors.New("no JSON object found in payload")

// Batch is the decoded content of one odds frame.
type Batch struct {
	Cursor    string
	HasCursor bool
	Records   []models.RawRecord
	Recovered bool
}

// Decode turns the payload of an odds or locked-odds frame into a batch.
func Decode(frame models.Frame) (Batch, error) {
	if !frame.Type.Decodable() {
		return Batch{}, &ProtocolError{Event: frame.Name, Err: fmt.Errorf("event type %q carries no odds", frame.Name)}
	}
	return DecodePayload(frame.Name, frame.Payload())
}

// DecodePayload parses payload strictly and falls back to scanning start
// offsets in increasing order for the first well-formed object, ignoring
// whatever follows it. The fallback is quadratic in the payload length and
// only meant for stray bytes around the object or concatenated objects; the
// earliest object wins so its cursor is never skipped.
func DecodePayload(event, payload string) (Batch, error) {
	obj, err := decodeObject(payload, true)
	recovered := false
	if err != nil {
		obj, err = recoverObject(payload)
		if err != nil {
			return Batch{}, &ProtocolError{Event: event, Payload: excerpt(payload), Err: err}
		}
		recovered = true
	}

	batch := Batch{Recovered: recovered}

	if raw, ok := obj["entry_id"]; ok {
		cursor, err := cursorValue(raw)
		if err != nil {
			return Batch{}, &ProtocolError{Event: event, Payload: excerpt(payload), Err: err}
		}
		batch.Cursor = cursor
		batch.HasCursor = cursor != ""
	}

	raw, ok := obj["data"]
	if !ok || isNull(raw) {
		return batch, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return Batch{}, &ProtocolError{Event: event, Payload: excerpt(payload), Err: fmt.Errorf("data is not an array: %w", err)}
	}

	batch.Records = make([]models.RawRecord, 0, len(items))
	for _, item := range items {
		var rec models.RawRecord
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		if err := dec.Decode(&rec); err != nil || rec == nil {
			continue
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

// decodeObject decodes one JSON object from s. With strict set, anything
// after the object other than whitespace is an error.
func decodeObject(s string, strict bool) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	var obj map[string]json.RawMessage
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, ErrNoObject
	}
	if strict && strings.TrimSpace(s[dec.InputOffset():]) != "" {
		return nil, errors.New("trailing data after object")
	}
	return obj, nil
}

func recoverObject(payload string) (map[string]json.RawMessage, error) {
	for i := 0; i < len(payload); i++ {
		if payload[i] != '{' {
			continue
		}
		if obj, err := decodeObject(payload[i:], false); err == nil {
			return obj, nil
		}
	}
	return nil, ErrNoObject
}

func cursorValue(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("entry_id has unsupported type: %s", excerpt(string(raw)))
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func excerpt(s string) string {
	const max = 256
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
