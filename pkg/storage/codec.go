package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Stored values are framed as an 8-byte big-endian revision followed by the
// JSON payload. The revision increments on every committed write; optimistic
// transactions validate it at commit time.

func marshalPayload(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal entity: %w", err)
	}
	return payload, nil
}

func frameValue(rev uint64, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(buf[:8], rev)
	copy(buf[8:], payload)
	return buf
}

// splitValue separates a stored value into its revision and JSON payload.
// The returned payload aliases raw and must be consumed before the backing
// buffer is released.
func splitValue(raw []byte) (uint64, []byte, error) {
	if len(raw) < 8 {
		return 0, nil, fmt.Errorf("corrupt value: %d bytes, want >= 8", len(raw))
	}
	return binary.BigEndian.Uint64(raw[:8]), raw[8:], nil
}

func unmarshalPayload(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("unmarshal entity: %w", err)
	}
	return nil
}

// Unmarshal decodes a scan payload into v. Scan callbacks receive bare
// JSON payloads with the revision frame already stripped.
func Unmarshal(payload []byte, v any) error {
	return unmarshalPayload(payload, v)
}
