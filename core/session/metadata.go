package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMetadataInvalid = errors.New("session metadata invalid")

// Metadata identifies the agent a session runs and, optionally, the
// control-plane session to close when it ends.
type Metadata struct {
	AgentID   string `json:"agentId"`
	SessionID string `json:"sessionId,omitempty"`
}

// ParseMetadata reads the room metadata, falling back to the job metadata
// when the room carries none.
func ParseMetadata(roomMetadata, jobMetadata string) (Metadata, error) {
	raw := roomMetadata
	if raw == "" {
		raw = jobMetadata
	}
	if raw == "" {
		raw = "{}"
	}

	metadata, err := parseMetadata(raw)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", ErrMetadataInvalid, err)
	}
	return metadata, nil
}

func parseMetadata(raw string) (Metadata, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Metadata{}, fmt.Errorf("error unmarshalling metadata: %w", err)
	}

	var metadata Metadata
	if err := stringField(fields, "agentId", &metadata.AgentID); err != nil {
		return Metadata{}, err
	}
	if metadata.AgentID == "" {
		return Metadata{}, errors.New("no agentId found in metadata")
	}
	if err := stringField(fields, "sessionId", &metadata.SessionID); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

// stringField leaves dst untouched when the key is absent or null.
func stringField(fields map[string]json.RawMessage, key string, dst *string) error {
	value, ok := fields[key]
	if !ok || string(value) == "null" {
		return nil
	}
	if err := json.Unmarshal(value, dst); err != nil {
		return fmt.Errorf("%s is not a string: %w", key, err)
	}
	return nil
}
