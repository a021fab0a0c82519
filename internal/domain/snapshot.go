package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// SnapshotVersion is written into versioned snapshots.
const SnapshotVersion = 1

type versionedSnapshot struct {
	Version int        `json:"version"`
	Items   []CartItem `json:"items"`
}

// EncodeItems serializes the full cart list. An empty cart encodes as "[]".
// When versioned is set the list is wrapped in {"version":1,"items":[...]}.
func EncodeItems(items []CartItem, versioned bool) (string, error) {
	if items == nil {
		items = []CartItem{}
	}

	var (
		data []byte
		err  error
	)
	if versioned {
		data, err = json.Marshal(versionedSnapshot{Version: SnapshotVersion, Items: items})
	} else {
		data, err = json.Marshal(items)
	}
	if err != nil {
		return "", fmt.Errorf("marshal cart items failed: %w", err)
	}
	return string(data), nil
}

// DecodeItems parses a persisted cart. Both the flat list and the versioned
// envelope are accepted. Any structural problem (bad JSON, duplicate ids,
// empty ids, quantity below 1, unknown version) yields ErrMalformedSnapshot.
func DecodeItems(payload string) ([]CartItem, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedSnapshot)
	}

	var items []CartItem
	if strings.HasPrefix(trimmed, "{") {
		var snap versionedSnapshot
		if err := strictUnmarshal(trimmed, &snap); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
		if snap.Version != SnapshotVersion {
			return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedSnapshot, snap.Version)
		}
		items = snap.Items
	} else if err := strictUnmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	if err := validateItems(items); err != nil {
		return nil, err
	}
	return CloneItems(items), nil
}

func strictUnmarshal(payload string, v any) error {
	dec := json.NewDecoder(strings.NewReader(payload))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("trailing data after snapshot")
	}
	return nil
}

func validateItems(items []CartItem) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.ID) == "" {
			return fmt.Errorf("%w: item without id", ErrMalformedSnapshot)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: item %q has quantity %d", ErrMalformedSnapshot, it.ID, it.Quantity)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("%w: duplicate item %q", ErrMalformedSnapshot, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}
