package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Endpoint is the reachability of one mount.
type Endpoint struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Writable  bool   `json:"writable"`
	Error     string `json:"error,omitempty"`
	TotalSize int64  `json:"total_size,omitempty"`
	UsedSize  int64  `json:"used_size,omitempty"`
	FreeSize  int64  `json:"free_size,omitempty"`
}

// DatabaseStatus is the reachability of the backend's own database, which lives on the intermediate medium.
type DatabaseStatus struct {
	Available bool   `json:"available"`
	Path      string `json:"db_path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MountStatus is the aggregated reachability record. Restricted is computed by the backend ("safe_mode" on the wire).
type MountStatus struct {
	Origin       Endpoint       `json:"nas1"`
	Intermediate Endpoint       `json:"usb"`
	Destination  Endpoint       `json:"nas2"`
	Restricted   bool           `json:"safe_mode"`
	Database     DatabaseStatus `json:"database"`
}

// PessimisticMountStatus is the record before the first successful load: nothing reachable, restricted mode on.
func PessimisticMountStatus() MountStatus {
	return MountStatus{Restricted: true}
}

// Merge returns m with every top-level key present in patch replaced. Keys absent from patch keep their value.
//
// Unknown keys are ignored. A present key whose value fails to decode leaves m unchanged and returns an error. A null
// safe_mode is such a value: restricted mode is only ever lifted by an explicit false.
func (m MountStatus) Merge(patch json.RawMessage) (MountStatus, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return m, fmt.Errorf("mount status patch: %w", err)
	}

	next := m
	targets := map[string]any{
		"nas1":      &next.Origin,
		"usb":       &next.Intermediate,
		"nas2":      &next.Destination,
		"safe_mode": &next.Restricted,
		"database":  &next.Database,
	}

	for key, raw := range fields {
		dst, ok := targets[key]
		if !ok {
			continue
		}
		if err := decodeFresh(raw, dst); err != nil {
			return m, fmt.Errorf("mount status patch %q: %w", key, err)
		}
	}
	return next, nil
}

// decodeFresh zeroes dst before decoding so a replaced key does not inherit nested fields.
func decodeFresh(raw json.RawMessage, dst any) error {
	switch d := dst.(type) {
	case *Endpoint:
		*d = Endpoint{}
	case *DatabaseStatus:
		*d = DatabaseStatus{}
	case *bool:
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return fmt.Errorf("null is not a boolean")
		}
		*d = false
	}
	return json.Unmarshal(raw, dst)
}
