// Package saver persists completed measurement results. Savers are sinks:
// the measurement runner hands over a finished record and the saver owns the
// serialization and destination (file or database).
package saver

import (
	"context"
	"time"
)

// Record is one completed measurement result.
type Record struct {
	// Measurement is the catalog name, e.g. "iv_curve".
	Measurement string `json:"measurement"`

	// BundleID identifies the resource bundle the measurement ran against.
	BundleID string `json:"bundle_id"`

	// TakenAt is the completion timestamp.
	TakenAt time.Time `json:"taken_at"`

	// Offline reports whether the run used simulated drivers.
	Offline bool `json:"offline"`

	// Params holds the validated measurement parameters.
	Params map[string]any `json:"params"`

	// Columns names the data columns, e.g. ["bias_V", "sensed_V"].
	Columns []string `json:"columns"`

	// Rows holds the data points, one value per column.
	Rows [][]float64 `json:"rows"`
}

// Saver is a measurement-result sink.
type Saver interface {
	// Save persists one record.
	Save(ctx context.Context, rec Record) error

	// Close releases the sink.
	Close() error
}
