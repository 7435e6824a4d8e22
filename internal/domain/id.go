package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID generates a UUIDv7 string for application-owned entities.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewBatchID returns the lineage batch identifier for one extract or refine
// invocation: batch_<yyyyMMdd_HHmmss>_<8 random hex chars>.
func NewBatchID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "batch_" + now.UTC().Format("20060102_150405") + "_" + suffix
}

// NewRunID returns the run identifier <pipeline>_<yyyyMMdd_HHmmss>.
func NewRunID(pipeline string, start time.Time) string {
	return pipeline + "_" + start.UTC().Format("20060102_150405")
}
