// Package idgen mints short, prefixed task identifiers.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// Short returns 12 hex characters derived from a fresh UUID, following the
// teacher's convention of minting entity IDs from google/uuid everywhere.
func Short() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}

// Task returns a whole-page grading task ID: "task-" + 12 hex chars.
func Task() string { return "task-" + Short() }

// SingleChar returns a single-character grading task ID: "single-" + 12 hex chars.
func SingleChar() string { return "single-" + Short() }
