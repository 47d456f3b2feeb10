// Package resultstore persists grading records and serves the
// growth-curve / history queries, as the collaborator the grading engine
// calls out to (and whose failures it logs and swallows).
package resultstore

import (
	"context"
	"time"

	"github.com/ocx/inkgrade/internal/gradetypes"
)

// KeyUsageEvent records one credential-borrowing event for audit/growth
// analytics, mirroring t_key_log.
type KeyUsageEvent struct {
	Fingerprint string
	TaskID      string
	Succeeded   bool
	OccurredAt  time.Time
}

// HistoryEntry is one row returned by the history endpoint.
type HistoryEntry struct {
	TaskID    string `json:"taskId"`
	CreatedAt string `json:"createdAt"`
	Summary   string `json:"summary"`
}

// GrowthPoint is one chronological sample of a user's performance on a
// given character, returned by GET /growth/{userId}/{charName}.
type GrowthPoint struct {
	TaskID       string `json:"taskId"`
	OverallScore int    `json:"overallScore"`
	CreatedAt    string `json:"createdAt"`
}

// Store is the persistence collaborator the core treats as external.
// Every method may fail. The grading engine logs save failures at WARN
// and swallows them rather than turning a successful grading into a
// failed response; the HTTP query handlers return a failed lookup as
// SYSTEM_ERROR.
type Store interface {
	SaveResult(ctx context.Context, result *gradetypes.BatchResult, filename string, userID, copyBookID *int64) error
	SaveSingleResult(ctx context.Context, result *gradetypes.SingleCharResult, userID *int64) error
	LogKeyUsage(ctx context.Context, ev KeyUsageEvent) error
	FindByTaskID(ctx context.Context, taskID string) (*gradetypes.BatchResult, error)
	CountRecentCalls(ctx context.Context, userID int64, minutes int) (int, error)
	GetGrowthCurve(ctx context.Context, userID int64, char string) ([]GrowthPoint, error)
	History(ctx context.Context, userID int64, limit int) ([]HistoryEntry, error)
}

// TimestampLayout is the "YYYY-MM-DD HH:MM:SS" format every stored
// timestamp uses, sidestepping driver-specific timestamp handling.
const TimestampLayout = "2006-01-02 15:04:05"

func FormatNow() string { return time.Now().Format(TimestampLayout) }
