// Package postgrestore is the Postgres-backed ResultStore. It reads and
// writes t_homework, t_analysis, t_key_log and t_single_analysis; it does
// not touch t_user or t_copybook_template. It follows the teacher's
// database package's plain database/sql + lib/pq row-mirror style rather
// than an ORM.
package postgrestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/ocx/inkgrade/internal/gradetypes"
	"github.com/ocx/inkgrade/internal/resultstore"
)

type Store struct {
	db *sql.DB
}

// Open connects to Postgres using the lib/pq driver, mirroring the
// teacher's plain sql.Open + ping pattern.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgrestore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgrestore: ping: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SaveResult(ctx context.Context, result *gradetypes.BatchResult, filename string, userID, copyBookID *int64) error {
	analysesJSON, err := json.Marshal(result.Analyses)
	if err != nil {
		return fmt.Errorf("postgrestore: marshal analyses: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO t_homework (
			task_id, image_id, filename, user_id, copy_book_id,
			total_characters, grid_rows, grid_cols,
			avg_structure_score, avg_stroke_score, avg_overall_score,
			summary_comment, processing_time_ms, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (task_id) DO NOTHING`,
		result.TaskID, result.ImageID, filename, userID, copyBookID,
		result.TotalCharacters, result.GridRows, result.GridCols,
		result.AvgStructureScore, result.AvgStrokeScore, result.AvgOverallScore,
		result.SummaryComment, result.ProcessingTimeMs, result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgrestore: insert homework: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO t_analysis (task_id, analyses_json) VALUES ($1, $2)
		ON CONFLICT (task_id) DO UPDATE SET analyses_json = EXCLUDED.analyses_json`,
		result.TaskID, analysesJSON,
	)
	if err != nil {
		return fmt.Errorf("postgrestore: insert analysis: %w", err)
	}
	return nil
}

func (s *Store) SaveSingleResult(ctx context.Context, result *gradetypes.SingleCharResult, userID *int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO t_single_analysis (
			task_id, user_id, recognized_char,
			structure_score, stroke_score, balance_score, spacing_score,
			overall_score, overall_comment, suggestion,
			processing_time_ms, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		result.TaskID, userID, result.RecognizedChar,
		result.StructureScore, result.StrokeScore, result.BalanceScore, result.SpacingScore,
		result.OverallScore, result.OverallComment, result.Suggestion,
		result.ProcessingTimeMs, result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgrestore: insert single_analysis: %w", err)
	}
	return nil
}

func (s *Store) LogKeyUsage(ctx context.Context, ev resultstore.KeyUsageEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO t_key_log (fingerprint, task_id, succeeded, occurred_at)
		VALUES ($1,$2,$3,$4)`,
		ev.Fingerprint, ev.TaskID, ev.Succeeded, ev.OccurredAt.Format(resultstore.TimestampLayout),
	)
	if err != nil {
		return fmt.Errorf("postgrestore: insert key_log: %w", err)
	}
	return nil
}

func (s *Store) FindByTaskID(ctx context.Context, taskID string) (*gradetypes.BatchResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, image_id, total_characters, grid_rows, grid_cols,
		       avg_structure_score, avg_stroke_score, avg_overall_score,
		       summary_comment, processing_time_ms, created_at
		FROM t_homework WHERE task_id = $1`, taskID)

	var r gradetypes.BatchResult
	if err := row.Scan(
		&r.TaskID, &r.ImageID, &r.TotalCharacters, &r.GridRows, &r.GridCols,
		&r.AvgStructureScore, &r.AvgStrokeScore, &r.AvgOverallScore,
		&r.SummaryComment, &r.ProcessingTimeMs, &r.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("postgrestore: find by task id: %w", err)
	}

	var analysesJSON []byte
	if err := s.db.QueryRowContext(ctx,
		`SELECT analyses_json FROM t_analysis WHERE task_id = $1`, taskID,
	).Scan(&analysesJSON); err == nil {
		json.Unmarshal(analysesJSON, &r.Analyses)
	}

	return &r, nil
}

func (s *Store) CountRecentCalls(ctx context.Context, userID int64, minutes int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM t_homework
		WHERE user_id = $1 AND created_at >= to_char(now() - ($2 || ' minutes')::interval, 'YYYY-MM-DD HH24:MI:SS')`,
		userID, minutes,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgrestore: count recent calls: %w", err)
	}
	return count, nil
}

func (s *Store) GetGrowthCurve(ctx context.Context, userID int64, char string) ([]resultstore.GrowthPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, overall_score, created_at
		FROM t_single_analysis
		WHERE user_id = $1 AND recognized_char = $2
		ORDER BY created_at ASC`, userID, char)
	if err != nil {
		return nil, fmt.Errorf("postgrestore: growth curve: %w", err)
	}
	defer rows.Close()

	var out []resultstore.GrowthPoint
	for rows.Next() {
		var pt resultstore.GrowthPoint
		if err := rows.Scan(&pt.TaskID, &pt.OverallScore, &pt.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgrestore: scan growth point: %w", err)
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (s *Store) History(ctx context.Context, userID int64, limit int) ([]resultstore.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, created_at, summary_comment
		FROM t_homework
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgrestore: history: %w", err)
	}
	defer rows.Close()

	var out []resultstore.HistoryEntry
	for rows.Next() {
		var e resultstore.HistoryEntry
		if err := rows.Scan(&e.TaskID, &e.CreatedAt, &e.Summary); err != nil {
			return nil, fmt.Errorf("postgrestore: scan history entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
