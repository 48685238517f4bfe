// Package store persists the append-only action audit log and its daily
// rollups in SQLite, and supplies the durable processed-comment-ID set
// loaded at startup for de-duplication.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store wraps the audit-log database.
type Store struct {
	db *sql.DB

	// newID produces action row IDs. UUIDv7 keeps rows time-sortable.
	newID func() string
}

// Open opens (creating if needed) the audit log at path.
func Open(path string) (*Store, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:    db,
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
	}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// ActionRecord is one executed side effect. Never mutated after creation.
type ActionRecord struct {
	ID        string    `json:"id"`
	CommentID string    `json:"comment_id"`
	PostID    string    `json:"post_id"`
	Author    string    `json:"author"`
	AvatarURL string    `json:"avatar_url"`
	Message   string    `json:"message"`
	Intent    string    `json:"intent"`
	Actions   []string  `json:"actions"`
	Detail    string    `json:"detail"`
	ReplyText string    `json:"reply_text"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordAction appends one audit row.
func (s *Store) RecordAction(ctx context.Context, rec ActionRecord) error {
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	actionsJSON, err := json.Marshal(rec.Actions)
	if err != nil {
		return fmt.Errorf("store: marshal actions: %w", err)
	}

	err = exec(ctx, s.db, `
		INSERT INTO actions
			(id, comment_id, post_id, author, avatar_url, message, intent, actions, detail, reply_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CommentID, rec.PostID, rec.Author, rec.AvatarURL, rec.Message,
		rec.Intent, string(actionsJSON), rec.Detail, rec.ReplyText, rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: record action: %w", err)
	}
	return nil
}

// Actions returns the most recent rows, newest first. created_at is the
// comment's timestamp, so ties are broken by id: IDs are UUIDv7 and sort
// by insertion time.
func (s *Store) Actions(ctx context.Context, limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, comment_id, post_id, author, avatar_url, message, intent, actions, detail, reply_text, created_at
		FROM actions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query actions: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var rec ActionRecord
		var actionsJSON string
		var createdMs int64
		if err := rows.Scan(&rec.ID, &rec.CommentID, &rec.PostID, &rec.Author, &rec.AvatarURL,
			&rec.Message, &rec.Intent, &actionsJSON, &rec.Detail, &rec.ReplyText, &createdMs); err != nil {
			return nil, fmt.Errorf("store: scan action: %w", err)
		}
		_ = json.Unmarshal([]byte(actionsJSON), &rec.Actions)
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ProcessedCommentIDs returns every comment ID that already has an audit
// row. Loaded once at process start as the second dedup line of defence.
func (s *Store) ProcessedCommentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT comment_id FROM actions`)
	if err != nil {
		return nil, fmt.Errorf("store: query processed ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan processed id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DailySummary is the rollup of one day's activity.
type DailySummary struct {
	Day      string         `json:"day"`
	Total    int            `json:"total"`
	ByIntent map[string]int `json:"by_intent"`
	ByAction map[string]int `json:"by_action"`
}

// SaveDailySummary aggregates the given day's rows (day in "2006-01-02",
// UTC) and upserts the rollup. Returns the computed summary.
func (s *Store) SaveDailySummary(ctx context.Context, day string) (*DailySummary, error) {
	start, err := time.ParseInLocation("2006-01-02", day, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("store: bad day %q: %w", day, err)
	}
	end := start.Add(24 * time.Hour)

	rows, err := s.db.QueryContext(ctx, `
		SELECT intent, actions FROM actions WHERE created_at >= ? AND created_at < ?`,
		start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("store: query day rows: %w", err)
	}
	defer rows.Close()

	summary := &DailySummary{
		Day:      day,
		ByIntent: map[string]int{},
		ByAction: map[string]int{},
	}
	for rows.Next() {
		var intent, actionsJSON string
		if err := rows.Scan(&intent, &actionsJSON); err != nil {
			return nil, fmt.Errorf("store: scan day row: %w", err)
		}
		summary.Total++
		if intent != "" {
			summary.ByIntent[intent]++
		}
		var actions []string
		_ = json.Unmarshal([]byte(actionsJSON), &actions)
		for _, a := range actions {
			summary.ByAction[a]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byIntent, _ := json.Marshal(summary.ByIntent)
	byAction, _ := json.Marshal(summary.ByAction)
	err = exec(ctx, s.db, `
		INSERT INTO daily_summaries (day, total, by_intent, by_action, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			total = excluded.total,
			by_intent = excluded.by_intent,
			by_action = excluded.by_action,
			created_at = excluded.created_at`,
		day, summary.Total, string(byIntent), string(byAction), time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("store: save summary: %w", err)
	}
	return summary, nil
}

// Summary loads a previously saved rollup, or nil when none exists.
func (s *Store) Summary(ctx context.Context, day string) (*DailySummary, error) {
	var total int
	var byIntent, byAction string
	err := s.db.QueryRowContext(ctx,
		`SELECT total, by_intent, by_action FROM daily_summaries WHERE day = ?`, day).
		Scan(&total, &byIntent, &byAction)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: query summary: %w", err)
	}
	summary := &DailySummary{Day: day, Total: total, ByIntent: map[string]int{}, ByAction: map[string]int{}}
	_ = json.Unmarshal([]byte(byIntent), &summary.ByIntent)
	_ = json.Unmarshal([]byte(byAction), &summary.ByAction)
	return summary, nil
}
