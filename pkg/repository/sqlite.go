package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/dermalens/dermalens/pkg/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS histories (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	predicted_class TEXT NOT NULL,
	confidence      REAL NOT NULL,
	probabilities   TEXT NOT NULL,
	source_image_id TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_histories_user ON histories(user_id, created_at);

CREATE TABLE IF NOT EXISTS explanation_entries (
	history_id TEXT NOT NULL,
	method     TEXT NOT NULL,
	overlay_id TEXT NOT NULL,
	heatmap_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	PRIMARY KEY (history_id, method)
);
`

// SQLite implements Repository on a local SQLite database. The single-writer
// configuration makes each transaction the document-level atomic unit.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and bootstraps) a SQLite-backed repository at path
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.T(model.TagStorage), goerr.V("path", path))
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, goerr.Wrap(err, "failed to configure sqlite", goerr.T(model.TagStorage))
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to bootstrap sqlite schema", goerr.T(model.TagStorage))
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateHistory(ctx context.Context, history *model.History) error {
	probs, err := json.Marshal(history.Probabilities)
	if err != nil {
		return goerr.Wrap(err, "failed to encode probabilities")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO histories (id, user_id, predicted_class, confidence, probabilities, source_image_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(history.ID), string(history.UserID), history.PredictedClass, history.Confidence,
		string(probs), string(history.SourceImageID), history.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return goerr.Wrap(err, "failed to insert history", goerr.T(model.TagStorage), goerr.V("history_id", history.ID))
	}
	return nil
}

func scanHistory(row interface{ Scan(...any) error }) (*model.History, error) {
	var (
		h         model.History
		id        string
		userID    string
		probs     string
		sourceID  string
		createdAt string
	)
	if err := row.Scan(&id, &userID, &h.PredictedClass, &h.Confidence, &probs, &sourceID, &createdAt); err != nil {
		return nil, err
	}
	h.ID = model.HistoryID(id)
	h.UserID = model.UserID(userID)
	h.SourceImageID = model.BlobID(sourceID)
	if err := json.Unmarshal([]byte(probs), &h.Probabilities); err != nil {
		return nil, goerr.Wrap(err, "failed to decode probabilities")
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse history timestamp")
	}
	h.CreatedAt = ts
	return &h, nil
}

const historyColumns = "id, user_id, predicted_class, confidence, probabilities, source_image_id, created_at"

func (s *SQLite) GetHistory(ctx context.Context, id model.HistoryID) (*model.History, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM histories WHERE id = ?`, string(id))
	history, err := scanHistory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrHistoryNotFound, "no such history", goerr.V("history_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get history", goerr.T(model.TagStorage), goerr.V("history_id", id))
	}
	return history, nil
}

func (s *SQLite) ListHistoriesByUser(ctx context.Context, userID model.UserID) ([]*model.History, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM histories WHERE user_id = ? ORDER BY created_at DESC`, string(userID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list histories", goerr.T(model.TagStorage), goerr.V("user_id", userID))
	}
	defer func() { _ = rows.Close() }()

	var histories []*model.History
	for rows.Next() {
		history, err := scanHistory(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan history", goerr.T(model.TagStorage))
		}
		histories = append(histories, history)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate histories", goerr.T(model.TagStorage))
	}
	return histories, nil
}

func (s *SQLite) DeleteHistory(ctx context.Context, id model.HistoryID) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM histories WHERE id = ?`, string(id))
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete history", goerr.T(model.TagStorage), goerr.V("history_id", id))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read delete result", goerr.T(model.TagStorage))
	}
	return int(affected), nil
}

func (s *SQLite) UpsertEntry(ctx context.Context, historyID model.HistoryID, entry *model.ExplanationEntry) (prev *model.ExplanationEntry, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to begin transaction", goerr.T(model.TagStorage))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Parent check inside the transaction: an upsert racing a history
	// deletion must fail, never recreate the history.
	var exists int
	if err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM histories WHERE id = ? LIMIT 1`, string(historyID)).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrHistoryNotFound, "cannot upsert entry without history", goerr.V("history_id", historyID))
		}
		return nil, goerr.Wrap(err, "failed to check history", goerr.T(model.TagStorage))
	}

	var (
		overlayID string
		heatmapID string
		createdAt string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT overlay_id, heatmap_id, created_at FROM explanation_entries WHERE history_id = ? AND method = ?`,
		string(historyID), string(entry.Method)).Scan(&overlayID, &heatmapID, &createdAt)
	switch {
	case err == nil:
		ts, perr := time.Parse(time.RFC3339Nano, createdAt)
		if perr != nil {
			err = goerr.Wrap(perr, "failed to parse entry timestamp")
			return nil, err
		}
		prev = &model.ExplanationEntry{
			Method:    entry.Method,
			OverlayID: model.BlobID(overlayID),
			HeatmapID: model.BlobID(heatmapID),
			CreatedAt: ts,
		}
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	default:
		return nil, goerr.Wrap(err, "failed to read existing entry", goerr.T(model.TagStorage))
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO explanation_entries (history_id, method, overlay_id, heatmap_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (history_id, method) DO UPDATE SET
		   overlay_id = excluded.overlay_id,
		   heatmap_id = excluded.heatmap_id,
		   created_at = excluded.created_at`,
		string(historyID), string(entry.Method), string(entry.OverlayID), string(entry.HeatmapID),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, goerr.Wrap(err, "failed to upsert entry", goerr.T(model.TagStorage), goerr.V("history_id", historyID))
	}

	if err = tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "failed to commit entry upsert", goerr.T(model.TagStorage))
	}
	return prev, nil
}

func (s *SQLite) GetExplanation(ctx context.Context, historyID model.HistoryID) (*model.Explanation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT method, overlay_id, heatmap_id, created_at FROM explanation_entries WHERE history_id = ?`,
		string(historyID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query explanation entries", goerr.T(model.TagStorage), goerr.V("history_id", historyID))
	}
	defer func() { _ = rows.Close() }()

	doc := &model.Explanation{
		HistoryID: historyID,
		Entries:   make(map[model.Method]*model.ExplanationEntry),
	}
	for rows.Next() {
		var (
			method    string
			overlayID string
			heatmapID string
			createdAt string
		)
		if err := rows.Scan(&method, &overlayID, &heatmapID, &createdAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan entry", goerr.T(model.TagStorage))
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to parse entry timestamp")
		}
		doc.Entries[model.Method(method)] = &model.ExplanationEntry{
			Method:    model.Method(method),
			OverlayID: model.BlobID(overlayID),
			HeatmapID: model.BlobID(heatmapID),
			CreatedAt: ts,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate entries", goerr.T(model.TagStorage))
	}

	if len(doc.Entries) == 0 {
		return nil, goerr.Wrap(model.ErrExplanationNotFound, "no explanations for history", goerr.V("history_id", historyID))
	}
	return doc, nil
}

func (s *SQLite) DeleteExplanation(ctx context.Context, historyID model.HistoryID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM explanation_entries WHERE history_id = ?`, string(historyID)); err != nil {
		return goerr.Wrap(err, "failed to delete explanation entries", goerr.T(model.TagStorage), goerr.V("history_id", historyID))
	}
	return nil
}
