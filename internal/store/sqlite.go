package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nself/content-acquisition/internal/model"
)

const schemaVersion = 1

// SQLite implements Store over a single-writer, WAL-mode database. Row
// locking (§9) is real here: TransitionDownload and UpdatePipelineRun open
// their transaction with BEGIN IMMEDIATE, which takes SQLite's reserved
// lock up front instead of waiting for the first write statement.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the database at path and applies
// the schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := openDB(path, defaultDBConfig())
	if err != nil {
		return nil, err
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const schema = `
	CREATE TABLE IF NOT EXISTS pipeline_runs (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id     TEXT NOT NULL,
		trigger        TEXT NOT NULL,
		content_title  TEXT NOT NULL,
		content_type   TEXT NOT NULL,
		status         TEXT NOT NULL,
		stages_json    TEXT NOT NULL,
		metadata_json  TEXT NOT NULL,
		torrent_dl_id  TEXT,
		encoding_job_id TEXT,
		error_message  TEXT,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_account_status ON pipeline_runs(account_id, status);

	CREATE TABLE IF NOT EXISTS downloads (
		id               TEXT PRIMARY KEY,
		account_id       TEXT NOT NULL,
		user_id          TEXT,
		content_type     TEXT,
		title            TEXT NOT NULL,
		state            TEXT NOT NULL,
		progress         REAL NOT NULL DEFAULT 0,
		magnet_uri       TEXT,
		torrent_id       TEXT,
		encoding_job_id  TEXT,
		quality_profile  TEXT,
		retry_count      INTEGER NOT NULL DEFAULT 0,
		error_message    TEXT,
		content_show_id  TEXT,
		content_season   INTEGER,
		content_episode  INTEGER,
		content_tmdb_id  TEXT,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_downloads_account ON downloads(account_id);
	CREATE INDEX IF NOT EXISTS idx_downloads_account_state ON downloads(account_id, state);

	CREATE TABLE IF NOT EXISTS download_state_history (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		download_id   TEXT NOT NULL,
		from_state    TEXT,
		to_state      TEXT NOT NULL,
		metadata_json TEXT,
		created_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_download_created ON download_state_history(download_id, created_at);

	CREATE TABLE IF NOT EXISTS acquisition_queue (
		download_id TEXT PRIMARY KEY,
		account_id  TEXT NOT NULL,
		priority    INTEGER NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_queue_priority ON acquisition_queue(priority DESC, created_at ASC);

	CREATE TABLE IF NOT EXISTS subscriptions (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id         TEXT NOT NULL,
		subscription_type  TEXT NOT NULL,
		content_name       TEXT NOT NULL,
		quality_profile_id TEXT,
		year               INTEGER NOT NULL DEFAULT 0,
		qualities_json     TEXT,
		enabled            INTEGER NOT NULL DEFAULT 1,
		future_seasons     INTEGER NOT NULL DEFAULT 0,
		existing_seasons   INTEGER NOT NULL DEFAULT 0,
		created_at         TEXT NOT NULL,
		updated_at         TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_account_enabled ON subscriptions(account_id, enabled);

	CREATE TABLE IF NOT EXISTS rss_feeds (
		id                     INTEGER PRIMARY KEY AUTOINCREMENT,
		url                    TEXT NOT NULL,
		feed_type              TEXT NOT NULL,
		enabled                INTEGER NOT NULL DEFAULT 1,
		check_interval_minutes INTEGER NOT NULL,
		last_check_at          TEXT,
		last_success_at        TEXT,
		consecutive_failures   INTEGER NOT NULL DEFAULT 0,
		last_error             TEXT,
		next_check_at          TEXT,
		quality_profile_id     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_feeds_next_check ON rss_feeds(next_check_at);

	CREATE TABLE IF NOT EXISTS rss_feed_items (
		id                      INTEGER PRIMARY KEY AUTOINCREMENT,
		feed_id                 INTEGER NOT NULL,
		title                   TEXT NOT NULL,
		link                    TEXT,
		pub_date                TEXT,
		fingerprint_json        TEXT,
		status                  TEXT NOT NULL,
		matched_subscription_id INTEGER,
		rejection_reason        TEXT,
		created_at              TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_feed_items_feed_title ON rss_feed_items(feed_id, title);

	CREATE TABLE IF NOT EXISTS download_rules (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id      TEXT NOT NULL,
		conditions_json TEXT NOT NULL,
		action          TEXT NOT NULL,
		priority        INTEGER NOT NULL DEFAULT 0,
		enabled         INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_rules_account_enabled ON download_rules(account_id, enabled);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// beginImmediate acquires a dedicated connection and opens a transaction
// with SQLite's reserved lock taken up front, giving TransitionDownload and
// UpdatePipelineRun real row-lock semantics instead of optimistic retry.
func beginImmediate(ctx context.Context, db *sql.DB) (*sql.Conn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func rollback(ctx context.Context, conn *sql.Conn) {
	_, _ = conn.ExecContext(ctx, "ROLLBACK")
	_ = conn.Close()
}

func commit(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		_ = conn.Close()
		return err
	}
	return conn.Close()
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

// --- PipelineStore ---

func (s *SQLite) CreatePipelineRun(ctx context.Context, run *model.PipelineRun) (int64, error) {
	stagesJSON, err := json.Marshal(run.Stages)
	if err != nil {
		return 0, err
	}
	metaJSON, err := json.Marshal(run.Metadata)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (
			account_id, trigger, content_title, content_type, status,
			stages_json, metadata_json, torrent_dl_id, encoding_job_id,
			error_message, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.AccountID, run.Trigger, run.ContentTitle, run.ContentType, run.Status,
		stagesJSON, metaJSON, run.TorrentDLID, run.EncodingJobID,
		run.ErrorMessage, formatTime(run.CreatedAt), formatTime(run.UpdatedAt),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	run.ID = id
	return id, nil
}

func (s *SQLite) GetPipelineRun(ctx context.Context, id int64) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, trigger, content_title, content_type, status,
		       stages_json, metadata_json, torrent_dl_id, encoding_job_id,
		       error_message, created_at, updated_at
		FROM pipeline_runs WHERE id = ?`, id)
	return scanPipelineRun(row)
}

func scanPipelineRun(scanner interface{ Scan(dest ...any) error }) (*model.PipelineRun, error) {
	var r model.PipelineRun
	var stagesJSON, metaJSON []byte
	var torrentDLID, encodingJobID, errMsg sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&r.ID, &r.AccountID, &r.Trigger, &r.ContentTitle, &r.ContentType, &r.Status,
		&stagesJSON, &metaJSON, &torrentDLID, &encodingJobID,
		&errMsg, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(stagesJSON, &r.Stages); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metaJSON, &r.Metadata); err != nil {
		return nil, err
	}
	r.TorrentDLID = torrentDLID.String
	r.EncodingJobID = encodingJobID.String
	r.ErrorMessage = errMsg.String
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

func (s *SQLite) UpdatePipelineRun(ctx context.Context, id int64, fn func(*model.PipelineRun) error) (*model.PipelineRun, error) {
	conn, err := beginImmediate(ctx, s.db)
	if err != nil {
		return nil, err
	}

	row := conn.QueryRowContext(ctx, `
		SELECT id, account_id, trigger, content_title, content_type, status,
		       stages_json, metadata_json, torrent_dl_id, encoding_job_id,
		       error_message, created_at, updated_at
		FROM pipeline_runs WHERE id = ?`, id)
	run, err := scanPipelineRun(row)
	if err != nil {
		rollback(ctx, conn)
		return nil, err
	}

	if err := fn(run); err != nil {
		rollback(ctx, conn)
		return nil, err
	}
	run.UpdatedAt = time.Now().UTC()

	stagesJSON, err := json.Marshal(run.Stages)
	if err != nil {
		rollback(ctx, conn)
		return nil, err
	}
	metaJSON, err := json.Marshal(run.Metadata)
	if err != nil {
		rollback(ctx, conn)
		return nil, err
	}

	_, err = conn.ExecContext(ctx, `
		UPDATE pipeline_runs SET
			status = ?, stages_json = ?, metadata_json = ?, torrent_dl_id = ?,
			encoding_job_id = ?, error_message = ?, updated_at = ?
		WHERE id = ?`,
		run.Status, stagesJSON, metaJSON, run.TorrentDLID,
		run.EncodingJobID, run.ErrorMessage, formatTime(run.UpdatedAt), id,
	)
	if err != nil {
		rollback(ctx, conn)
		return nil, err
	}

	if err := commit(ctx, conn); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLite) ListNonTerminalPipelineRuns(ctx context.Context) ([]*model.PipelineRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, trigger, content_title, content_type, status,
		       stages_json, metadata_json, torrent_dl_id, encoding_job_id,
		       error_message, created_at, updated_at
		FROM pipeline_runs
		WHERE status NOT IN (?, ?, ?)
		ORDER BY id`,
		model.PipelineCompleted, model.PipelineFailed, model.PipelineVPNWaiting)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPipelineRuns(rows)
}

func (s *SQLite) ListPipelineRunsByAccountStatus(ctx context.Context, accountID string, status model.PipelineStatus) ([]*model.PipelineRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, trigger, content_title, content_type, status,
		       stages_json, metadata_json, torrent_dl_id, encoding_job_id,
		       error_message, created_at, updated_at
		FROM pipeline_runs
		WHERE account_id = ? AND status = ?
		ORDER BY id`, accountID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPipelineRuns(rows)
}

func collectPipelineRuns(rows *sql.Rows) ([]*model.PipelineRun, error) {
	var out []*model.PipelineRun
	for rows.Next() {
		r, err := scanPipelineRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- DownloadStore ---

func (s *SQLite) CreateDownload(ctx context.Context, d *model.Download) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO downloads (
			id, account_id, user_id, content_type, title, state, progress,
			magnet_uri, torrent_id, encoding_job_id, quality_profile, retry_count,
			error_message, content_show_id, content_season, content_episode,
			content_tmdb_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.AccountID, d.UserID, d.ContentType, d.Title, d.State, d.Progress,
		d.MagnetURI, d.TorrentID, d.EncodingJobID, d.QualityProfile, d.RetryCount,
		d.ErrorMessage, d.Content.ShowID, d.Content.Season, d.Content.Episode,
		d.Content.TMDBID, formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO download_state_history (download_id, from_state, to_state, metadata_json, created_at)
		VALUES (?, NULL, ?, NULL, ?)`,
		d.ID, d.State, formatTime(d.CreatedAt),
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLite) GetDownload(ctx context.Context, id string) (*model.Download, error) {
	row := s.db.QueryRowContext(ctx, downloadSelect+" WHERE id = ?", id)
	return scanDownload(row)
}

const downloadSelect = `
	SELECT id, account_id, user_id, content_type, title, state, progress,
	       magnet_uri, torrent_id, encoding_job_id, quality_profile, retry_count,
	       error_message, content_show_id, content_season, content_episode,
	       content_tmdb_id, created_at, updated_at
	FROM downloads`

func scanDownload(scanner interface{ Scan(dest ...any) error }) (*model.Download, error) {
	var d model.Download
	var userID, magnetURI, torrentID, encodingJobID, qualityProfile, errMsg sql.NullString
	var showID, tmdbID sql.NullString
	var season, episode sql.NullInt64
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID, &d.AccountID, &userID, &d.ContentType, &d.Title, &d.State, &d.Progress,
		&magnetURI, &torrentID, &encodingJobID, &qualityProfile, &d.RetryCount,
		&errMsg, &showID, &season, &episode,
		&tmdbID, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	d.UserID = userID.String
	d.MagnetURI = magnetURI.String
	d.TorrentID = torrentID.String
	d.EncodingJobID = encodingJobID.String
	d.QualityProfile = qualityProfile.String
	d.ErrorMessage = errMsg.String
	d.Content = model.ContentRef{
		ShowID:  showID.String,
		Season:  int(season.Int64),
		Episode: int(episode.Int64),
		TMDBID:  tmdbID.String,
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func (s *SQLite) ListDownloadsByAccount(ctx context.Context, accountID string) ([]*model.Download, error) {
	rows, err := s.db.QueryContext(ctx, downloadSelect+" WHERE account_id = ? ORDER BY created_at", accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDownloads(rows)
}

func (s *SQLite) ListDownloadsByState(ctx context.Context, accountID string, state model.DownloadState) ([]*model.Download, error) {
	rows, err := s.db.QueryContext(ctx, downloadSelect+" WHERE account_id = ? AND state = ? ORDER BY created_at", accountID, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDownloads(rows)
}

func collectDownloads(rows *sql.Rows) ([]*model.Download, error) {
	var out []*model.Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLite) TransitionDownload(
	ctx context.Context,
	id string,
	to model.DownloadState,
	isAllowed func(from model.DownloadState) bool,
	metadata model.JSONBlob,
) (*model.Download, error) {
	conn, err := beginImmediate(ctx, s.db)
	if err != nil {
		return nil, err
	}

	row := conn.QueryRowContext(ctx, downloadSelect+" WHERE id = ?", id)
	d, err := scanDownload(row)
	if err != nil {
		rollback(ctx, conn)
		return nil, err
	}

	from := d.State
	if !isAllowed(from) {
		rollback(ctx, conn)
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	d.State = to
	d.UpdatedAt = now

	_, err = conn.ExecContext(ctx, `UPDATE downloads SET state = ?, updated_at = ? WHERE id = ?`, to, formatTime(now), id)
	if err != nil {
		rollback(ctx, conn)
		return nil, err
	}

	var metaJSON []byte
	if len(metadata) > 0 {
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			rollback(ctx, conn)
			return nil, err
		}
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO download_state_history (download_id, from_state, to_state, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?)`, id, from, to, metaJSON, formatTime(now))
	if err != nil {
		rollback(ctx, conn)
		return nil, err
	}

	if err := commit(ctx, conn); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *SQLite) IncrementRetryCount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET retry_count = retry_count + 1, error_message = '', updated_at = ?
		WHERE id = ?`, formatTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) ListDownloadHistory(ctx context.Context, downloadID string) ([]*model.DownloadStateHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, download_id, from_state, to_state, metadata_json, created_at
		FROM download_state_history WHERE download_id = ? ORDER BY created_at ASC`, downloadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.DownloadStateHistory
	for rows.Next() {
		var h model.DownloadStateHistory
		var fromState sql.NullString
		var metaJSON []byte
		var createdAt string
		if err := rows.Scan(&h.ID, &h.DownloadID, &fromState, &h.ToState, &metaJSON, &createdAt); err != nil {
			return nil, err
		}
		if fromState.Valid {
			fs := model.DownloadState(fromState.String)
			h.FromState = &fs
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &h.Metadata); err != nil {
				return nil, err
			}
		}
		h.CreatedAt = parseTime(createdAt)
		out = append(out, &h)
	}
	return out, rows.Err()
}

// --- QueueStore ---

func (s *SQLite) AddToQueue(ctx context.Context, entry model.AcquisitionQueueEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO acquisition_queue (download_id, account_id, priority, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(download_id) DO UPDATE SET priority = excluded.priority`,
		entry.DownloadID, entry.AccountID, entry.Priority, formatTime(entry.CreatedAt),
	)
	return err
}

func (s *SQLite) RemoveFromQueue(ctx context.Context, downloadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM acquisition_queue WHERE download_id = ?`, downloadID)
	return err
}

func (s *SQLite) PopNextQueueEntry(ctx context.Context) (*model.AcquisitionQueueEntry, error) {
	conn, err := beginImmediate(ctx, s.db)
	if err != nil {
		return nil, err
	}

	row := conn.QueryRowContext(ctx, `
		SELECT download_id, account_id, priority, created_at FROM acquisition_queue
		ORDER BY priority DESC, created_at ASC LIMIT 1`)

	var e model.AcquisitionQueueEntry
	var createdAt string
	if err := row.Scan(&e.DownloadID, &e.AccountID, &e.Priority, &createdAt); err != nil {
		rollback(ctx, conn)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	e.CreatedAt = parseTime(createdAt)

	if _, err := conn.ExecContext(ctx, `DELETE FROM acquisition_queue WHERE download_id = ?`, e.DownloadID); err != nil {
		rollback(ctx, conn)
		return nil, err
	}

	if err := commit(ctx, conn); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLite) QueueDepth(ctx context.Context, accountID string) (int, error) {
	var n int
	var err error
	if accountID == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM acquisition_queue`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM acquisition_queue WHERE account_id = ?`, accountID).Scan(&n)
	}
	return n, err
}

// --- SubscriptionStore ---

func (s *SQLite) CreateSubscription(ctx context.Context, sub *model.Subscription) (int64, error) {
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	qualitiesJSON, err := json.Marshal(sub.Qualities)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (
			account_id, subscription_type, content_name, quality_profile_id, year, qualities_json,
			enabled, future_seasons, existing_seasons, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.AccountID, sub.SubscriptionType, sub.ContentName, sub.QualityProfileID, sub.Year, qualitiesJSON,
		sub.Enabled, sub.FutureSeasons, sub.ExistingSeasons, formatTime(sub.CreatedAt), formatTime(sub.UpdatedAt),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	sub.ID = id
	return id, nil
}

func (s *SQLite) ListEnabledSubscriptions(ctx context.Context, accountID string) ([]*model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, subscription_type, content_name, quality_profile_id, year, qualities_json,
		       enabled, future_seasons, existing_seasons, created_at, updated_at
		FROM subscriptions WHERE account_id = ? AND enabled = 1`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQLite) ListAllEnabledSubscriptions(ctx context.Context) ([]*model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, subscription_type, content_name, quality_profile_id, year, qualities_json,
		       enabled, future_seasons, existing_seasons, created_at, updated_at
		FROM subscriptions WHERE enabled = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func scanSubscription(scanner interface{ Scan(dest ...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	var qualitiesJSON []byte
	var createdAt, updatedAt string
	if err := scanner.Scan(
		&sub.ID, &sub.AccountID, &sub.SubscriptionType, &sub.ContentName, &sub.QualityProfileID, &sub.Year, &qualitiesJSON,
		&sub.Enabled, &sub.FutureSeasons, &sub.ExistingSeasons, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	if len(qualitiesJSON) > 0 {
		if err := json.Unmarshal(qualitiesJSON, &sub.Qualities); err != nil {
			return nil, err
		}
	}
	sub.CreatedAt = parseTime(createdAt)
	sub.UpdatedAt = parseTime(updatedAt)
	return &sub, nil
}

// --- RSSStore ---

func (s *SQLite) ListDueFeeds(ctx context.Context, now time.Time) ([]*model.RSSFeed, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, feed_type, enabled, check_interval_minutes, last_check_at,
		       last_success_at, consecutive_failures, last_error, next_check_at, quality_profile_id
		FROM rss_feeds
		WHERE enabled = 1 AND (next_check_at IS NULL OR next_check_at <= ?)
		ORDER BY next_check_at ASC`, formatTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.RSSFeed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFeed(scanner interface{ Scan(dest ...any) error }) (*model.RSSFeed, error) {
	var f model.RSSFeed
	var lastCheck, lastSuccess, nextCheck sql.NullString
	var lastError, qualityProfileID sql.NullString
	err := scanner.Scan(
		&f.ID, &f.URL, &f.FeedType, &f.Enabled, &f.CheckIntervalMinutes, &lastCheck,
		&lastSuccess, &f.ConsecutiveFailures, &lastError, &nextCheck, &qualityProfileID,
	)
	if err != nil {
		return nil, err
	}
	f.LastCheckAt = parseTimePtr(lastCheck)
	f.LastSuccessAt = parseTimePtr(lastSuccess)
	f.NextCheckAt = parseTimePtr(nextCheck)
	f.LastError = lastError.String
	f.QualityProfileID = qualityProfileID.String
	return &f, nil
}

func (s *SQLite) UpdateFeedCheckResult(ctx context.Context, feedID int64, now time.Time, success bool, errMsg string, nextCheck time.Time) error {
	conn, err := beginImmediate(ctx, s.db)
	if err != nil {
		return err
	}

	row := conn.QueryRowContext(ctx, `SELECT consecutive_failures FROM rss_feeds WHERE id = ?`, feedID)
	var failures int
	if err := row.Scan(&failures); err != nil {
		rollback(ctx, conn)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	var lastSuccessExpr any
	if success {
		failures = 0
		errMsg = ""
		lastSuccessExpr = formatTime(now)
	} else {
		failures++
		lastSuccessExpr = nil
	}

	_, err = conn.ExecContext(ctx, `
		UPDATE rss_feeds SET
			last_check_at = ?,
			last_success_at = COALESCE(?, last_success_at),
			consecutive_failures = ?,
			last_error = ?,
			next_check_at = ?
		WHERE id = ?`,
		formatTime(now), lastSuccessExpr, failures, errMsg, formatTime(nextCheck), feedID,
	)
	if err != nil {
		rollback(ctx, conn)
		return err
	}
	return commit(ctx, conn)
}

func (s *SQLite) UpsertFeedItem(ctx context.Context, item *model.RSSFeedItem) (bool, error) {
	conn, err := beginImmediate(ctx, s.db)
	if err != nil {
		return false, err
	}

	row := conn.QueryRowContext(ctx, `
		SELECT id, feed_id, title, link, pub_date, fingerprint_json, status,
		       matched_subscription_id, rejection_reason, created_at
		FROM rss_feed_items WHERE feed_id = ? AND title = ?`, item.FeedID, item.Title)
	existing, err := scanFeedItem(row)
	if err == nil {
		rollback(ctx, conn)
		*item = *existing
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) && !errors.Is(err, ErrNotFound) {
		rollback(ctx, conn)
		return false, err
	}

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.Status == "" {
		item.Status = model.RSSItemPending
	}
	fpJSON, err := json.Marshal(item.Fingerprint)
	if err != nil {
		rollback(ctx, conn)
		return false, err
	}

	res, err := conn.ExecContext(ctx, `
		INSERT INTO rss_feed_items (feed_id, title, link, pub_date, fingerprint_json, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.FeedID, item.Title, item.Link, formatTime(item.PubDate), fpJSON, item.Status, formatTime(item.CreatedAt),
	)
	if err != nil {
		rollback(ctx, conn)
		return false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		rollback(ctx, conn)
		return false, err
	}
	item.ID = id

	if err := commit(ctx, conn); err != nil {
		return false, err
	}
	return true, nil
}

func scanFeedItem(scanner interface{ Scan(dest ...any) error }) (*model.RSSFeedItem, error) {
	var item model.RSSFeedItem
	var link sql.NullString
	var pubDate string
	var fpJSON []byte
	var matchedSub sql.NullInt64
	var rejectionReason sql.NullString
	var createdAt string

	err := scanner.Scan(
		&item.ID, &item.FeedID, &item.Title, &link, &pubDate, &fpJSON, &item.Status,
		&matchedSub, &rejectionReason, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	item.Link = link.String
	item.PubDate = parseTime(pubDate)
	if len(fpJSON) > 0 {
		if err := json.Unmarshal(fpJSON, &item.Fingerprint); err != nil {
			return nil, err
		}
	}
	if matchedSub.Valid {
		v := matchedSub.Int64
		item.MatchedSubscriptionID = &v
	}
	item.RejectionReason = rejectionReason.String
	item.CreatedAt = parseTime(createdAt)
	return &item, nil
}

func (s *SQLite) UpdateFeedItemStatus(ctx context.Context, itemID int64, status model.RSSItemStatus, matchedSubscriptionID *int64, rejectionReason string) error {
	var matchedVal any
	if matchedSubscriptionID != nil {
		matchedVal = *matchedSubscriptionID
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE rss_feed_items SET status = ?, matched_subscription_id = ?, rejection_reason = ?
		WHERE id = ?`, status, matchedVal, rejectionReason, itemID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- RuleStore ---

func (s *SQLite) ListEnabledRules(ctx context.Context, accountID string) ([]*model.DownloadRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, conditions_json, action, priority, enabled
		FROM download_rules WHERE account_id = ? AND enabled = 1
		ORDER BY priority DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.DownloadRule
	for rows.Next() {
		var r model.DownloadRule
		var condJSON []byte
		if err := rows.Scan(&r.ID, &r.AccountID, &condJSON, &r.Action, &r.Priority, &r.Enabled); err != nil {
			return nil, err
		}
		if len(condJSON) > 0 {
			if err := json.Unmarshal(condJSON, &r.Conditions); err != nil {
				return nil, err
			}
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
