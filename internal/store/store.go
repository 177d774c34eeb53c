package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ephemera-box/catalog/internal/model"
)

// ErrNotFound is returned when a batch or item id does not exist.
var ErrNotFound = errors.New("not found")

// Verify at compile time that Store implements all interfaces.
var (
	_ BatchReader = (*Store)(nil)
	_ BatchWriter = (*Store)(nil)
	_ ItemReader  = (*Store)(nil)
	_ ItemWriter  = (*Store)(nil)
)

// Store provides data access to the SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and initialises the schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// currentSchemaVersion is bumped whenever the schema changes.
// Add a new migration function in the migrations slice below.
const currentSchemaVersion = 2

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	// migrations is an ordered list of migration functions.
	// Index 0 = migration from v0 to v1, etc.
	migrations := []func() error{
		s.migrateV1, // v0 → v1: initial schema
		s.migrateV2, // v1 → v2: item status index for rollup scans
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
		if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			return fmt.Errorf("update schema version to %d: %w", i+1, err)
		}
	}

	return nil
}

// migrateV1 creates the initial schema (v0 → v1).
func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		batch_id            TEXT PRIMARY KEY,
		box_id              TEXT NOT NULL,
		total_images        INTEGER NOT NULL DEFAULT 0,
		processed           INTEGER NOT NULL DEFAULT 0,
		failed              INTEGER NOT NULL DEFAULT 0,
		status              TEXT NOT NULL,
		current_image_index INTEGER NOT NULL DEFAULT 0,
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS batch_items (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id      TEXT NOT NULL REFERENCES batches(batch_id),
		box_id        TEXT NOT NULL,
		filename      TEXT NOT NULL,
		image_path    TEXT NOT NULL,
		title         TEXT NOT NULL DEFAULT '',
		type          TEXT NOT NULL DEFAULT 'other',
		year          TEXT NOT NULL DEFAULT '',
		notes         TEXT NOT NULL DEFAULT '',
		confidence    REAL,
		status        TEXT NOT NULL,
		error_message TEXT,
		processed_at  TEXT,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_batch_items_batch ON batch_items(batch_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// migrateV2 adds the index backing the per-completion rollup scans (v1 → v2).
func (s *Store) migrateV2() error {
	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_batch_items_status ON batch_items(batch_id, status)`)
	return err
}

// ---------------------------------------------------------------------------
// Batches
// ---------------------------------------------------------------------------

// CreateBatch inserts a new empty pending batch for the given box and
// returns it.
func (s *Store) CreateBatch(ctx context.Context, boxID string) (*model.Batch, error) {
	b := model.NewBatch(uuid.New().String(), boxID)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (batch_id, box_id, total_images, processed, failed, status, current_image_index, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.BatchID, b.BoxID, b.TotalImages, b.Processed, b.Failed, b.Status,
		b.CurrentImageIndex, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBatch returns a single batch, or ErrNotFound.
func (s *Store) GetBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT batch_id, box_id, total_images, processed, failed, status, current_image_index, created_at, updated_at
		FROM batches WHERE batch_id = ?`, batchID)
	return scanBatch(row)
}

// GetBatchWithItems returns a batch together with all of its items.
func (s *Store) GetBatchWithItems(ctx context.Context, batchID string) (*model.BatchWithItems, error) {
	b, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	items, err := s.ListItems(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return &model.BatchWithItems{Batch: *b, Done: b.Done(), Items: items}, nil
}

// MarkBatchProcessing moves a pending batch to processing. Applying it to a
// batch that is already processing is a no-op; it never regresses a batch.
func (s *Store) MarkBatchProcessing(ctx context.Context, batchID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET status = ?, updated_at = ? WHERE batch_id = ? AND status = ?`,
		model.BatchProcessing, now, batchID, model.BatchPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Already processing, or the batch does not exist.
		_, err := s.GetBatch(ctx, batchID)
		return err
	}
	return nil
}

// RecountBatch recomputes the rollup counters from the item rows and writes
// them back in a single statement, so a concurrent completion cannot wedge a
// stale pair of counts in between the scan and the write. Returns the counts
// that were persisted.
func (s *Store) RecountBatch(ctx context.Context, batchID string) (int, int, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	var processed, failed int
	err := s.db.QueryRowContext(ctx, `
		UPDATE batches
		SET processed  = (SELECT COUNT(*) FROM batch_items WHERE batch_id = batches.batch_id AND status = ?),
		    failed     = (SELECT COUNT(*) FROM batch_items WHERE batch_id = batches.batch_id AND status = ?),
		    updated_at = ?
		WHERE batch_id = ?
		RETURNING processed, failed`,
		model.StatusCompleted, model.StatusFailed, now, batchID).Scan(&processed, &failed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrNotFound
	}
	if err != nil {
		return 0, 0, err
	}
	return processed, failed, nil
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

// CreateItem inserts a new item and bumps the owning batch's total image
// count in the same transaction, so total_images always equals the count of
// item rows. Returns the store-assigned item id, or ErrNotFound when the
// batch does not exist.
func (s *Store) CreateItem(ctx context.Context, item model.Item) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx,
		`UPDATE batches SET total_images = total_images + 1, updated_at = ? WHERE batch_id = ?`,
		now, item.BatchID)
	if err != nil {
		return 0, err
	}
	if err := oneRowOrNotFound(res); err != nil {
		return 0, err
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO batch_items (batch_id, box_id, filename, image_path, title, type, year, notes, confidence, status, error_message, processed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.BatchID, item.BoxID, item.Filename, item.ImagePath,
		item.Title, item.Type, item.Year, item.Notes, item.Confidence,
		item.Status, item.ErrorMessage, item.ProcessedAt,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// GetItem returns a single item, or ErrNotFound.
func (s *Store) GetItem(ctx context.Context, id int64) (*model.Item, error) {
	row := s.db.QueryRowContext(ctx, itemSelect+` WHERE id = ?`, id)
	return scanItem(row)
}

// ListItems returns all items of a batch in creation order.
func (s *Store) ListItems(ctx context.Context, batchID string) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx, itemSelect+` WHERE batch_id = ? ORDER BY id ASC`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// CountItemsByStatus returns the number of the batch's items in the given
// status.
func (s *Store) CountItemsByStatus(ctx context.Context, batchID, status string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM batch_items WHERE batch_id = ? AND status = ?`,
		batchID, status).Scan(&n)
	return n, err
}

// SetItemProcessing moves a pending item to processing. The write commits
// before the classification call starts, so status readers never observe
// pending while work is underway.
func (s *Store) SetItemProcessing(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`UPDATE batch_items SET status = ?, updated_at = ? WHERE id = ?`,
		model.StatusProcessing, now, id)
	if err != nil {
		return err
	}
	return oneRowOrNotFound(res)
}

// SetItemCompleted writes the extracted metadata, stamps processed_at, clears
// any previous error, and marks the item completed, in one atomic update.
func (s *Store) SetItemCompleted(ctx context.Context, id int64, meta model.Metadata) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE batch_items
		SET title = ?, type = ?, year = ?, notes = ?, confidence = ?,
		    status = ?, error_message = NULL, processed_at = ?, updated_at = ?
		WHERE id = ?`,
		meta.Title, meta.Type, meta.Year, meta.Notes, meta.Confidence,
		model.StatusCompleted, now, now, id)
	if err != nil {
		return err
	}
	return oneRowOrNotFound(res)
}

// SetItemFailed marks the item failed with the given message and stamps
// processed_at. Metadata fields stay blank.
func (s *Store) SetItemFailed(ctx context.Context, id int64, errorMessage string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE batch_items
		SET status = ?, error_message = ?, processed_at = ?, updated_at = ?
		WHERE id = ?`,
		model.StatusFailed, errorMessage, now, now, id)
	if err != nil {
		return err
	}
	return oneRowOrNotFound(res)
}

// ResetItemForRetry returns a failed item to pending with blank metadata so
// it can be processed again. Retry is an explicit operation; the transition
// only applies to failed items.
func (s *Store) ResetItemForRetry(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE batch_items
		SET title = '', type = ?, year = '', notes = '', confidence = NULL,
		    status = ?, error_message = NULL, processed_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		model.TypeOther, model.StatusPending, now, id, model.StatusFailed)
	if err != nil {
		return err
	}
	return oneRowOrNotFound(res)
}

// ResetStaleProcessing resets any processing items back to pending (for
// server restart after a crash mid-job).
func (s *Store) ResetStaleProcessing(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`UPDATE batch_items SET status = ?, updated_at = ? WHERE status = ?`,
		model.StatusPending, now, model.StatusProcessing)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

const itemSelect = `SELECT id, batch_id, box_id, filename, image_path, title, type, year, notes, confidence, status, error_message, processed_at, created_at, updated_at FROM batch_items`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row scanner) (*model.Item, error) {
	var item model.Item
	err := row.Scan(&item.ID, &item.BatchID, &item.BoxID, &item.Filename, &item.ImagePath,
		&item.Title, &item.Type, &item.Year, &item.Notes, &item.Confidence,
		&item.Status, &item.ErrorMessage, &item.ProcessedAt,
		&item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func scanBatch(row scanner) (*model.Batch, error) {
	var b model.Batch
	err := row.Scan(&b.BatchID, &b.BoxID, &b.TotalImages, &b.Processed, &b.Failed,
		&b.Status, &b.CurrentImageIndex, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func oneRowOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
