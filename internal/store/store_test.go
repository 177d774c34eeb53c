package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ephemera-box/catalog/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func mustCreateBatch(t *testing.T, s *Store, boxID string) *model.Batch {
	t.Helper()
	b, err := s.CreateBatch(context.Background(), boxID)
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	return b
}

func mustCreateItem(t *testing.T, s *Store, batchID, boxID string) int64 {
	t.Helper()
	item := model.NewItem(batchID, boxID, "scan.jpg", "/storage/scan.jpg")
	id, err := s.CreateItem(context.Background(), item)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	return id
}

func TestCreateAndGetBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := mustCreateBatch(t, s, "B1")
	if b.BatchID == "" {
		t.Fatal("expected generated batch id")
	}
	if b.Status != model.BatchPending {
		t.Errorf("Status = %q, want %q", b.Status, model.BatchPending)
	}

	got, err := s.GetBatch(ctx, b.BatchID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if got.BoxID != "B1" {
		t.Errorf("BoxID = %q, want %q", got.BoxID, "B1")
	}
	if got.TotalImages != 0 || got.Processed != 0 || got.Failed != 0 {
		t.Errorf("counters = %d/%d/%d, want 0/0/0", got.TotalImages, got.Processed, got.Failed)
	}
	if got.CreatedAt == "" || got.UpdatedAt == "" {
		t.Error("expected timestamps to be set")
	}
}

func TestGetBatch_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetBatch(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateItemBumpsBatchTotal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := mustCreateBatch(t, s, "B1")

	for i := 0; i < 3; i++ {
		mustCreateItem(t, s, b.BatchID, "B1")
	}

	got, _ := s.GetBatch(ctx, b.BatchID)
	if got.TotalImages != 3 {
		t.Errorf("TotalImages = %d, want 3", got.TotalImages)
	}
	n, err := s.CountItemsByStatus(ctx, b.BatchID, model.StatusPending)
	if err != nil {
		t.Fatalf("CountItemsByStatus: %v", err)
	}
	if n != got.TotalImages {
		t.Errorf("item rows = %d, total_images = %d, want equal", n, got.TotalImages)
	}
}

func TestCreateItem_UnknownBatchInsertsNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := model.NewItem("nonexistent", "B1", "scan.jpg", "/storage/scan.jpg")
	if _, err := s.CreateItem(ctx, item); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	// The transaction rolled back; no orphan item row survives.
	if _, err := s.GetItem(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetItem after failed create: err = %v, want ErrNotFound", err)
	}
}

func TestMarkBatchProcessing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := mustCreateBatch(t, s, "B1")

	if err := s.MarkBatchProcessing(ctx, b.BatchID); err != nil {
		t.Fatalf("MarkBatchProcessing: %v", err)
	}
	got, _ := s.GetBatch(ctx, b.BatchID)
	if got.Status != model.BatchProcessing {
		t.Errorf("Status = %q, want %q", got.Status, model.BatchProcessing)
	}

	// Applying again is a no-op, not an error.
	if err := s.MarkBatchProcessing(ctx, b.BatchID); err != nil {
		t.Fatalf("MarkBatchProcessing (repeat): %v", err)
	}

	if err := s.MarkBatchProcessing(ctx, "nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRecountBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := mustCreateBatch(t, s, "B1")

	ids := []int64{
		mustCreateItem(t, s, b.BatchID, "B1"),
		mustCreateItem(t, s, b.BatchID, "B1"),
		mustCreateItem(t, s, b.BatchID, "B1"),
	}
	if err := s.SetItemCompleted(ctx, ids[0], model.Metadata{Title: "a", Type: "photo"}); err != nil {
		t.Fatalf("SetItemCompleted: %v", err)
	}
	if err := s.SetItemCompleted(ctx, ids[1], model.Metadata{Title: "b", Type: "photo"}); err != nil {
		t.Fatalf("SetItemCompleted: %v", err)
	}
	if err := s.SetItemFailed(ctx, ids[2], "model timeout"); err != nil {
		t.Fatalf("SetItemFailed: %v", err)
	}

	processed, failed, err := s.RecountBatch(ctx, b.BatchID)
	if err != nil {
		t.Fatalf("RecountBatch: %v", err)
	}
	if processed != 2 || failed != 1 {
		t.Errorf("returned counts = %d/%d, want 2/1", processed, failed)
	}
	got, _ := s.GetBatch(ctx, b.BatchID)
	if got.Processed != 2 || got.Failed != 1 {
		t.Errorf("persisted counts = %d/%d, want 2/1", got.Processed, got.Failed)
	}
	if got.UpdatedAt < b.UpdatedAt {
		t.Error("UpdatedAt should not go backwards")
	}

	if _, _, err := s.RecountBatch(ctx, "nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// Concurrent jobs write from different pooled connections; every connection
// must carry the busy_timeout or colliding writes fail with SQLITE_BUSY
// instead of waiting for the lock.
func TestConcurrentWritersWaitForLock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := mustCreateBatch(t, s, "B1")

	const n = 8
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = mustCreateItem(t, s, b.BatchID, "B1")
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3*n)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := s.SetItemProcessing(ctx, id); err != nil {
				errs <- err
				return
			}
			if err := s.SetItemCompleted(ctx, id, model.Metadata{Title: "t", Type: "photo"}); err != nil {
				errs <- err
				return
			}
			if _, _, err := s.RecountBatch(ctx, b.BatchID); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent write: %v", err)
	}

	got, _ := s.GetBatch(ctx, b.BatchID)
	if got.Processed != n {
		t.Errorf("Processed = %d, want %d", got.Processed, n)
	}
}

func TestCreateAndGetItem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := mustCreateBatch(t, s, "B1")

	id := mustCreateItem(t, s, b.BatchID, "B1")
	got, err := s.GetItem(ctx, id)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusPending)
	}
	if got.Type != model.TypeOther {
		t.Errorf("Type = %q, want %q", got.Type, model.TypeOther)
	}
	if got.Title != "" || got.Confidence != nil || got.ProcessedAt != nil || got.ErrorMessage != nil {
		t.Error("metadata fields should be blank on a pending item")
	}
}

func TestGetItem_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetItem(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSetItemCompleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := mustCreateBatch(t, s, "B1")
	id := mustCreateItem(t, s, b.BatchID, "B1")

	if err := s.SetItemProcessing(ctx, id); err != nil {
		t.Fatalf("SetItemProcessing: %v", err)
	}
	meta := model.Metadata{Title: "Postcard", Type: "photo", Year: "1954", Notes: "torn edge", Confidence: 0.9}
	if err := s.SetItemCompleted(ctx, id, meta); err != nil {
		t.Fatalf("SetItemCompleted: %v", err)
	}

	got, _ := s.GetItem(ctx, id)
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusCompleted)
	}
	if got.Title != "Postcard" || got.Type != "photo" || got.Year != "1954" {
		t.Errorf("metadata = %q/%q/%q", got.Title, got.Type, got.Year)
	}
	if got.Confidence == nil || *got.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", got.Confidence)
	}
	if got.ProcessedAt == nil {
		t.Error("ProcessedAt should be set")
	}
	if got.ErrorMessage != nil {
		t.Error("ErrorMessage should be nil on a completed item")
	}
}

func TestSetItemFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := mustCreateBatch(t, s, "B1")
	id := mustCreateItem(t, s, b.BatchID, "B1")

	s.SetItemProcessing(ctx, id)
	if err := s.SetItemFailed(ctx, id, "model timeout"); err != nil {
		t.Fatalf("SetItemFailed: %v", err)
	}

	got, _ := s.GetItem(ctx, id)
	if got.Status != model.StatusFailed {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusFailed)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "model timeout" {
		t.Errorf("ErrorMessage = %v, want %q", got.ErrorMessage, "model timeout")
	}
	if got.Title != "" {
		t.Error("metadata should stay blank on a failed item")
	}
	if got.ProcessedAt == nil {
		t.Error("ProcessedAt should be set")
	}
}

func TestResetItemForRetry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := mustCreateBatch(t, s, "B1")
	id := mustCreateItem(t, s, b.BatchID, "B1")

	// Only failed items can be reset.
	if err := s.ResetItemForRetry(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("retry on pending item: err = %v, want ErrNotFound", err)
	}

	s.SetItemProcessing(ctx, id)
	s.SetItemFailed(ctx, id, "model timeout")
	if err := s.ResetItemForRetry(ctx, id); err != nil {
		t.Fatalf("ResetItemForRetry: %v", err)
	}

	got, _ := s.GetItem(ctx, id)
	if got.Status != model.StatusPending {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusPending)
	}
	if got.ErrorMessage != nil || got.ProcessedAt != nil {
		t.Error("error and processed_at should be cleared")
	}
	if got.Type != model.TypeOther {
		t.Errorf("Type = %q, want %q", got.Type, model.TypeOther)
	}
}

func TestCountItemsByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := mustCreateBatch(t, s, "B1")
	other := mustCreateBatch(t, s, "B2")

	completed := mustCreateItem(t, s, b.BatchID, "B1")
	failed := mustCreateItem(t, s, b.BatchID, "B1")
	mustCreateItem(t, s, b.BatchID, "B1") // stays pending
	mustCreateItem(t, s, other.BatchID, "B2")

	s.SetItemCompleted(ctx, completed, model.Metadata{Title: "t", Type: "photo"})
	s.SetItemFailed(ctx, failed, "boom")

	for status, want := range map[string]int{
		model.StatusCompleted: 1,
		model.StatusFailed:    1,
		model.StatusPending:   1,
	} {
		n, err := s.CountItemsByStatus(ctx, b.BatchID, status)
		if err != nil {
			t.Fatalf("CountItemsByStatus(%s): %v", status, err)
		}
		if n != want {
			t.Errorf("count %s = %d, want %d", status, n, want)
		}
	}
}

func TestListItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := mustCreateBatch(t, s, "B1")

	first := mustCreateItem(t, s, b.BatchID, "B1")
	second := mustCreateItem(t, s, b.BatchID, "B1")

	items, err := s.ListItems(ctx, b.BatchID)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].ID != first || items[1].ID != second {
		t.Error("items should come back in creation order")
	}
}

func TestGetBatchWithItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := mustCreateBatch(t, s, "B1")

	id := mustCreateItem(t, s, b.BatchID, "B1")
	s.SetItemCompleted(ctx, id, model.Metadata{Title: "t", Type: "photo"})
	s.RecountBatch(ctx, b.BatchID)

	got, err := s.GetBatchWithItems(ctx, b.BatchID)
	if err != nil {
		t.Fatalf("GetBatchWithItems: %v", err)
	}
	if len(got.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(got.Items))
	}
	if !got.Done {
		t.Error("batch with all items terminal should be done")
	}
}

func TestResetStaleProcessing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := mustCreateBatch(t, s, "B1")

	stuck := mustCreateItem(t, s, b.BatchID, "B1")
	fine := mustCreateItem(t, s, b.BatchID, "B1")
	s.SetItemProcessing(ctx, stuck)

	n, err := s.ResetStaleProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStaleProcessing: %v", err)
	}
	if n != 1 {
		t.Errorf("reset count = %d, want 1", n)
	}

	got, _ := s.GetItem(ctx, stuck)
	if got.Status != model.StatusPending {
		t.Errorf("stuck item status = %q, want pending", got.Status)
	}
	got, _ = s.GetItem(ctx, fine)
	if got.Status != model.StatusPending {
		t.Errorf("untouched item status = %q, want pending", got.Status)
	}
}

func TestMigration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")
	db, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if _, err := New(db); err != nil {
		t.Fatalf("New: %v", err)
	}

	var version int
	if err := db.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, currentSchemaVersion)
	}

	// Running New again is idempotent.
	if _, err := New(db); err != nil {
		t.Fatalf("New (second time): %v", err)
	}
}
