package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ephemera-box/catalog/internal/model"
	"github.com/ephemera-box/catalog/internal/process"
	"github.com/ephemera-box/catalog/internal/store"
)

// ---------------------------------------------------------------------------
// POST /api/batches
// ---------------------------------------------------------------------------

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	boxID := r.FormValue("box_id")
	if boxID == "" {
		writeError(w, http.StatusBadRequest, "box_id is required")
		return
	}

	b, err := s.store.CreateBatch(r.Context(), boxID)
	if err != nil {
		slog.Error("create batch", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create batch")
		return
	}

	writeJSON(w, http.StatusCreated, model.BatchWithItems{
		Batch: *b,
		Items: []model.Item{},
	})
}

// ---------------------------------------------------------------------------
// GET /api/batches/{batch}
// ---------------------------------------------------------------------------

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("batch")

	b, err := s.store.GetBatchWithItems(r.Context(), batchID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		slog.Error("get batch", "batch_id", batchID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get batch")
		return
	}
	if b.Items == nil {
		b.Items = []model.Item{}
	}

	writeJSON(w, http.StatusOK, b)
}

// ---------------------------------------------------------------------------
// POST /api/batches/{batch}/items
// ---------------------------------------------------------------------------

// handleProcessItem ingests one catalog item: it saves the uploaded images,
// creates the item in pending state (which bumps the batch total with it),
// and enqueues the background job. It responds before classification runs.
func (s *Server) handleProcessItem(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("batch")

	if _, err := s.store.GetBatch(r.Context(), batchID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		slog.Error("get batch", "batch_id", batchID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get batch")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	boxID := r.FormValue("box_id")
	if boxID == "" {
		writeError(w, http.StatusBadRequest, "box_id is required")
		return
	}
	uploads := r.MultipartForm.File["files"]
	if len(uploads) == 0 {
		writeError(w, http.StatusBadRequest, "at least one file is required")
		return
	}

	// Persist every image; the first one becomes the item's primary.
	paths := make([]string, 0, len(uploads))
	for _, fh := range uploads {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read upload")
			return
		}
		path, err := s.files.Save(batchID, fh.Filename, f)
		f.Close()
		if err != nil {
			slog.Error("save upload", "filename", fh.Filename, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save image")
			return
		}
		paths = append(paths, path)
	}

	item := model.NewItem(batchID, boxID, uploads[0].Filename, paths[0])
	itemID, err := s.store.CreateItem(r.Context(), item)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		slog.Error("create item", "batch_id", batchID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create item")
		return
	}

	s.jobs.Enqueue(process.Job{
		ItemID:     itemID,
		BatchID:    batchID,
		BoxID:      boxID,
		ImagePaths: paths,
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "queued",
		"item_id": itemID,
	})
}

// ---------------------------------------------------------------------------
// GET /api/batches/{batch}/items/{id}
// ---------------------------------------------------------------------------

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.lookupItem(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ---------------------------------------------------------------------------
// POST /api/batches/{batch}/items/{id}/retry
// ---------------------------------------------------------------------------

// handleRetryItem is the explicit retry operation: only failed items go back
// to pending, with metadata and error cleared, and get re-enqueued.
func (s *Server) handleRetryItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.lookupItem(w, r)
	if !ok {
		return
	}

	if item.Status != model.StatusFailed {
		writeError(w, http.StatusConflict, "only failed items can be retried")
		return
	}

	if err := s.store.ResetItemForRetry(r.Context(), item.ID); err != nil {
		slog.Error("reset item for retry", "item_id", item.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset item")
		return
	}
	// The item no longer counts as failed, so the batch counters (and its
	// derived done flag) must reflect that before the job runs.
	if _, _, err := s.store.RecountBatch(r.Context(), item.BatchID); err != nil {
		slog.Error("recount batch", "batch_id", item.BatchID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update batch")
		return
	}

	s.jobs.Enqueue(process.Job{
		ItemID:     item.ID,
		BatchID:    item.BatchID,
		BoxID:      item.BoxID,
		ImagePaths: []string{item.ImagePath},
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "queued",
		"item_id": item.ID,
	})
}

// lookupItem resolves the {batch}/{id} path pair to an item, writing the
// error response itself when the item is missing or belongs to another batch.
func (s *Server) lookupItem(w http.ResponseWriter, r *http.Request) (*model.Item, bool) {
	batchID := r.PathValue("batch")
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return nil, false
	}

	item, err := s.store.GetItem(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "item not found")
		return nil, false
	}
	if err != nil {
		slog.Error("get item", "item_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get item")
		return nil, false
	}
	if item.BatchID != batchID {
		writeError(w, http.StatusNotFound, "item not found")
		return nil, false
	}
	return item, true
}
