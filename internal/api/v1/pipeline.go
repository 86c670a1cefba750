// internal/api/v1/pipeline.go
package api

import (
	"maps"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/reviewdash/internal/datastore"
	"github.com/tphakala/reviewdash/internal/datasync"
)

// SyncResponse reports the outcome of a manual sync.
type SyncResponse struct {
	Kind    datasync.Kind   `json:"kind"`
	Tables  map[string]bool `json:"tables"`
	Success bool            `json:"success"`
}

// SyncLogEntry is the JSON form of a sync log row.
type SyncLogEntry struct {
	ID            uint       `json:"id"`
	Table         string     `json:"table_name"`
	StartedAt     time.Time  `json:"sync_started_at"`
	CompletedAt   *time.Time `json:"sync_completed_at"`
	RecordsSynced int        `json:"records_synced"`
	Status        string     `json:"sync_status"`
	ErrorMessage  *string    `json:"error_message"`
	SyncKind      string     `json:"sync_type"`
	RunID         string     `json:"run_id"`
}

// TriggerSync handles POST /api/v1/sync[?table=task][&kind=manual].
// Without a table every table is synced in order, followed by reconciliation.
func (c *Controller) TriggerSync(ctx echo.Context) error {
	if c.syncer == nil {
		return c.unavailable(ctx, "warehouse sync")
	}

	kind := datasync.KindManual
	if raw := ctx.QueryParam("kind"); raw != "" {
		k, err := datasync.ParseKind(raw)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid sync kind", http.StatusBadRequest)
		}
		kind = k
	}

	reqCtx := ctx.Request().Context()
	if table := ctx.QueryParam("table"); table != "" {
		ok, err := c.syncer.SyncTable(reqCtx, table, kind)
		if err != nil {
			return c.HandleError(ctx, err, "Unknown table", statusFor(err))
		}
		return ctx.JSON(http.StatusOK, SyncResponse{Kind: kind, Tables: map[string]bool{table: ok}, Success: ok})
	}

	tables := c.syncer.SyncAll(reqCtx, kind)
	success := !slices.Contains(slices.Collect(maps.Values(tables)), false)
	return ctx.JSON(http.StatusOK, SyncResponse{Kind: kind, Tables: tables, Success: success})
}

// GetSyncLogs handles GET /api/v1/sync/logs[?table=task][&limit=50]
func (c *Controller) GetSyncLogs(ctx echo.Context) error {
	if c.syncLogs == nil {
		return c.unavailable(ctx, "sync log")
	}

	limit := 0
	if raw := ctx.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.HandleError(ctx, invalidParam("limit", raw), "Invalid query parameters", http.StatusBadRequest)
		}
		limit = min(n, 500)
	}

	rows, err := c.syncLogs.List(ctx.Request().Context(), ctx.QueryParam("table"), limit)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load sync logs", http.StatusInternalServerError)
	}

	entries := make([]SyncLogEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, toSyncLogEntry(&rows[i]))
	}
	return ctx.JSON(http.StatusOK, entries)
}

func toSyncLogEntry(row *datastore.SyncLog) SyncLogEntry {
	return SyncLogEntry{
		ID:            row.ID,
		Table:         row.Table,
		StartedAt:     row.StartedAt,
		CompletedAt:   row.CompletedAt,
		RecordsSynced: row.RecordsSynced,
		Status:        row.Status,
		ErrorMessage:  row.ErrorMessage,
		SyncKind:      row.SyncKind,
		RunID:         row.RunID,
	}
}

// TriggerIngest handles POST /api/v1/ingest[?folder=2025-01-15]
func (c *Controller) TriggerIngest(ctx echo.Context) error {
	if c.ingester == nil {
		return c.unavailable(ctx, "delivery ingestion")
	}

	result, err := c.ingester.Ingest(ctx.Request().Context(), ctx.QueryParam("folder"))
	if err != nil {
		return c.HandleError(ctx, err, "Error during delivery ingestion", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, result)
}

// FolderListResponse lists object store partitions.
type FolderListResponse struct {
	Folders []string `json:"folders"`
	Count   int      `json:"count"`
}

// FileInfo describes one manifest in a partition.
type FileInfo struct {
	Key          string    `json:"key"`
	LastModified time.Time `json:"last_modified"`
	Size         int64     `json:"size"`
}

// FolderFilesResponse lists the manifests of one partition.
type FolderFilesResponse struct {
	Folder string     `json:"folder"`
	Files  []FileInfo `json:"files"`
	Count  int        `json:"count"`
}

// ListFolders handles GET /api/v1/objectstore/folders
func (c *Controller) ListFolders(ctx echo.Context) error {
	if c.ingester == nil {
		return c.unavailable(ctx, "object store")
	}

	folders, err := c.ingester.ListPartitions(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Error listing folders", statusFor(err))
	}
	if folders == nil {
		folders = []string{}
	}
	return ctx.JSON(http.StatusOK, FolderListResponse{Folders: folders, Count: len(folders)})
}

// ListFolderFiles handles GET /api/v1/objectstore/folders/:folder/files
func (c *Controller) ListFolderFiles(ctx echo.Context) error {
	if c.ingester == nil {
		return c.unavailable(ctx, "object store")
	}

	folder := ctx.Param("folder")
	objects, err := c.ingester.ListManifests(ctx.Request().Context(), folder)
	if err != nil {
		return c.HandleError(ctx, err, "Error listing files", statusFor(err))
	}

	files := make([]FileInfo, 0, len(objects))
	for _, o := range objects {
		files = append(files, FileInfo{Key: o.Key, LastModified: o.LastModified, Size: o.Size})
	}
	return ctx.JSON(http.StatusOK, FolderFilesResponse{Folder: folder, Files: files, Count: len(files)})
}

// RefreshDimensions handles POST /api/v1/dimensions/refresh
func (c *Controller) RefreshDimensions(ctx echo.Context) error {
	n, err := c.stats.AllowList().Refresh(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to refresh quality dimensions", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, map[string]int{"dimension_count": n})
}
