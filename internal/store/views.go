package store

import (
	"context"

	"github.com/docforge/docforge/internal/models"
)

// FileFilter narrows the per-bucket file listing.
type FileFilter struct {
	Status   models.FileStatus // empty means all statuses
	NameLike string            // substring match on file_name; empty means all
	Page     int               // zero-based
	PageSize int               // defaults to 50
}

// FilePage is one page of the per-bucket file view.
type FilePage struct {
	Files      []*models.FileMaster
	TotalCount int64
	Page       int
	PageSize   int
}

// ListFiles is the paginated per-bucket read model behind the list view.
func (q *queries) ListFiles(ctx context.Context, gxBucketID int64, filter FileFilter) (*FilePage, error) {
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	status := string(filter.Status)
	like := "%" + filter.NameLike + "%"

	var total int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM file_master
		WHERE gx_bucket_id = $1
			AND ($2 = '' OR status = $2)
			AND ($3 = '%%' OR file_name ILIKE $3)`,
		gxBucketID, status, like).Scan(&total)
	if err != nil {
		return nil, models.Transientf("count files: %v", err)
	}

	rows, err := q.db.Query(ctx, `
		SELECT `+fileColumns+` FROM file_master
		WHERE gx_bucket_id = $1
			AND ($2 = '' OR status = $2)
			AND ($3 = '%%' OR file_name ILIKE $3)
		ORDER BY id DESC
		LIMIT $4 OFFSET $5`,
		gxBucketID, status, like, filter.PageSize, filter.Page*filter.PageSize)
	if err != nil {
		return nil, models.Transientf("list files view: %v", err)
	}
	defer rows.Close()

	page := &FilePage{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		page.Files = append(page.Files, f)
	}
	return page, rows.Err()
}

// StatusCount is one (status, count) pair of the metrics view.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// StatusMetrics aggregates file counts per status for each requested
// bucket. Buckets with no rows are absent from the result.
func (q *queries) StatusMetrics(ctx context.Context, gxBucketIDs []int64) (map[int64][]StatusCount, error) {
	rows, err := q.db.Query(ctx, `
		SELECT gx_bucket_id, status, count(*)
		FROM file_master
		WHERE gx_bucket_id = ANY($1)
		GROUP BY gx_bucket_id, status
		ORDER BY gx_bucket_id, status`,
		gxBucketIDs)
	if err != nil {
		return nil, models.Transientf("status metrics: %v", err)
	}
	defer rows.Close()

	out := make(map[int64][]StatusCount)
	for rows.Next() {
		var bucket int64
		var sc StatusCount
		if err := rows.Scan(&bucket, &sc.Status, &sc.Count); err != nil {
			return nil, models.Transientf("scan metrics: %v", err)
		}
		out[bucket] = append(out[bucket], sc)
	}
	return out, rows.Err()
}
