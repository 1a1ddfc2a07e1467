package store

import (
	"gorm.io/gorm"

	"github.com/doctrans/doctrans/internal/store/model"
)

type JobQueryFilter struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (f *JobQueryFilter) ByOwner(orgID, username string) *JobQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("org_id = ? AND username = ?", orgID, username)
	})
	return f
}

func (f *JobQueryFilter) ByStatus(status model.JobStatus) *JobQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ?", status)
	})
	return f
}

type JobQueryOptions struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

func NewJobQueryOptions() *JobQueryOptions {
	return &JobQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (o *JobQueryOptions) WithLimit(limit int) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	})
	return o
}

func (o *JobQueryOptions) WithOffset(offset int) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Offset(offset)
	})
	return o
}

// WithNewestFirst orders the result reverse-chronologically by creation time.
func (o *JobQueryOptions) WithNewestFirst() *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at DESC")
	})
	return o
}
