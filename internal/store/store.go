package store

import (
	"context"

	"courserag/internal/models"
)

// MaterialStore is the content-side collaborator: the retrieval core reads
// materials, the management surface upserts them.
type MaterialStore interface {
	GetMaterials(ctx context.Context, courseID string) ([]models.Material, error)
	GetMaterial(ctx context.Context, id string) (models.Material, bool, error)
	UpsertMaterial(ctx context.Context, m models.Material) error
	DeleteMaterial(ctx context.Context, id string) error
	ListCourses(ctx context.Context) ([]models.Course, error)
	GetCourse(ctx context.Context, id string) (models.Course, bool, error)
	UpsertCourse(ctx context.Context, c models.Course) error
}

// HistoryStore feeds the confidence scorer's historical features.
type HistoryStore interface {
	RecentQueries(ctx context.Context, userID, courseID string, limit int) ([]models.QueryHistoryEntry, error)
	RecordQuery(ctx context.Context, e models.QueryHistoryEntry) error
}

// ChangeHook is invoked with the owning course id after any material
// content change; the router registers its cache invalidation here.
type ChangeHook func(courseID string)
