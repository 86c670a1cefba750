package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/tphakala/reviewdash/internal/datastore"
)

// ContributorRepository looks up contributors for display fields.
type ContributorRepository interface {
	// GetByIDs returns the contributors found among ids, keyed by id.
	// Missing ids are simply absent from the map.
	GetByIDs(ctx context.Context, ids []int64) (map[int64]datastore.Contributor, error)
}

type contributorRepository struct {
	db        *gorm.DB
	chunkSize int
}

// NewContributorRepository creates a new ContributorRepository.
func NewContributorRepository(db *gorm.DB) ContributorRepository {
	return &contributorRepository{db: db, chunkSize: 900}
}

func (r *contributorRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]datastore.Contributor, error) {
	result := make(map[int64]datastore.Contributor, len(ids))
	for chunk := range Chunk(ids, r.chunkSize) {
		var rows []datastore.Contributor
		if err := r.db.WithContext(ctx).Where("id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, c := range rows {
			result[c.ID] = c
		}
	}
	return result, nil
}
