package repository

import (
	"context"
	"errors"
	"strconv"

	"rentalops/src/apperrors"
	"rentalops/src/model"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PropertySearchOptions narrows List. Zero values are ignored.
type PropertySearchOptions struct {
	OwnerID uint
	City    string
	Limit   int
}

// PropertyRepository stores properties and reports storage failures as
// typed database errors.
type PropertyRepository struct {
	db *gorm.DB
}

func NewPropertyRepository(db *gorm.DB) *PropertyRepository {
	logger.WithField("component", "PropertyRepository").
		Debug("Creating new PropertyRepository")
	return &PropertyRepository{db: db}
}

// List returns properties ordered by id.
func (r *PropertyRepository) List(ctx context.Context, opts PropertySearchOptions) ([]model.Property, error) {
	query := r.db.WithContext(ctx).Model(&model.Property{})
	if opts.OwnerID != 0 {
		query = query.Where("owner_id = ?", opts.OwnerID)
	}
	if opts.City != "" {
		query = query.Where("city = ?", opts.City)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var properties []model.Property
	if err := query.Order("id").Find(&properties).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PropertyRepository",
			"op":   "List",
		}).WithError(err).Error("Failed to list properties")
		return nil, storageError(err, "SELECT * FROM properties")
	}
	return properties, nil
}

// Get fetches one property. A missing row is a PROPERTY_NOT_FOUND error.
func (r *PropertyRepository) Get(ctx context.Context, id uint) (*model.Property, error) {
	var p model.Property
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.PropertyNotFound(strconv.FormatUint(uint64(id), 10))
	}
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PropertyRepository",
			"op":          "Get",
			"property_id": id,
		}).WithError(err).Error("Failed to load property")
		return nil, storageError(err, "SELECT * FROM properties WHERE id = ?")
	}
	return &p, nil
}

// Create inserts p and fills in its id and timestamps.
func (r *PropertyRepository) Create(ctx context.Context, p *model.Property) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "PropertyRepository",
			"op":       "Create",
			"owner_id": p.OwnerID,
		}).WithError(err).Error("Failed to create property")
		return storageError(err, "INSERT INTO properties")
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PropertyRepository",
		"op":          "Create",
		"property_id": p.ID,
	}).Info("Property created successfully")
	return nil
}

// storageError maps gorm's translated errors onto the taxonomy and leaves
// raw driver errors to message classification.
func storageError(err error, query string) *apperrors.AppError {
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.NewDatabaseError("", err, query, false, apperrors.WithCode(apperrors.CodeDuplicateEntry))
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return apperrors.NewDatabaseError("", err, query, false, apperrors.WithCode(apperrors.CodeForeignKey))
	default:
		return apperrors.DatabaseFromLowLevel(err, query)
	}
}
