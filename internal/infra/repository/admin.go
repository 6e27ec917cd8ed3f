package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tadcs/certportal/internal/domain"
	"github.com/tadcs/certportal/internal/infra/database/models"
)

type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (domain.Admin, error) {
	var model models.Admin
	err := r.db.WithContext(ctx).Where("email = ?", email).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Admin{}, domain.NotFoundError{Resource: "admin"}
		}
		return domain.Admin{}, storageError("find admin", err)
	}
	return domain.Admin{
		ID:           model.ID,
		Email:        model.Email,
		Name:         model.Name,
		Role:         model.Role,
		PasswordHash: model.PasswordHash,
	}, nil
}

// Upsert writes the admin keyed by id. An existing row takes the given
// email, name, role and password hash.
func (r *AdminRepository) Upsert(ctx context.Context, admin domain.Admin) error {
	model := models.Admin{
		ID:           admin.ID,
		Email:        admin.Email,
		Name:         admin.Name,
		Role:         admin.Role,
		PasswordHash: admin.PasswordHash,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "role", "password_hash"}),
	}).Create(&model).Error
	if err != nil {
		return storageError("upsert admin", err)
	}
	return nil
}
