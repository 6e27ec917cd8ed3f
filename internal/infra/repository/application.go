package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/tadcs/certportal/internal/domain"
	"github.com/tadcs/certportal/internal/infra/database/models"
	"github.com/tadcs/certportal/internal/usecase"
)

type ApplicationRepository struct {
	db *gorm.DB
}

func NewApplicationRepository(db *gorm.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

func (r *ApplicationRepository) Create(ctx context.Context, app domain.Application) (domain.Application, error) {
	model := toModel(app)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Application{}, storageError("create", err)
	}
	return fromModel(model), nil
}

func (r *ApplicationRepository) Get(ctx context.Context, id string) (domain.Application, error) {
	var model models.Application
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Application{}, domain.NotFoundError{Resource: "application"}
		}
		return domain.Application{}, storageError("get", err)
	}
	return fromModel(model), nil
}

func (r *ApplicationRepository) List(ctx context.Context, filter domain.ApplicationFilter) ([]domain.Application, error) {
	query := r.db.WithContext(ctx).Model(&models.Application{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.CertificateID != "" {
		query = query.Where("certificate_id = ?", filter.CertificateID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.Application
	if err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, storageError("list", err)
	}

	apps := make([]domain.Application, len(rows))
	for i, row := range rows {
		apps[i] = fromModel(row)
	}
	return apps, nil
}

// Decide writes the lifecycle fields in one statement guarded on the
// record still being pending.
func (r *ApplicationRepository) Decide(ctx context.Context, id string, decision usecase.Decision) (bool, error) {
	updates := map[string]any{
		"status":         string(decision.Status),
		"certificate_id": decision.CertificateID,
		"approved_at":    decision.ApprovedAt,
		"approved_by":    decision.ApprovedBy,
		"updated_at":     decision.UpdatedAt,
	}
	result := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("id = ? AND status = ?", id, string(domain.StatusPending)).
		Updates(updates)
	if result.Error != nil {
		return false, storageError("decide", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *ApplicationRepository) Amend(ctx context.Context, id string, patch domain.FieldPatch, updatedAt time.Time) error {
	updates := patch.Columns()
	if len(updates) == 0 {
		return domain.ValidationError{Message: "patch has no fields"}
	}
	updates["updated_at"] = updatedAt

	result := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return storageError("amend", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NotFoundError{Resource: "application"}
	}
	return nil
}

func (r *ApplicationRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Application{})
	if result.Error != nil {
		return storageError("delete", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NotFoundError{Resource: "application"}
	}
	return nil
}

func (r *ApplicationRepository) CertificateExists(ctx context.Context, certificateID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("certificate_id = ?", certificateID).
		Count(&count).Error
	if err != nil {
		return false, storageError("certificate exists", err)
	}
	return count > 0, nil
}

func (r *ApplicationRepository) Count(ctx context.Context) (domain.Stats, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return domain.Stats{}, storageError("count", err)
	}

	var stats domain.Stats
	for _, row := range rows {
		stats.Total += row.Count
		switch domain.Status(row.Status) {
		case domain.StatusPending:
			stats.Pending = row.Count
		case domain.StatusApproved:
			stats.Approved = row.Count
		case domain.StatusRejected:
			stats.Rejected = row.Count
		}
	}
	return stats, nil
}

func storageError(op string, err error) error {
	return domain.StorageError{Op: op, Err: errors.WithStack(err)}
}

func toModel(app domain.Application) models.Application {
	return models.Application{
		ID:                 app.ID,
		UserID:             app.UserID,
		Name:               app.Name,
		Email:              app.Email,
		CollegeName:        app.CollegeName,
		Field:              app.Field,
		Duration:           app.Duration,
		StartDate:          app.StartDate,
		EndDate:            app.EndDate,
		ProjectTitle:       app.ProjectTitle,
		ProjectDescription: app.ProjectDescription,
		ProjectStatus:      string(app.ProjectStatus),
		MentorFeedback:     app.MentorFeedback,
		AdditionalNotes:    app.AdditionalNotes,
		Status:             string(app.Status),
		CertificateID:      app.CertificateID,
		ApprovedAt:         app.ApprovedAt,
		ApprovedBy:         app.ApprovedBy,
		CreatedAt:          app.CreatedAt,
		UpdatedAt:          app.UpdatedAt,
	}
}

func fromModel(m models.Application) domain.Application {
	return domain.Application{
		ID:     m.ID,
		UserID: m.UserID,
		ApplicantFields: domain.ApplicantFields{
			Name:               m.Name,
			Email:              m.Email,
			CollegeName:        m.CollegeName,
			Field:              m.Field,
			Duration:           m.Duration,
			StartDate:          m.StartDate,
			EndDate:            m.EndDate,
			ProjectTitle:       m.ProjectTitle,
			ProjectDescription: m.ProjectDescription,
			ProjectStatus:      domain.ProjectStatus(m.ProjectStatus),
			MentorFeedback:     m.MentorFeedback,
			AdditionalNotes:    m.AdditionalNotes,
		},
		Status:        domain.Status(m.Status),
		CertificateID: m.CertificateID,
		ApprovedAt:    m.ApprovedAt,
		ApprovedBy:    m.ApprovedBy,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
