package repository

import (
	"context"

	"github.com/hamdani2020/edagent-auth/internal/domain"
	"github.com/hamdani2020/edagent-auth/internal/observability"

	"gorm.io/gorm"
)

// UserRepository is the narrow slice of the user table the auth core
// consumes. The surrounding application owns the rest of the user model.
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	Exists(ctx context.Context, userID string) (bool, error)
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) Create(ctx context.Context, u *domain.User) error {
	err := r.db.WithContext(ctx).Create(u).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "user", "create", "success")
	return nil
}

func (r *GormUserRepository) Exists(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "exists", "error")
		return false, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "exists", "success")
	return count > 0, nil
}
