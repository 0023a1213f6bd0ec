package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hamdani2020/edagent-auth/internal/domain"
	"github.com/hamdani2020/edagent-auth/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrAPIKeyNotFound = errors.New("api key not found")
	// ErrDuplicateKeyHash means two distinct secrets produced the same
	// hash, or the same secret was issued twice. Internal error, never
	// surfaced to the caller as such.
	ErrDuplicateKeyHash = errors.New("duplicate api key hash")
)

type APIKeyRepository interface {
	Create(ctx context.Context, k *domain.APIKey) error
	// FindByHash is the only lookup path for validation; plaintext
	// secrets are never stored or searchable.
	FindByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	// IncrementUsage bumps usage_count with a storage-level atomic add so
	// concurrent validations of the same key never lose counts.
	IncrementUsage(ctx context.Context, keyID string, at time.Time) error
	Deactivate(ctx context.Context, keyID string) (bool, error)
}

type GormAPIKeyRepository struct{ db *gorm.DB }

func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository { return &GormAPIKeyRepository{db: db} }

func (r *GormAPIKeyRepository) Create(ctx context.Context, k *domain.APIKey) error {
	err := r.db.WithContext(ctx).Create(k).Error
	if err != nil {
		if isDuplicateKey(err) {
			observability.RecordRepositoryOperation(ctx, "api_key", "create", "duplicate")
			return ErrDuplicateKeyHash
		}
		observability.RecordRepositoryOperation(ctx, "api_key", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "api_key", "create", "success")
	return nil
}

func (r *GormAPIKeyRepository) FindByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	var k domain.APIKey
	err := r.db.WithContext(ctx).Where("key_hash = ?", keyHash).First(&k).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "api_key", "find_by_hash", "not_found")
			return nil, ErrAPIKeyNotFound
		}
		observability.RecordRepositoryOperation(ctx, "api_key", "find_by_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "api_key", "find_by_hash", "success")
	return &k, nil
}

func (r *GormAPIKeyRepository) IncrementUsage(ctx context.Context, keyID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.APIKey{}).
		Where("key_id = ?", keyID).
		Updates(map[string]any{
			"usage_count": gorm.Expr("usage_count + ?", 1),
			"last_used":   at,
		}).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "api_key", "increment_usage", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "api_key", "increment_usage", "success")
	return nil
}

func (r *GormAPIKeyRepository) Deactivate(ctx context.Context, keyID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.APIKey{}).
		Where("key_id = ?", keyID).
		Update("is_active", false)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "api_key", "deactivate", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "api_key", "deactivate", "success")
	return res.RowsAffected > 0, nil
}
