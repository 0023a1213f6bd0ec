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
	ErrSessionNotFound    = errors.New("session not found")
	ErrDuplicateSessionID = errors.New("duplicate session id")
)

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	FindByID(ctx context.Context, sessionID string) (*domain.Session, error)
	// Expire flips an active session to expired. Terminal rows are left
	// untouched so the status machine stays monotonic.
	Expire(ctx context.Context, sessionID string) (bool, error)
	// Revoke is a terminal override: it applies regardless of the current
	// status and reports whether the row exists.
	Revoke(ctx context.Context, sessionID string) (bool, error)
	TouchLastAccessed(ctx context.Context, sessionID string, at time.Time) error
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if err != nil {
		if isDuplicateKey(err) {
			observability.RecordRepositoryOperation(ctx, "session", "create", "duplicate")
			return ErrDuplicateSessionID
		}
		observability.RecordRepositoryOperation(ctx, "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_by_id", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_by_id", "success")
	return &s, nil
}

func (r *GormSessionRepository) Expire(ctx context.Context, sessionID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("session_id = ? AND status = ?", sessionID, domain.SessionActive).
		Update("status", domain.SessionExpired)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "expire", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "expire", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) Revoke(ctx context.Context, sessionID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("session_id = ?", sessionID).
		Update("status", domain.SessionRevoked)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "revoke", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "revoke", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) TouchLastAccessed(ctx context.Context, sessionID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("session_id = ?", sessionID).
		Update("last_accessed", at).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "touch_last_accessed", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "touch_last_accessed", "success")
	return nil
}

func (r *GormSessionRepository) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("expires_at <= ? AND status = ?", now, domain.SessionActive).
		Update("status", domain.SessionExpired)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "mark_expired", "error")
		return 0, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "mark_expired", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ? AND status IN ?", cutoff, []domain.SessionStatus{domain.SessionExpired, domain.SessionRevoked}).
		Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "delete_terminal_before", "error")
		return 0, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "delete_terminal_before", "success")
	return res.RowsAffected, nil
}
