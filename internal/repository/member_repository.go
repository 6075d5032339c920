package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/techbridge/service-tutoring/internal/domain/member"
	"github.com/techbridge/service-tutoring/internal/platform/apperr"
)

// MemberModel is the read model of the members table owned by the member service.
type MemberModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null;size:100"`
	Role      string    `gorm:"not null;size:20"`
	Deleted   bool      `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for the GORM model.
func (MemberModel) TableName() string {
	return "members"
}

// StudentModel is the student profile of a member.
type StudentModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	MemberID        uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	InterestedField string    `gorm:"size:100"`
	Deleted         bool      `gorm:"not null;default:false"`
}

// TableName returns the table name for the GORM model.
func (StudentModel) TableName() string {
	return "students"
}

// TutorModel is the tutor profile of a member.
type TutorModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	MemberID     uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	JobTitle     string    `gorm:"size:100"`
	Introduction string    `gorm:"type:text"`
	Deleted      bool      `gorm:"not null;default:false"`
}

// TableName returns the table name for the GORM model.
func (TutorModel) TableName() string {
	return "tutors"
}

// GormMemberDirectory implements member.Directory against the members table.
type GormMemberDirectory struct {
	db *gorm.DB
}

// NewGormMemberDirectory creates a new GormMemberDirectory.
func NewGormMemberDirectory(db *gorm.DB) *GormMemberDirectory {
	return &GormMemberDirectory{db: db}
}

// Exists reports whether a non-deleted member has the given ID.
func (d *GormMemberDirectory) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&MemberModel{}).
		Where("id = ? AND deleted = false", id).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check member existence: %w", err)
	}
	return count > 0, nil
}

// RoleOf returns the role of a non-deleted member.
func (d *GormMemberDirectory) RoleOf(ctx context.Context, id uuid.UUID) (member.Role, error) {
	var model MemberModel
	if err := d.db.WithContext(ctx).
		Select("id", "role").
		Where("id = ? AND deleted = false", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperr.NewNotFoundError("Member", id.String())
		}
		return "", fmt.Errorf("failed to find member role: %w", err)
	}
	return member.ParseRole(model.Role)
}

const memberRoleKeyPrefix = "tutoring:member-role:"

// CachedMemberDirectory caches member roles in Redis in front of another
// Directory. Existence checks are never cached.
type CachedMemberDirectory struct {
	next   member.Directory
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedMemberDirectory creates a new CachedMemberDirectory.
func NewCachedMemberDirectory(next member.Directory, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedMemberDirectory {
	return &CachedMemberDirectory{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

// Exists delegates to the underlying directory.
func (c *CachedMemberDirectory) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return c.next.Exists(ctx, id)
}

// RoleOf returns the cached role, falling back to the underlying directory.
// Redis failures degrade to an uncached lookup.
func (c *CachedMemberDirectory) RoleOf(ctx context.Context, id uuid.UUID) (member.Role, error) {
	key := memberRoleKey(id)

	cached, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if role, parseErr := member.ParseRole(cached); parseErr == nil {
			return role, nil
		}
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("member role cache read failed", zap.String("member_id", id.String()), zap.Error(err))
	}

	role, err := c.next.RoleOf(ctx, id)
	if err != nil {
		return "", err
	}

	if err := c.rdb.Set(ctx, key, string(role), c.ttl).Err(); err != nil {
		c.logger.Warn("member role cache write failed", zap.String("member_id", id.String()), zap.Error(err))
	}
	return role, nil
}

// Evict drops the cached role of a member.
func (c *CachedMemberDirectory) Evict(ctx context.Context, id uuid.UUID) error {
	if err := c.rdb.Del(ctx, memberRoleKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to evict member role: %w", err)
	}
	return nil
}

func memberRoleKey(id uuid.UUID) string {
	return memberRoleKeyPrefix + id.String()
}
