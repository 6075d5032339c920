package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/techbridge/service-tutoring/internal/domain/member"
	tutoringDomain "github.com/techbridge/service-tutoring/internal/domain/tutoring"
	"github.com/techbridge/service-tutoring/internal/platform/apperr"
)

// TutoringModel is the GORM model for the tutorings table.
type TutoringModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	RequesterID uuid.UUID `gorm:"type:uuid;index;not null"`
	ReceiverID  uuid.UUID `gorm:"type:uuid;index;not null"`
	StartTime   time.Time `gorm:"not null;index"`
	EndTime     time.Time `gorm:"not null;index"`
	Location    string    `gorm:"size:255"`
	Status      string    `gorm:"not null;size:20;index"`
	Version     int64     `gorm:"not null;default:1"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (TutoringModel) TableName() string {
	return "tutorings"
}

// GormTutoringRepository is the GORM-based implementation of tutoring.Repository
// and tutoring.Sweeper.
type GormTutoringRepository struct {
	db *gorm.DB
}

// NewGormTutoringRepository creates a new GormTutoringRepository.
func NewGormTutoringRepository(db *gorm.DB) *GormTutoringRepository {
	return &GormTutoringRepository{db: db}
}

// FindByID retrieves a tutoring by its unique identifier.
func (r *GormTutoringRepository) FindByID(ctx context.Context, id uuid.UUID) (*tutoringDomain.Tutoring, error) {
	var model TutoringModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewNotFoundError("Tutoring", id.String())
		}
		return nil, fmt.Errorf("failed to find tutoring by ID: %w", err)
	}
	return toDomainTutoring(&model)
}

// HasActiveOverlap reports whether partyID holds an active tutoring that
// overlaps [start, end).
func (r *GormTutoringRepository) HasActiveOverlap(ctx context.Context, partyID uuid.UUID, start, end time.Time) (bool, error) {
	var exists bool
	err := r.db.WithContext(ctx).Raw(`
		SELECT EXISTS (
			SELECT 1 FROM tutorings
			WHERE (requester_id = ? OR receiver_id = ?)
			AND status IN ?
			AND start_time < ?
			AND end_time > ?
		)`,
		partyID, partyID, statusStrings(tutoringDomain.ActiveStatuses()), end, start,
	).Scan(&exists).Error
	if err != nil {
		return false, fmt.Errorf("failed to check overlapping tutorings: %w", err)
	}
	return exists, nil
}

// Save persists a new tutoring.
func (r *GormTutoringRepository) Save(ctx context.Context, t *tutoringDomain.Tutoring) error {
	model := toTutoringModel(t)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save tutoring: %w", err)
	}
	return nil
}

// Update persists a status change with optimistic locking.
func (r *GormTutoringRepository) Update(ctx context.Context, t *tutoringDomain.Tutoring) error {
	// IncrementVersion was called, so the stored row must still hold the previous version.
	expectedVersion := t.Version() - 1
	result := r.db.WithContext(ctx).
		Model(&TutoringModel{}).
		Where("id = ? AND version = ?", t.ID(), expectedVersion).
		Updates(map[string]interface{}{
			"status":     string(t.Status()),
			"version":    t.Version(),
			"updated_at": t.UpdatedAt(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update tutoring: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NewConflictError("tutoring was modified by another transaction")
	}
	return nil
}

// FindPageIDs returns one page of tutoring IDs for the member's side, newest
// start time first, together with the total number of matches.
func (r *GormTutoringRepository) FindPageIDs(ctx context.Context, q tutoringDomain.ListQuery) ([]uuid.UUID, int64, error) {
	column, err := partyColumn(q.Side)
	if err != nil {
		return nil, 0, err
	}

	scope := func() *gorm.DB {
		tx := r.db.WithContext(ctx).Model(&TutoringModel{}).Where(column+" = ?", q.MemberID)
		if q.Status != nil {
			tx = tx.Where("status = ?", string(*q.Status))
		}
		return tx
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count tutorings: %w", err)
	}
	if total == 0 {
		return []uuid.UUID{}, 0, nil
	}

	var ids []uuid.UUID
	if err := scope().
		Order("start_time DESC").
		Order("id DESC").
		Offset(q.Page.Offset()).
		Limit(q.Page.Size).
		Pluck("id", &ids).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list tutoring IDs: %w", err)
	}
	return ids, total, nil
}

type viewRow struct {
	TutoringModel   `gorm:"embedded"`
	CounterpartID   uuid.UUID
	CounterpartName string
	InterestedField string
	JobTitle        string
}

// FindViewsByIDs loads the tutorings with the given IDs, each joined with the
// counterpart member and that member's student or tutor profile. No ordering
// or pagination is applied.
func (r *GormTutoringRepository) FindViewsByIDs(ctx context.Context, viewerSide tutoringDomain.Side, profileRole member.Role, ids []uuid.UUID) ([]tutoringDomain.View, error) {
	if len(ids) == 0 {
		return []tutoringDomain.View{}, nil
	}

	counterpartColumn, err := partyColumn(opposite(viewerSide))
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).
		Table("tutorings AS t").
		Joins("JOIN members AS m ON m.id = t." + counterpartColumn + " AND m.deleted = false")

	switch profileRole {
	case member.RoleStudent:
		query = query.
			Select("t.*, m.id AS counterpart_id, m.name AS counterpart_name, p.interested_field AS interested_field, '' AS job_title").
			Joins("JOIN students AS p ON p.member_id = m.id AND p.deleted = false")
	case member.RoleTutor:
		query = query.
			Select("t.*, m.id AS counterpart_id, m.name AS counterpart_name, '' AS interested_field, p.job_title AS job_title").
			Joins("JOIN tutors AS p ON p.member_id = m.id AND p.deleted = false")
	default:
		return nil, fmt.Errorf("unsupported profile role: %s", profileRole)
	}

	var rows []viewRow
	if err := query.Where("t.id IN ?", ids).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load tutorings with counterparts: %w", err)
	}

	views := make([]tutoringDomain.View, 0, len(rows))
	for i := range rows {
		t, err := toDomainTutoring(&rows[i].TutoringModel)
		if err != nil {
			return nil, err
		}
		views = append(views, tutoringDomain.View{
			Tutoring: t,
			Counterpart: tutoringDomain.Counterpart{
				MemberID:        rows[i].CounterpartID,
				Name:            rows[i].CounterpartName,
				ProfileRole:     profileRole,
				InterestedField: rows[i].InterestedField,
				JobTitle:        rows[i].JobTitle,
			},
		})
	}
	return views, nil
}

// CountByStatusForMember returns the member's tutoring counts grouped by status.
func (r *GormTutoringRepository) CountByStatusForMember(ctx context.Context, memberID uuid.UUID) (map[tutoringDomain.Status]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&TutoringModel{}).
		Select("status, count(*) as count").
		Where("requester_id = ? OR receiver_id = ?", memberID, memberID).
		Group("status").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}

	counts := make(map[tutoringDomain.Status]int64, len(results))
	for _, sc := range results {
		counts[tutoringDomain.Status(sc.Status)] = sc.Count
	}
	return counts, nil
}

// WithPartyLocks runs fn in a transaction holding a transaction-scoped
// advisory lock per party. Locks are taken in sorted order so two requests
// for the same pair cannot deadlock.
func (r *GormTutoringRepository) WithPartyLocks(ctx context.Context, partyIDs []uuid.UUID, fn func(tx tutoringDomain.Repository) error) error {
	keys := make([]string, 0, len(partyIDs))
	seen := make(map[uuid.UUID]bool, len(partyIDs))
	for _, id := range partyIDs {
		if !seen[id] {
			seen[id] = true
			keys = append(keys, id.String())
		}
	}
	sort.Strings(keys)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range keys {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", key).Error; err != nil {
				return fmt.Errorf("failed to lock party %s: %w", key, err)
			}
		}
		return fn(&GormTutoringRepository{db: tx})
	})
}

// ApplySweepRule performs one conditional bulk UPDATE. Rows that a
// concurrent command already moved out of rule.From no longer match.
func (r *GormTutoringRepository) ApplySweepRule(ctx context.Context, rule tutoringDomain.SweepRule, now time.Time) (int64, error) {
	var boundColumn string
	switch rule.Bound {
	case tutoringDomain.BoundStart:
		boundColumn = "start_time"
	case tutoringDomain.BoundEnd:
		boundColumn = "end_time"
	default:
		return 0, fmt.Errorf("unsupported sweep bound: %s", rule.Bound)
	}

	result := r.db.WithContext(ctx).
		Model(&TutoringModel{}).
		Where("status = ?", string(rule.From)).
		Where(boundColumn+" <= ?", now).
		Updates(map[string]interface{}{
			"status":     string(rule.To),
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to apply sweep %s: %w", rule.Event, result.Error)
	}
	return result.RowsAffected, nil
}

// --- Conversion Helpers ---

func partyColumn(side tutoringDomain.Side) (string, error) {
	switch side {
	case tutoringDomain.SideRequester:
		return "requester_id", nil
	case tutoringDomain.SideReceiver:
		return "receiver_id", nil
	default:
		return "", fmt.Errorf("unsupported side: %s", side)
	}
}

func opposite(side tutoringDomain.Side) tutoringDomain.Side {
	if side == tutoringDomain.SideRequester {
		return tutoringDomain.SideReceiver
	}
	return tutoringDomain.SideRequester
}

func statusStrings(statuses []tutoringDomain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func toTutoringModel(t *tutoringDomain.Tutoring) *TutoringModel {
	return &TutoringModel{
		ID:          t.ID(),
		RequesterID: t.RequesterID(),
		ReceiverID:  t.ReceiverID(),
		StartTime:   t.StartTime(),
		EndTime:     t.EndTime(),
		Location:    t.Location(),
		Status:      string(t.Status()),
		Version:     t.Version(),
		CreatedAt:   t.CreatedAt(),
		UpdatedAt:   t.UpdatedAt(),
	}
}

func toDomainTutoring(m *TutoringModel) (*tutoringDomain.Tutoring, error) {
	status, err := tutoringDomain.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}

	return tutoringDomain.Reconstruct(
		m.ID,
		m.RequesterID,
		m.ReceiverID,
		m.StartTime.UTC(),
		m.EndTime.UTC(),
		m.Location,
		status,
		m.Version,
		m.CreatedAt.UTC(),
		m.UpdatedAt.UTC(),
	), nil
}
