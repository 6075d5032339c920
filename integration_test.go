//go:build integration

package main_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/techbridge/service-tutoring/internal/application"
	"github.com/techbridge/service-tutoring/internal/domain/member"
	tutoringDomain "github.com/techbridge/service-tutoring/internal/domain/tutoring"
	"github.com/techbridge/service-tutoring/internal/events"
	"github.com/techbridge/service-tutoring/internal/platform/apperr"
	"github.com/techbridge/service-tutoring/internal/platform/kafka"
	"github.com/techbridge/service-tutoring/internal/platform/paging"
	"github.com/techbridge/service-tutoring/internal/repository"
	"github.com/techbridge/service-tutoring/internal/scheduler"
)

var now = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func requestAt(requester, receiver uuid.UUID, start time.Time) application.RequestTutoringRequest {
	return application.RequestTutoringRequest{
		RequesterID: requester,
		ReceiverID:  receiver,
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Location:    "Library, room 2",
	}
}

// TestTutoringLifecycle_AgainstPostgres drives a booking from request to
// acceptance and checks overlap rejection on both columns.
func TestTutoringLifecycle_AgainstPostgres(t *testing.T) {
	db, cleanupPG := setupPostgres(t)
	defer cleanupPG()
	rdb, cleanupRedis := setupRedis(t)
	defer cleanupRedis()

	stack := setupTutoringStack(t, db, rdb, nil, application.ConflictPolicyOptimistic, now)
	ctx := context.Background()

	alice := seedStudent(t, db, "Alice", "Compilers")
	carol := seedStudent(t, db, "Carol", "Databases")
	bob := seedTutor(t, db, "Bob", "Principal Engineer")

	slot := now.Add(24 * time.Hour)
	created, err := stack.Commands.RequestTutoring(ctx, alice, requestAt(alice, bob, slot))
	require.NoError(t, err)
	assert.Equal(t, "CREATED", created.Status)
	assert.Equal(t, int64(1), created.Version)

	// Only the receiver may accept.
	_, err = stack.Commands.AcceptTutoring(ctx, created.ID, alice)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	accepted, err := stack.Commands.AcceptTutoring(ctx, created.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, "ACCEPTED", accepted.Status)
	assert.Equal(t, int64(2), accepted.Version)

	// Bob is busy as receiver; Carol cannot book him for an overlapping window.
	_, err = stack.Commands.RequestTutoring(ctx, carol, requestAt(carol, bob, slot.Add(30*time.Minute)))
	assert.True(t, errors.Is(err, apperr.ErrConflictExists))

	// Back-to-back windows do not overlap.
	_, err = stack.Commands.RequestTutoring(ctx, carol, requestAt(carol, bob, slot.Add(time.Hour)))
	require.NoError(t, err)

	// A second accept is reported as already processed.
	_, err = stack.Commands.AcceptTutoring(ctx, created.ID, bob)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyProcessed))

	got, err := stack.Commands.GetTutoring(ctx, created.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, "ACCEPTED", got.Status)

	stats, err := stack.Commands.CountMine(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus["ACCEPTED"])
	assert.Equal(t, int64(1), stats.ByStatus["CREATED"])
	assert.Equal(t, int64(0), stats.ByStatus["COMPLETED"])
}

// TestStaleWrite_IsRejectedByVersion verifies the conditional update on version.
func TestStaleWrite_IsRejectedByVersion(t *testing.T) {
	db, cleanupPG := setupPostgres(t)
	defer cleanupPG()

	repo := repository.NewGormTutoringRepository(db)
	ctx := context.Background()
	alice := seedStudent(t, db, "Alice", "Compilers")
	bob := seedTutor(t, db, "Bob", "Principal Engineer")

	booking, err := tutoringDomain.NewTutoring(alice, bob, now.Add(time.Hour), now.Add(2*time.Hour), "", now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, booking))

	first, err := repo.FindByID(ctx, booking.ID())
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, booking.ID())
	require.NoError(t, err)

	require.NoError(t, first.Apply(tutoringDomain.EventAccept, now))
	first.IncrementVersion()
	require.NoError(t, repo.Update(ctx, first))

	require.NoError(t, second.Apply(tutoringDomain.EventReject, now))
	second.IncrementVersion()
	err = repo.Update(ctx, second)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	stored, err := repo.FindByID(ctx, booking.ID())
	require.NoError(t, err)
	assert.Equal(t, tutoringDomain.StatusAccepted, stored.Status())
	assert.Equal(t, int64(2), stored.Version())

	_, err = repo.FindByID(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

// TestSweep_AdvancesStatusesInBulk runs one scheduler tick against PostgreSQL
// under the Redis leader lock.
func TestSweep_AdvancesStatusesInBulk(t *testing.T) {
	db, cleanupPG := setupPostgres(t)
	defer cleanupPG()
	rdb, cleanupRedis := setupRedis(t)
	defer cleanupRedis()

	stack := setupTutoringStack(t, db, rdb, nil, application.ConflictPolicyOptimistic, now)
	ctx := context.Background()

	alice := seedStudent(t, db, "Alice", "Compilers")
	bob := seedTutor(t, db, "Bob", "Principal Engineer")
	dave := seedTutor(t, db, "Dave", "Data Scientist")

	slot := now.Add(time.Hour)
	starting, err := stack.Commands.RequestTutoring(ctx, alice, requestAt(alice, bob, slot))
	require.NoError(t, err)
	unanswered, err := stack.Commands.RequestTutoring(ctx, alice, requestAt(alice, dave, slot))
	require.NoError(t, err)
	_, err = stack.Commands.AcceptTutoring(ctx, starting.ID, bob)
	require.NoError(t, err)

	later, err := stack.Commands.RequestTutoring(ctx, alice, requestAt(alice, dave, slot.Add(48*time.Hour)))
	require.NoError(t, err)

	logger, _ := zap.NewDevelopment()
	lock := scheduler.NewRedisLock(rdb, scheduler.DefaultLockKey, 30*time.Second)
	sweep := scheduler.NewStatusScheduler(stack.Repo, lock, nil, stack.Clock, time.Minute, logger)

	stack.Clock.Set(slot)
	results, err := sweep.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assertStatus := func(id uuid.UUID, want tutoringDomain.Status) {
		t.Helper()
		stored, err := stack.Repo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, stored.Status())
	}
	assertStatus(starting.ID, tutoringDomain.StatusInProgress)
	assertStatus(unanswered.ID, tutoringDomain.StatusCanceled)
	assertStatus(later.ID, tutoringDomain.StatusCreated)

	stored, err := stack.Repo.FindByID(ctx, starting.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Version())

	// A repeated tick at the same instant changes nothing.
	results, err = sweep.Tick(ctx)
	require.NoError(t, err)
	for _, r := range results {
		assert.Zero(t, r.Affected, r.Rule.Event)
	}

	stack.Clock.Set(slot.Add(time.Hour))
	_, err = sweep.Tick(ctx)
	require.NoError(t, err)
	assertStatus(starting.ID, tutoringDomain.StatusCompleted)

	// The lock is released after each tick.
	exists, err := rdb.Exists(ctx, scheduler.DefaultLockKey).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

// TestListing_TwoPhaseJoin checks ordering, counterpart profiles and the
// phase-one total when a counterpart profile disappears.
func TestListing_TwoPhaseJoin(t *testing.T) {
	db, cleanupPG := setupPostgres(t)
	defer cleanupPG()
	rdb, cleanupRedis := setupRedis(t)
	defer cleanupRedis()

	stack := setupTutoringStack(t, db, rdb, nil, application.ConflictPolicyOptimistic, now)
	ctx := context.Background()

	alice := seedStudent(t, db, "Alice", "Compilers")
	bob := seedTutor(t, db, "Bob", "Principal Engineer")
	dave := seedTutor(t, db, "Dave", "Data Scientist")

	first, err := stack.Commands.RequestTutoring(ctx, alice, requestAt(alice, bob, now.Add(24*time.Hour)))
	require.NoError(t, err)
	second, err := stack.Commands.RequestTutoring(ctx, alice, requestAt(alice, dave, now.Add(48*time.Hour)))
	require.NoError(t, err)
	third, err := stack.Commands.RequestTutoring(ctx, alice, requestAt(alice, bob, now.Add(72*time.Hour)))
	require.NoError(t, err)

	page, err := stack.Queries.ListSent(ctx, alice, nil, paging.NewRequest(1, 2))
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, third.ID, page.Items[0].TutoringID)
	assert.Equal(t, second.ID, page.Items[1].TutoringID)
	assert.Equal(t, int64(3), page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, "Dave", page.Items[1].CounterpartName)
	assert.Equal(t, "Data Scientist", page.Items[1].CounterpartProfile.JobTitle)

	received, err := stack.Queries.ListReceived(ctx, bob, nil, paging.NewRequest(1, 10))
	require.NoError(t, err)
	require.Len(t, received.Items, 2)
	assert.Equal(t, alice, received.Items[0].CounterpartID)
	assert.Equal(t, "Compilers", received.Items[0].CounterpartProfile.InterestedField)
	assert.Equal(t, string(member.RoleStudent), received.Items[0].CounterpartProfile.Role)

	status := tutoringDomain.StatusCreated
	filtered, err := stack.Queries.ListReceived(ctx, dave, &status, paging.NewRequest(1, 10))
	require.NoError(t, err)
	require.Len(t, filtered.Items, 1)
	assert.Equal(t, second.ID, filtered.Items[0].TutoringID)

	// Dave's tutor profile is soft-deleted: his booking drops out of the
	// page but still counts toward the total.
	require.NoError(t, db.Model(&repository.TutorModel{}).
		Where("member_id = ?", dave).
		Update("deleted", true).Error)

	page, err = stack.Queries.ListSent(ctx, alice, nil, paging.NewRequest(1, 10))
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, third.ID, page.Items[0].TutoringID)
	assert.Equal(t, first.ID, page.Items[1].TutoringID)
	assert.Equal(t, int64(3), page.TotalElements)
}

// TestSerializedPolicy_ConcurrentAccepts lets five tutors accept overlapping
// requests from the same student at once; exactly one may win.
func TestSerializedPolicy_ConcurrentAccepts(t *testing.T) {
	db, cleanupPG := setupPostgres(t)
	defer cleanupPG()
	rdb, cleanupRedis := setupRedis(t)
	defer cleanupRedis()

	stack := setupTutoringStack(t, db, rdb, nil, application.ConflictPolicySerialized, now)
	ctx := context.Background()

	alice := seedStudent(t, db, "Alice", "Compilers")
	slot := now.Add(24 * time.Hour)

	type pending struct {
		id    uuid.UUID
		tutor uuid.UUID
	}
	var requests []pending
	for i := 0; i < 5; i++ {
		tutor := seedTutor(t, db, "Tutor", "Engineer")
		dto, err := stack.Commands.RequestTutoring(ctx, alice, requestAt(alice, tutor, slot.Add(time.Duration(i)*10*time.Minute)))
		require.NoError(t, err)
		requests = append(requests, pending{id: dto.ID, tutor: tutor})
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		accepted  int
		conflicts int
	)
	for _, p := range requests {
		wg.Add(1)
		go func(p pending) {
			defer wg.Done()
			_, err := stack.Commands.AcceptTutoring(ctx, p.id, p.tutor)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, apperr.ErrConflictExists):
				conflicts++
			default:
				t.Errorf("unexpected accept error: %v", err)
			}
		}(p)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 4, conflicts)

	stats, err := stack.Commands.CountMine(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByStatus["ACCEPTED"])
	assert.Equal(t, int64(4), stats.ByStatus["CREATED"])
}

// TestRedisLock_SingleHolder verifies the sweep lock admits one holder and
// ignores releases by non-holders.
func TestRedisLock_SingleHolder(t *testing.T) {
	rdb, cleanupRedis := setupRedis(t)
	defer cleanupRedis()
	ctx := context.Background()

	first := scheduler.NewRedisLock(rdb, scheduler.DefaultLockKey, 10*time.Second)
	second := scheduler.NewRedisLock(rdb, scheduler.DefaultLockKey, 10*time.Second)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "a non-holder must not release the lock")

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Release(ctx))
}

// TestRequestTutoring_PublishesEvent verifies the command path reaches Kafka.
func TestRequestTutoring_PublishesEvent(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	logger, _ := zap.NewDevelopment()
	producer := kafka.NewProducer(infra.KafkaBrokers, logger)
	defer func() { _ = producer.Close() }()

	stack := setupTutoringStack(t, infra.DB, infra.Redis, producer, application.ConflictPolicyOptimistic, now)
	ctx := context.Background()

	alice := seedStudent(t, infra.DB, "Alice", "Compilers")
	bob := seedTutor(t, infra.DB, "Bob", "Principal Engineer")

	created, err := stack.Commands.RequestTutoring(ctx, alice, requestAt(alice, bob, now.Add(24*time.Hour)))
	require.NoError(t, err)

	ce := consumeOneEvent(t, infra.KafkaBrokers, events.TopicTutoringEvents, events.TutoringRequested, 30*time.Second)
	assert.Equal(t, events.Source, ce.Source)
	assert.Equal(t, created.ID.String(), ce.Subject)

	var evt events.TutoringRequestedEvent
	require.NoError(t, ce.ParseData(&evt))
	assert.Equal(t, created.ID, evt.TutoringID)
	assert.Equal(t, bob, evt.ReceiverID)
}

// TestMemberRoleChanged_EvictsCachedRole verifies that a member.role_changed
// event on Kafka drops the cached role so the next lookup reads PostgreSQL.
func TestMemberRoleChanged_EvictsCachedRole(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	stack := setupTutoringStack(t, infra.DB, infra.Redis, nil, application.ConflictPolicyOptimistic, now)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	memberID := seedStudent(t, infra.DB, "Erin", "Networks")

	role, err := stack.Members.RoleOf(ctx, memberID)
	require.NoError(t, err)
	assert.Equal(t, member.RoleStudent, role)

	// The member service switches the role; the cached value is now stale.
	require.NoError(t, infra.DB.Model(&repository.MemberModel{}).
		Where("id = ?", memberID).
		Update("role", string(member.RoleTutor)).Error)
	role, err = stack.Members.RoleOf(ctx, memberID)
	require.NoError(t, err)
	assert.Equal(t, member.RoleStudent, role)

	logger, _ := zap.NewDevelopment()
	consumer := events.NewMemberEventConsumer(infra.KafkaBrokers, "tutoring-test-"+uuid.NewString()[:8], stack.Members, logger)
	defer func() { _ = consumer.Close() }()
	go func() { _ = consumer.Start(ctx) }()
	time.Sleep(3 * time.Second) // Wait for consumer group join.

	publishTestEvent(t, infra.KafkaBrokers, events.TopicMemberEvents, "service-member",
		events.MemberRoleChanged, memberID.String(),
		events.MemberEvent{MemberID: memberID, Role: string(member.RoleTutor), OccurredAt: time.Now().UTC()})

	require.Eventually(t, func() bool {
		role, err := stack.Members.RoleOf(ctx, memberID)
		return err == nil && role == member.RoleTutor
	}, 30*time.Second, 500*time.Millisecond, "cached role was not evicted")
}
