package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/techbridge/service-tutoring/internal/domain/member"
	tutoringDomain "github.com/techbridge/service-tutoring/internal/domain/tutoring"
	"github.com/techbridge/service-tutoring/internal/platform/apperr"
	"github.com/techbridge/service-tutoring/internal/platform/kafka"
)

// memRepo is an in-memory tutoring.Repository. It stores snapshots so the
// service cannot mutate stored rows through a pointer.
type memRepo struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*tutoringDomain.Tutoring
	directory *memDirectory

	// beforeUpdate runs after the caller read the row and before the
	// conditional write, to simulate a concurrent writer.
	beforeUpdate func()

	lockedParties [][]uuid.UUID
	// hideOnHydrate drops rows from phase two as if deleted in between.
	hideOnHydrate map[uuid.UUID]bool
}

func newMemRepo(directory *memDirectory) *memRepo {
	return &memRepo{
		rows:          make(map[uuid.UUID]*tutoringDomain.Tutoring),
		directory:     directory,
		hideOnHydrate: make(map[uuid.UUID]bool),
	}
}

func snapshot(t *tutoringDomain.Tutoring) *tutoringDomain.Tutoring {
	return tutoringDomain.Reconstruct(
		t.ID(), t.RequesterID(), t.ReceiverID(), t.StartTime(), t.EndTime(),
		t.Location(), t.Status(), t.Version(), t.CreatedAt(), t.UpdatedAt(),
	)
}

// put stores a row directly, bypassing the service.
func (r *memRepo) put(id, requester, receiver uuid.UUID, start, end time.Time, status tutoringDomain.Status) *tutoringDomain.Tutoring {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := tutoringDomain.Reconstruct(id, requester, receiver, start, end, "", status, 1, start, start)
	r.rows[id] = t
	return snapshot(t)
}

// setStatus changes a stored row the way a concurrent writer would.
func (r *memRepo) setStatus(id uuid.UUID, status tutoringDomain.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.rows[id]
	r.rows[id] = tutoringDomain.Reconstruct(
		cur.ID(), cur.RequesterID(), cur.ReceiverID(), cur.StartTime(), cur.EndTime(),
		cur.Location(), status, cur.Version()+1, cur.CreatedAt(), cur.UpdatedAt(),
	)
}

func (r *memRepo) get(id uuid.UUID) *tutoringDomain.Tutoring {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.rows[id]; ok {
		return snapshot(t)
	}
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id uuid.UUID) (*tutoringDomain.Tutoring, error) {
	if t := r.get(id); t != nil {
		return t, nil
	}
	return nil, apperr.NewNotFoundError("Tutoring", id.String())
}

func (r *memRepo) HasActiveOverlap(_ context.Context, partyID uuid.UUID, start, end time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.rows {
		if !t.Involves(partyID) || !t.Status().IsActive() {
			continue
		}
		if tutoringDomain.Overlaps(t.StartTime(), t.EndTime(), start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) Save(_ context.Context, t *tutoringDomain.Tutoring) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[t.ID()] = snapshot(t)
	return nil
}

func (r *memRepo) Update(_ context.Context, t *tutoringDomain.Tutoring) error {
	if r.beforeUpdate != nil {
		hook := r.beforeUpdate
		r.beforeUpdate = nil
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[t.ID()]
	if !ok || cur.Version() != t.Version()-1 {
		return apperr.NewConflictError("tutoring was modified by another transaction")
	}
	r.rows[t.ID()] = snapshot(t)
	return nil
}

func (r *memRepo) FindPageIDs(_ context.Context, q tutoringDomain.ListQuery) ([]uuid.UUID, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*tutoringDomain.Tutoring
	for _, t := range r.rows {
		party := t.RequesterID()
		if q.Side == tutoringDomain.SideReceiver {
			party = t.ReceiverID()
		}
		if party != q.MemberID {
			continue
		}
		if q.Status != nil && t.Status() != *q.Status {
			continue
		}
		matched = append(matched, t)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].StartTime().Equal(matched[j].StartTime()) {
			return matched[i].StartTime().After(matched[j].StartTime())
		}
		return matched[i].ID().String() > matched[j].ID().String()
	})

	total := int64(len(matched))
	from := q.Page.Offset()
	if from > len(matched) {
		from = len(matched)
	}
	to := from + q.Page.Size
	if to > len(matched) {
		to = len(matched)
	}

	ids := make([]uuid.UUID, 0, to-from)
	for _, t := range matched[from:to] {
		ids = append(ids, t.ID())
	}
	return ids, total, nil
}

func (r *memRepo) FindViewsByIDs(_ context.Context, viewerSide tutoringDomain.Side, profileRole member.Role, ids []uuid.UUID) ([]tutoringDomain.View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var views []tutoringDomain.View
	// Walk backwards so callers cannot rely on the storage order.
	for i := len(ids) - 1; i >= 0; i-- {
		t, ok := r.rows[ids[i]]
		if !ok || r.hideOnHydrate[ids[i]] {
			continue
		}
		counterpartID := t.ReceiverID()
		if viewerSide == tutoringDomain.SideReceiver {
			counterpartID = t.RequesterID()
		}
		m, ok := r.directory.lookup(counterpartID)
		if !ok || m.role != profileRole {
			continue
		}
		views = append(views, tutoringDomain.View{
			Tutoring: snapshot(t),
			Counterpart: tutoringDomain.Counterpart{
				MemberID:        counterpartID,
				Name:            m.name,
				ProfileRole:     profileRole,
				InterestedField: m.interestedField,
				JobTitle:        m.jobTitle,
			},
		})
	}
	return views, nil
}

func (r *memRepo) CountByStatusForMember(_ context.Context, memberID uuid.UUID) (map[tutoringDomain.Status]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[tutoringDomain.Status]int64)
	for _, t := range r.rows {
		if t.Involves(memberID) {
			counts[t.Status()]++
		}
	}
	return counts, nil
}

func (r *memRepo) WithPartyLocks(_ context.Context, partyIDs []uuid.UUID, fn func(tx tutoringDomain.Repository) error) error {
	r.mu.Lock()
	r.lockedParties = append(r.lockedParties, partyIDs)
	r.mu.Unlock()
	return fn(r)
}

type memMember struct {
	name            string
	role            member.Role
	interestedField string
	jobTitle        string
}

type memDirectory struct {
	mu      sync.Mutex
	members map[uuid.UUID]memMember
}

func newMemDirectory() *memDirectory {
	return &memDirectory{members: make(map[uuid.UUID]memMember)}
}

func (d *memDirectory) addStudent(name, field string) uuid.UUID {
	id := uuid.New()
	d.mu.Lock()
	d.members[id] = memMember{name: name, role: member.RoleStudent, interestedField: field}
	d.mu.Unlock()
	return id
}

func (d *memDirectory) addTutor(name, jobTitle string) uuid.UUID {
	id := uuid.New()
	d.mu.Lock()
	d.members[id] = memMember{name: name, role: member.RoleTutor, jobTitle: jobTitle}
	d.mu.Unlock()
	return id
}

func (d *memDirectory) lookup(id uuid.UUID) (memMember, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.members[id]
	return m, ok
}

func (d *memDirectory) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := d.lookup(id)
	return ok, nil
}

func (d *memDirectory) RoleOf(_ context.Context, id uuid.UUID) (member.Role, error) {
	m, ok := d.lookup(id)
	if !ok {
		return "", apperr.NewNotFoundError("Member", id.String())
	}
	return m.role, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.CloudEvent
}

func (p *recordingPublisher) PublishEvent(_ context.Context, _ string, ce kafka.CloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ce)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ce := range p.events {
		out[i] = ce.Type
	}
	return out
}
