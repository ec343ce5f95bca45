// Package mission implements the mission registry: the active mission set,
// the archive of completed missions and the crew state machine between them.
package mission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alecgard/kyosor/internal/handleset"
	"github.com/alecgard/kyosor/internal/kvstore"
	"github.com/alecgard/kyosor/internal/ledger"
)

// Blob keys owned by the registry.
const (
	ActiveKey   = "missions_active"
	ArchiveKey  = "missions_archive"
	SequenceKey = "missions_sequence"
)

// RewardHours is credited to the chief when a mission is finished.
const RewardHours = 3

var (
	ErrNotFound      = errors.New("mission not found")
	ErrInvalidDraft  = errors.New("name, description, mission date and a positive max crew are required")
	ErrNotOpen       = errors.New("mission is not accepting members")
	ErrSelfJoin      = errors.New("chief cannot join their own mission")
	ErrJoinDisabled  = errors.New("mission does not allow joining")
	ErrCrewFull      = errors.New("mission crew is full")
	ErrAlreadyMember = errors.New("already a member of this mission")
	ErrNotMember     = errors.New("not a member of this mission")
	ErrNotChief      = errors.New("only the chief can do this")
	ErrHasCrew       = errors.New("mission already has crew members")
)

// HoursLedger is the part of the hours ledger the registry drives.
type HoursLedger interface {
	AddSettlement(ctx context.Context, handle string, kind ledger.Kind, hours float64, st ledger.Settlement) error
	RemoveSettlement(ctx context.Context, handle string, kind ledger.Kind, hours float64, missionID int64) error
}

// Registry owns the active and archived mission blobs.
type Registry struct {
	store kvstore.Store
	hours HoursLedger
	now   func() time.Time
}

// NewRegistry creates a registry persisting into store and reporting hour
// changes to hours.
func NewRegistry(store kvstore.Store, hours HoursLedger) *Registry {
	return &Registry{store: store, hours: hours, now: time.Now}
}

func (r *Registry) load(ctx context.Context, key string) ([]*Mission, error) {
	var ms []*Mission
	if err := kvstore.LoadJSON(ctx, r.store, key, &ms); err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(ms))
	out := ms[:0]
	for _, m := range ms {
		if m == nil || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		m.normalize()
		out = append(out, m)
	}
	return out, nil
}

func (r *Registry) save(ctx context.Context, key string, ms []*Mission) error {
	if ms == nil {
		ms = []*Mission{}
	}
	return kvstore.SaveJSON(ctx, r.store, key, ms)
}

func find(ms []*Mission, id int64) (int, *Mission) {
	for i, m := range ms {
		if m.ID == id {
			return i, m
		}
	}
	return -1, nil
}

// nextID returns an id above every id ever issued, including archived ones.
func (r *Registry) nextID(ctx context.Context, active, archive []*Mission) (int64, error) {
	var seq int64
	if err := kvstore.LoadJSON(ctx, r.store, SequenceKey, &seq); err != nil {
		return 0, err
	}
	for _, set := range [][]*Mission{active, archive} {
		for _, m := range set {
			if m.ID > seq {
				seq = m.ID
			}
		}
	}
	seq++
	if err := kvstore.SaveJSON(ctx, r.store, SequenceKey, seq); err != nil {
		return 0, fmt.Errorf("advancing mission sequence: %w", err)
	}
	return seq, nil
}

func (r *Registry) stamp() time.Time {
	return r.now().UTC()
}

// ledgerDate is the date hour entries for m are filed under.
func (r *Registry) ledgerDate(m *Mission) time.Time {
	if m.MissionDate != nil {
		return *m.MissionDate
	}
	return r.stamp()
}

// Create validates draft and stores a new Open mission led by chief.
func (r *Registry) Create(ctx context.Context, chief string, d Draft) (*Mission, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	if chief == "" || d.Name == "" || d.Description == "" || d.MissionDate == nil || d.MissionDate.IsZero() || d.MaxCrew <= 0 {
		return nil, ErrInvalidDraft
	}

	active, err := r.load(ctx, ActiveKey)
	if err != nil {
		return nil, err
	}
	archive, err := r.load(ctx, ArchiveKey)
	if err != nil {
		return nil, err
	}
	id, err := r.nextID(ctx, active, archive)
	if err != nil {
		return nil, err
	}

	now := r.stamp()
	date := d.MissionDate.UTC()
	m := &Mission{
		ID:             id,
		ChiefHandle:    chief,
		Name:           d.Name,
		Description:    d.Description,
		Status:         StatusOpen,
		CrewMembers:    []string{},
		PendingMembers: []string{},
		MaxCrew:        d.MaxCrew,
		AllowJoin:      d.AllowJoin == nil || *d.AllowJoin,
		MissionDate:    &date,
		Email:          strings.TrimSpace(d.Email),
		Phone:          strings.TrimSpace(d.Phone),
		Location:       strings.TrimSpace(d.Location),
		Rewards:        d.Rewards,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	active = append([]*Mission{m}, active...)
	if err := r.save(ctx, ActiveKey, active); err != nil {
		return nil, fmt.Errorf("creating mission: %w", err)
	}

	err = r.hours.AddSettlement(ctx, chief, ledger.Internal, 0, ledger.Settlement{
		MissionID: m.ID,
		Name:      m.Name,
		Date:      date,
		Phase:     ledger.PhaseInProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("registering chief hours: %w", err)
	}
	return m, nil
}

// Get returns the mission with id from the active set, falling back to
// the archive.
func (r *Registry) Get(ctx context.Context, id int64) (*Mission, error) {
	for _, key := range []string{ActiveKey, ArchiveKey} {
		ms, err := r.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if _, m := find(ms, id); m != nil {
			return m, nil
		}
	}
	return nil, ErrNotFound
}

// Join adds actor to the crew. A mission accepts members while it is Open
// or InProgress and has room, so a second volunteer can join after the
// first one moved it to InProgress; only Completed missions are closed.
func (r *Registry) Join(ctx context.Context, id int64, actor string) (*Mission, error) {
	active, err := r.load(ctx, ActiveKey)
	if err != nil {
		return nil, err
	}
	_, m := find(active, id)
	if m == nil {
		return nil, ErrNotFound
	}

	switch {
	case m.Status != StatusOpen && m.Status != StatusInProgress:
		return nil, ErrNotOpen
	case m.IsChief(actor):
		return nil, ErrSelfJoin
	case !m.AllowJoin:
		return nil, ErrJoinDisabled
	case len(m.CrewMembers) >= m.MaxCrew:
		return nil, ErrCrewFull
	case m.IsCrew(actor):
		return nil, ErrAlreadyMember
	}

	m.CrewMembers = append(m.CrewMembers, actor)
	m.PendingMembers = handleset.Remove(m.PendingMembers, actor)
	m.CrewCount = len(m.CrewMembers)
	m.Status = StatusInProgress
	m.UpdatedAt = r.stamp()

	if err := r.save(ctx, ActiveKey, active); err != nil {
		return nil, fmt.Errorf("joining mission: %w", err)
	}

	err = r.hours.AddSettlement(ctx, actor, ledger.Internal, 0, ledger.Settlement{
		MissionID: m.ID,
		Name:      m.Name,
		Date:      r.ledgerDate(m),
		Phase:     ledger.PhaseInProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("registering crew hours: %w", err)
	}
	return m, nil
}

// Cancel withdraws actor from the crew or pending list and drops their
// unsettled hour entry. A mission left with nobody reverts to Open.
func (r *Registry) Cancel(ctx context.Context, id int64, actor string) (*Mission, error) {
	active, err := r.load(ctx, ActiveKey)
	if err != nil {
		return nil, err
	}
	_, m := find(active, id)
	if m == nil {
		return nil, ErrNotFound
	}
	if !m.IsCrew(actor) && !handleset.Contains(m.PendingMembers, actor) {
		return nil, ErrNotMember
	}

	r.dropMember(m, actor)
	if err := r.save(ctx, ActiveKey, active); err != nil {
		return nil, fmt.Errorf("cancelling membership: %w", err)
	}
	if err := r.hours.RemoveSettlement(ctx, actor, ledger.Internal, 0, m.ID); err != nil {
		return nil, fmt.Errorf("retracting crew hours: %w", err)
	}
	return m, nil
}

// RemoveMember lets the chief drop target from the crew. The target's
// unsettled hour entry is retracted the same way Cancel does.
func (r *Registry) RemoveMember(ctx context.Context, id int64, actor, target string) (*Mission, error) {
	active, err := r.load(ctx, ActiveKey)
	if err != nil {
		return nil, err
	}
	_, m := find(active, id)
	if m == nil {
		return nil, ErrNotFound
	}
	if !m.IsChief(actor) {
		return nil, ErrNotChief
	}
	if !m.IsCrew(target) {
		return nil, ErrNotMember
	}

	r.dropMember(m, target)
	if err := r.save(ctx, ActiveKey, active); err != nil {
		return nil, fmt.Errorf("removing crew member: %w", err)
	}
	if err := r.hours.RemoveSettlement(ctx, target, ledger.Internal, 0, m.ID); err != nil {
		return nil, fmt.Errorf("retracting crew hours: %w", err)
	}
	return m, nil
}

func (r *Registry) dropMember(m *Mission, handle string) {
	m.CrewMembers = handleset.Remove(m.CrewMembers, handle)
	m.PendingMembers = handleset.Remove(m.PendingMembers, handle)
	m.CrewCount = len(m.CrewMembers)
	if m.Status == StatusInProgress && len(m.CrewMembers) == 0 && len(m.PendingMembers) == 0 {
		m.Status = StatusOpen
	}
	m.UpdatedAt = r.stamp()
}

// CancelOwned deletes a mission on behalf of its chief and retracts every
// unsettled hour entry that pointed at it.
func (r *Registry) CancelOwned(ctx context.Context, id int64, actor string) error {
	active, err := r.load(ctx, ActiveKey)
	if err != nil {
		return err
	}
	i, m := find(active, id)
	if m == nil {
		return ErrNotFound
	}
	if !m.IsChief(actor) {
		return ErrNotChief
	}

	active = append(active[:i], active[i+1:]...)
	if err := r.save(ctx, ActiveKey, active); err != nil {
		return fmt.Errorf("deleting mission: %w", err)
	}

	affected := append([]string{m.ChiefHandle}, m.CrewMembers...)
	affected = append(affected, m.PendingMembers...)
	for _, h := range handleset.Normalize(affected, "") {
		if err := r.hours.RemoveSettlement(ctx, h, ledger.Internal, 0, m.ID); err != nil {
			return fmt.Errorf("retracting hours for %s: %w", h, err)
		}
	}
	return nil
}

// Finish completes a mission: it is written to the archive, the chief is
// credited RewardHours and the mission leaves the active set.
func (r *Registry) Finish(ctx context.Context, id int64, actor string) (*Mission, error) {
	active, err := r.load(ctx, ActiveKey)
	if err != nil {
		return nil, err
	}
	i, m := find(active, id)
	if m == nil {
		return nil, ErrNotFound
	}
	if !m.IsChief(actor) {
		return nil, ErrNotChief
	}

	m.Status = StatusCompleted
	m.AllowJoin = false
	m.UpdatedAt = r.stamp()

	archive, err := r.load(ctx, ArchiveKey)
	if err != nil {
		return nil, err
	}
	if j, _ := find(archive, id); j >= 0 {
		archive[j] = m
	} else {
		archive = append([]*Mission{m}, archive...)
	}
	if err := r.save(ctx, ArchiveKey, archive); err != nil {
		return nil, fmt.Errorf("archiving mission: %w", err)
	}

	err = r.hours.AddSettlement(ctx, m.ChiefHandle, ledger.Internal, RewardHours, ledger.Settlement{
		MissionID: m.ID,
		Name:      m.Name,
		Date:      r.ledgerDate(m),
		Phase:     ledger.PhaseCompleted,
		Settled:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("settling chief hours: %w", err)
	}

	active = append(active[:i], active[i+1:]...)
	if err := r.save(ctx, ActiveKey, active); err != nil {
		return nil, fmt.Errorf("finishing mission: %w", err)
	}
	return m, nil
}

// Edit applies patch to a mission that nobody has joined yet.
func (r *Registry) Edit(ctx context.Context, id int64, actor string, p Patch) (*Mission, error) {
	active, err := r.load(ctx, ActiveKey)
	if err != nil {
		return nil, err
	}
	_, m := find(active, id)
	if m == nil {
		return nil, ErrNotFound
	}
	if !m.IsChief(actor) {
		return nil, ErrNotChief
	}
	if len(m.CrewMembers) > 0 {
		return nil, ErrHasCrew
	}

	if p.Name != nil {
		if name := strings.TrimSpace(*p.Name); name != "" {
			m.Name = name
		}
	}
	if p.Description != nil {
		if desc := strings.TrimSpace(*p.Description); desc != "" {
			m.Description = desc
		}
	}
	if p.MaxCrew != nil {
		if *p.MaxCrew <= 0 {
			return nil, ErrInvalidDraft
		}
		m.MaxCrew = *p.MaxCrew
	}
	if p.MissionDate != nil && !p.MissionDate.IsZero() {
		date := p.MissionDate.UTC()
		m.MissionDate = &date
	}
	if p.AllowJoin != nil {
		m.AllowJoin = *p.AllowJoin
	}
	if p.Email != nil {
		m.Email = strings.TrimSpace(*p.Email)
	}
	if p.Phone != nil {
		m.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.Location != nil {
		m.Location = strings.TrimSpace(*p.Location)
	}
	if p.Rewards != nil {
		m.Rewards = *p.Rewards
	}
	m.UpdatedAt = r.stamp()

	if err := r.save(ctx, ActiveKey, active); err != nil {
		return nil, fmt.Errorf("editing mission: %w", err)
	}

	// Nobody has joined, so the chief holds the only entry for this mission.
	err = r.hours.AddSettlement(ctx, m.ChiefHandle, ledger.Internal, 0, ledger.Settlement{
		MissionID: m.ID,
		Name:      m.Name,
		Date:      r.ledgerDate(m),
		Phase:     ledger.PhaseInProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("updating chief hours: %w", err)
	}
	return m, nil
}

// List returns the missions visible to actor under f, newest first.
func (r *Registry) List(ctx context.Context, actor string, f Filter) ([]View, error) {
	key := ActiveKey
	if f.ViewMode == ViewHistory {
		key = ArchiveKey
	}
	ms, err := r.load(ctx, key)
	if err != nil {
		return nil, err
	}

	term := strings.ToLower(strings.TrimSpace(f.SearchTerm))
	out := []View{}
	for _, m := range ms {
		if (f.ViewMode == ViewMine || f.ViewMode == ViewHistory) && !m.Involves(actor) {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(m.Name), term) {
			continue
		}
		status := DisplayStatus(m, actor, f.ViewMode)
		if f.StatusFilter != "" && status != f.StatusFilter {
			continue
		}
		out = append(out, View{Mission: m, DisplayStatus: status})
	}
	return out, nil
}

// DisplayStatus is the status shown to actor. Crew members looking at their
// history see their missions as Completed.
func DisplayStatus(m *Mission, actor string, mode ViewMode) Status {
	if mode == ViewHistory && !m.IsChief(actor) && m.IsCrew(actor) {
		return StatusCompleted
	}
	return m.Status
}

// Reconcile drops active and archived missions whose chief is not in known.
// It returns how many missions were dropped.
func (r *Registry) Reconcile(ctx context.Context, known map[string]bool) (int, error) {
	dropped := 0
	for _, key := range []string{ActiveKey, ArchiveKey} {
		ms, err := r.load(ctx, key)
		if err != nil {
			return dropped, err
		}
		kept := make([]*Mission, 0, len(ms))
		for _, m := range ms {
			if known[m.ChiefHandle] {
				kept = append(kept, m)
			}
		}
		if len(kept) == len(ms) {
			continue
		}
		if err := r.save(ctx, key, kept); err != nil {
			return dropped, fmt.Errorf("reconciling %s: %w", key, err)
		}
		dropped += len(ms) - len(kept)
	}
	return dropped, nil
}

// RenameHandle rewrites every chief, crew and pending reference to
// oldHandle, first in the active set and then in the archive.
func (r *Registry) RenameHandle(ctx context.Context, oldHandle, newHandle string) error {
	for _, key := range []string{ActiveKey, ArchiveKey} {
		ms, err := r.load(ctx, key)
		if err != nil {
			return err
		}
		changed := false
		for _, m := range ms {
			if m.ChiefHandle != oldHandle && !m.IsCrew(oldHandle) && !handleset.Contains(m.PendingMembers, oldHandle) {
				continue
			}
			changed = true
			if m.ChiefHandle == oldHandle {
				m.ChiefHandle = newHandle
			}
			m.CrewMembers = handleset.Replace(m.CrewMembers, oldHandle, newHandle)
			m.PendingMembers = handleset.Replace(m.PendingMembers, oldHandle, newHandle)
			m.normalize()
		}
		if !changed {
			continue
		}
		if err := r.save(ctx, key, ms); err != nil {
			return fmt.Errorf("renaming in %s: %w", key, err)
		}
	}
	return nil
}
