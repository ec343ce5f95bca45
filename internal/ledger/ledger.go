// Package ledger keeps the capped per-identity hour counters and the
// mission-tagged history behind them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/alecgard/kyosor/internal/kvstore"
)

const (
	// KindCap bounds each of the internal and external counters.
	KindCap = 18
	// TotalCap bounds the combined counter.
	TotalCap = 36
	// NotifyWindow is how far ahead unsettled missions are announced.
	NotifyWindow = 3 * 24 * time.Hour

	keyPrefix = "ledger_"
)

var (
	ErrInvalidKind  = errors.New("hour kind must be internal or external")
	ErrInvalidHours = errors.New("hours must not be negative")
)

// Key returns the blob key holding handle's ledger.
func Key(handle string) string {
	return keyPrefix + handle
}

// Ledger reads and writes hour ledgers in a kv store.
type Ledger struct {
	store kvstore.Store
	now   func() time.Time
}

// New creates a ledger persisting into store.
func New(store kvstore.Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// load reads handle's ledger and repairs it: counters are clamped into their
// ranges, the total is recomputed and duplicate mission ids are collapsed
// onto the first occurrence.
func (l *Ledger) load(ctx context.Context, handle string) (*Stats, error) {
	var s Stats
	if err := kvstore.LoadJSON(ctx, l.store, Key(handle), &s); err != nil {
		return nil, err
	}
	s.InternalHours = clamp(s.InternalHours, KindCap)
	s.ExternalHours = clamp(s.ExternalHours, KindCap)
	s.TotalHours = math.Min(TotalCap, s.InternalHours+s.ExternalHours)

	seen := make(map[int64]bool, len(s.History))
	history := make([]Entry, 0, len(s.History))
	for _, e := range s.History {
		if seen[e.MissionID] {
			continue
		}
		seen[e.MissionID] = true
		if !e.Kind.Valid() {
			e.Kind = Internal
		}
		history = append(history, e)
	}
	s.History = history
	return &s, nil
}

func (l *Ledger) save(ctx context.Context, handle string, s *Stats) error {
	if s.History == nil {
		s.History = []Entry{}
	}
	return kvstore.SaveJSON(ctx, l.store, Key(handle), s)
}

func clamp(v, hi float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return math.Min(hi, v)
}

// Stats returns handle's ledger. An identity with no ledger gets zero
// counters and an empty history.
func (l *Ledger) Stats(ctx context.Context, handle string) (*Stats, error) {
	return l.load(ctx, handle)
}

// AddSettlement records hours against a mission. The kind counter and the
// total move only when the settlement is settled; the history entry for the
// mission is created or merged either way.
func (l *Ledger) AddSettlement(ctx context.Context, handle string, kind Kind, hours float64, st Settlement) error {
	if !kind.Valid() {
		return ErrInvalidKind
	}
	if hours < 0 || math.IsNaN(hours) {
		return ErrInvalidHours
	}

	s, err := l.load(ctx, handle)
	if err != nil {
		return err
	}

	if st.Settled {
		if kind == Internal {
			s.InternalHours = math.Min(KindCap, s.InternalHours+hours)
		} else {
			s.ExternalHours = math.Min(KindCap, s.ExternalHours+hours)
		}
		s.TotalHours = math.Min(TotalCap, s.InternalHours+s.ExternalHours)
	}

	if i := indexOf(s.History, st.MissionID); i < 0 {
		phase := st.Phase
		if phase == "" {
			phase = PhaseCompleted
		}
		date := st.Date
		if date.IsZero() {
			date = l.now()
		}
		s.History = append(s.History, Entry{
			MissionID: st.MissionID,
			Name:      st.Name,
			Hours:     hours,
			Kind:      kind,
			Date:      date.UTC(),
			Phase:     phase,
			Settled:   st.Settled,
		})
	} else {
		e := &s.History[i]
		if st.Name != "" {
			e.Name = st.Name
		}
		if !st.Date.IsZero() {
			e.Date = st.Date.UTC()
		}
		if st.Phase != "" {
			e.Phase = st.Phase
		}
		if st.Settled {
			e.Settled = true
		}
		// A repeated unsettled call carries 0 hours and must not erase a reward.
		if hours > 0 {
			e.Hours = hours
		}
	}

	if err := l.save(ctx, handle, s); err != nil {
		return fmt.Errorf("adding settlement: %w", err)
	}
	return nil
}

// RemoveSettlement takes hours off the kind counter, floored at zero, and
// drops the history entry for missionID when it is non-zero.
func (l *Ledger) RemoveSettlement(ctx context.Context, handle string, kind Kind, hours float64, missionID int64) error {
	if !kind.Valid() {
		return ErrInvalidKind
	}
	if hours < 0 || math.IsNaN(hours) {
		return ErrInvalidHours
	}

	s, err := l.load(ctx, handle)
	if err != nil {
		return err
	}

	if kind == Internal {
		s.InternalHours = math.Max(0, s.InternalHours-hours)
	} else {
		s.ExternalHours = math.Max(0, s.ExternalHours-hours)
	}
	s.TotalHours = s.InternalHours + s.ExternalHours

	if missionID != 0 {
		if i := indexOf(s.History, missionID); i >= 0 {
			s.History = append(s.History[:i], s.History[i+1:]...)
		}
	}

	if err := l.save(ctx, handle, s); err != nil {
		return fmt.Errorf("removing settlement: %w", err)
	}
	return nil
}

func indexOf(history []Entry, missionID int64) int {
	for i, e := range history {
		if e.MissionID == missionID {
			return i
		}
	}
	return -1
}

// Notifications loads handle's ledger and derives its notifications.
func (l *Ledger) Notifications(ctx context.Context, handle string, asOf time.Time) ([]Notification, error) {
	s, err := l.load(ctx, handle)
	if err != nil {
		return nil, err
	}
	return DeriveNotifications(s, asOf), nil
}

// DeriveNotifications lists every unsettled entry dated within
// [asOf, asOf+NotifyWindow], soonest first. DaysLeft rounds partial days up.
func DeriveNotifications(s *Stats, asOf time.Time) []Notification {
	out := []Notification{}
	if s == nil {
		return out
	}
	until := asOf.Add(NotifyWindow)
	for _, e := range s.History {
		if e.Settled || e.Date.Before(asOf) || e.Date.After(until) {
			continue
		}
		days := int(math.Ceil(e.Date.Sub(asOf).Hours() / 24))
		out = append(out, Notification{
			MissionID: e.MissionID,
			Name:      e.Name,
			Date:      e.Date,
			DaysLeft:  days,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// Calendar lays handle's history out on a Sunday-first month grid in loc.
func (l *Ledger) Calendar(ctx context.Context, handle string, year int, month time.Month, loc *time.Location) ([]CalendarDay, error) {
	s, err := l.load(ctx, handle)
	if err != nil {
		return nil, err
	}
	return BuildCalendar(s, year, month, loc), nil
}

// BuildCalendar returns one cell per day of the month, preceded by blank
// cells so the first day lands on its weekday column.
func BuildCalendar(s *Stats, year int, month time.Month, loc *time.Location) []CalendarDay {
	if loc == nil {
		loc = time.UTC
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	daysInMonth := first.AddDate(0, 1, -1).Day()

	days := make([]CalendarDay, 0, int(first.Weekday())+daysInMonth)
	for i := 0; i < int(first.Weekday()); i++ {
		days = append(days, CalendarDay{Entries: []Entry{}})
	}
	for d := 1; d <= daysInMonth; d++ {
		date := time.Date(year, month, d, 0, 0, 0, 0, loc)
		cell := CalendarDay{Date: &date, Day: d, Entries: []Entry{}}
		if s != nil {
			for _, e := range s.History {
				y, m, dd := e.Date.In(loc).Date()
				if y == year && m == month && dd == d {
					cell.Entries = append(cell.Entries, e)
				}
			}
		}
		days = append(days, cell)
	}
	return days
}

// RenameOutcome reports what Rename did.
type RenameOutcome int

const (
	// Moved means the ledger now lives under the new handle.
	Moved RenameOutcome = iota
	// NoSource means there was no readable ledger under the old handle.
	NoSource
	// TargetExists means a ledger already lives under the new handle; it is
	// kept and the old one is left in place.
	TargetExists
)

// Rename moves the ledger stored under oldHandle to newHandle. An existing
// ledger under newHandle wins.
func (l *Ledger) Rename(ctx context.Context, oldHandle, newHandle string) (RenameOutcome, error) {
	if oldHandle == newHandle {
		return NoSource, nil
	}

	raw, ok, err := l.store.Get(ctx, Key(oldHandle))
	if err != nil && !errors.Is(err, kvstore.ErrCorrupt) {
		return NoSource, fmt.Errorf("reading ledger for %s: %w", oldHandle, err)
	}
	if !ok || err != nil {
		return NoSource, nil
	}

	if _, exists, err := l.store.Get(ctx, Key(newHandle)); err != nil {
		return NoSource, fmt.Errorf("checking ledger for %s: %w", newHandle, err)
	} else if exists {
		return TargetExists, nil
	}

	if err := l.store.Set(ctx, Key(newHandle), raw); err != nil {
		return NoSource, fmt.Errorf("writing ledger for %s: %w", newHandle, err)
	}
	if err := l.store.Remove(ctx, Key(oldHandle)); err != nil {
		return Moved, fmt.Errorf("removing ledger for %s: %w", oldHandle, err)
	}
	return Moved, nil
}
