package mission

import (
	"encoding/json"
	"time"

	"github.com/alecgard/kyosor/internal/handleset"
)

// Status is the lifecycle state of a mission.
type Status string

const (
	StatusOpen       Status = "Open"
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusOpen || s == StatusInProgress || s == StatusCompleted
}

// DefaultMaxCrew is applied to stored missions with no usable crew limit.
const DefaultMaxCrew = 5

// Mission is a volunteer activity led by its chief.
type Mission struct {
	ID             int64      `json:"id"`
	ChiefHandle    string     `json:"chief_handle"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Status         Status     `json:"status"`
	CrewMembers    []string   `json:"crew_members"`
	PendingMembers []string   `json:"pending_members"`
	CrewCount      int        `json:"crew_count"`
	MaxCrew        int        `json:"max_crew"`
	AllowJoin      bool       `json:"allow_join"`
	MissionDate    *time.Time `json:"mission_date,omitempty"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Location       string     `json:"location,omitempty"`
	Rewards        []string   `json:"rewards,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// UnmarshalJSON treats a missing allow_join as true.
func (m *Mission) UnmarshalJSON(data []byte) error {
	type plain Mission
	aux := struct {
		*plain
		AllowJoin *bool `json:"allow_join"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.AllowJoin = aux.AllowJoin == nil || *aux.AllowJoin
	return nil
}

// normalize repairs a mission read from storage.
func (m *Mission) normalize() {
	if m.MaxCrew <= 0 {
		m.MaxCrew = DefaultMaxCrew
	}
	if !m.Status.Valid() {
		m.Status = StatusOpen
	}
	m.CrewMembers = handleset.Normalize(m.CrewMembers, m.ChiefHandle)
	m.PendingMembers = handleset.Normalize(m.PendingMembers, m.ChiefHandle)
	m.CrewCount = len(m.CrewMembers)
}

// IsChief reports whether handle leads the mission.
func (m *Mission) IsChief(handle string) bool {
	return m.ChiefHandle == handle
}

// IsCrew reports whether handle has joined the mission.
func (m *Mission) IsCrew(handle string) bool {
	return handleset.Contains(m.CrewMembers, handle)
}

// Involves reports whether handle is the chief or a crew member.
func (m *Mission) Involves(handle string) bool {
	return m.IsChief(handle) || m.IsCrew(handle)
}

// Draft holds the fields required to create a mission.
type Draft struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	MissionDate *time.Time `json:"mission_date"`
	MaxCrew     int        `json:"max_crew"`
	AllowJoin   *bool      `json:"allow_join"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	Location    string     `json:"location"`
	Rewards     []string   `json:"rewards"`
}

// Patch holds the fields a chief may change before anyone joins.
// Only non-nil fields are applied.
type Patch struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	MissionDate *time.Time `json:"mission_date"`
	MaxCrew     *int       `json:"max_crew"`
	AllowJoin   *bool      `json:"allow_join"`
	Email       *string    `json:"email"`
	Phone       *string    `json:"phone"`
	Location    *string    `json:"location"`
	Rewards     *[]string  `json:"rewards"`
}

// ViewMode selects which missions a listing draws from.
type ViewMode string

const (
	ViewAll     ViewMode = "all"
	ViewMine    ViewMode = "mine"
	ViewHistory ViewMode = "history"
)

// Filter narrows a mission listing.
type Filter struct {
	SearchTerm   string
	StatusFilter Status
	ViewMode     ViewMode
}

// View is a mission as presented to one actor.
type View struct {
	*Mission
	DisplayStatus Status `json:"display_status"`
}
