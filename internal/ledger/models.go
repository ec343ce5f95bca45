package ledger

import "time"

// Kind classifies where volunteer hours were earned.
type Kind string

const (
	Internal Kind = "internal"
	External Kind = "external"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == Internal || k == External
}

// Phase mirrors the mission state an entry was last recorded against.
type Phase string

const (
	PhaseInProgress Phase = "InProgress"
	PhaseCompleted  Phase = "Completed"
)

// Entry is one mission-tagged line of an identity's hour history.
type Entry struct {
	MissionID int64     `json:"mission_id"`
	Name      string    `json:"name"`
	Hours     float64   `json:"hours"`
	Kind      Kind      `json:"kind"`
	Date      time.Time `json:"date"`
	Phase     Phase     `json:"phase"`
	Settled   bool      `json:"settled"`
}

// Stats is the persisted ledger of a single identity.
type Stats struct {
	InternalHours float64 `json:"internal_hours"`
	ExternalHours float64 `json:"external_hours"`
	TotalHours    float64 `json:"total_hours"`
	History       []Entry `json:"history"`
}

// Settlement describes the mission an hour change belongs to.
type Settlement struct {
	MissionID int64
	Name      string
	Date      time.Time
	Phase     Phase
	Settled   bool
}

// Notification is an upcoming unsettled mission.
type Notification struct {
	MissionID int64     `json:"mission_id"`
	Name      string    `json:"name"`
	Date      time.Time `json:"date"`
	DaysLeft  int       `json:"days_left"`
}

// CalendarDay is one cell of a month grid. Leading cells that pad the
// first week have Day == 0 and a nil Date.
type CalendarDay struct {
	Date    *time.Time `json:"date"`
	Day     int        `json:"day"`
	Entries []Entry    `json:"entries"`
}
