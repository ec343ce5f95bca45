package activity

import "time"

// Event kinds recorded by the API.
const (
	KindRegistered      = "identity.registered"
	KindRenamed         = "identity.renamed"
	KindMissionCreated  = "mission.created"
	KindMissionEdited   = "mission.edited"
	KindMissionJoined   = "mission.joined"
	KindMissionLeft     = "mission.left"
	KindMissionFinished = "mission.finished"
	KindMissionDeleted  = "mission.deleted"
	KindCrewRemoved     = "mission.crew_removed"
	KindFriendRequested = "friend.requested"
	KindFriendAccepted  = "friend.accepted"
	KindFriendDeclined  = "friend.declined"
	KindFriendRemoved   = "friend.removed"
)

// Event is one state transition worth remembering.
type Event struct {
	Kind      string    `json:"kind"`
	Actor     string    `json:"actor"`
	Subject   string    `json:"subject,omitempty"`
	MissionID int64     `json:"mission_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Involves reports whether handle is the actor or the subject of the event.
func (e Event) Involves(handle string) bool {
	return e.Actor == handle || e.Subject == handle
}

// Query narrows a read of the journal.
type Query struct {
	Handle string
	Limit  int
}
