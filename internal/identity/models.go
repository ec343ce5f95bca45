package identity

import "time"

// Profile holds optional presentation details for an identity.
type Profile struct {
	AvatarRef      string `json:"avatar_ref,omitempty"`
	Institution    string `json:"institution,omitempty"`
	EducationLevel string `json:"education_level,omitempty"`
	Email          string `json:"email,omitempty"`
}

// Identity is a registered account. Handle is the display name other
// records refer to; CredentialKey is the login name.
type Identity struct {
	Handle           string    `json:"handle"`
	CredentialKey    string    `json:"credential_key"`
	SecretHash       string    `json:"secret_hash"`
	Friends          []string  `json:"friends"`
	IncomingRequests []string  `json:"incoming_requests"`
	OutgoingRequests []string  `json:"outgoing_requests"`
	Profile          Profile   `json:"profile"`
	CreatedAt        time.Time `json:"created_at"`
}

// RegisterInput holds the fields required to create a new identity.
type RegisterInput struct {
	Handle        string  `json:"handle"`
	CredentialKey string  `json:"credential_key"`
	Secret        string  `json:"secret"`
	Profile       Profile `json:"profile"`
}

// ProfilePatch holds optional fields for a partial profile update.
type ProfilePatch struct {
	AvatarRef      *string `json:"avatar_ref,omitempty"`
	Institution    *string `json:"institution,omitempty"`
	EducationLevel *string `json:"education_level,omitempty"`
	Email          *string `json:"email,omitempty"`
}

// Session marks the identity currently logged in. The token is time-based
// and only proves presence, not possession of a credential.
type Session struct {
	Handle        string    `json:"handle"`
	CredentialKey string    `json:"credential_key,omitempty"`
	Token         string    `json:"token"`
	IssuedAt      time.Time `json:"issued_at"`
}
