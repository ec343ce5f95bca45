package api

import "net/http"

// wellKnownManifest is the static JSON manifest for /.well-known/kyosor.json.
const wellKnownManifest = `{
  "name": "Kyosor",
  "description": "Volunteer mission tracker",
  "version": "0.1.0",
  "api_base": "/api/v1",
  "auth": {
    "type": "bearer",
    "header": "Authorization",
    "login": "/api/v1/auth/login"
  },
  "endpoints": {
    "missions": "/api/v1/missions",
    "friends": "/api/v1/friends",
    "hours": "/api/v1/me/hours",
    "calendar": "/api/v1/me/calendar",
    "activity": "/api/v1/activity"
  },
  "health": "/health"
}`

// WellKnownHandler returns the static Kyosor well-known manifest.
func WellKnownHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(wellKnownManifest))
}
