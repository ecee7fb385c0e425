package handlers

import (
	"net/http"
	"time"
)

// Health reports liveness. It never touches downstream providers; a process
// that can serve this endpoint can accept jobs.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
