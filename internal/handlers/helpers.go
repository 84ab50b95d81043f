package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/jkeevk/aimlul-admin/internal/auth"
	"github.com/jkeevk/aimlul-admin/internal/sshpool"
	"github.com/jkeevk/aimlul-admin/internal/wsmanager"
)

// Wiring set from main.go during init.
var (
	Pool         *sshpool.Pool
	WSManager    *wsmanager.Manager
	SessionStore *auth.SessionStore
	Attempts     *auth.LoginAttempts
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// clientIP extracts the client address, honoring X-Forwarded-For when the
// app sits behind a reverse proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
