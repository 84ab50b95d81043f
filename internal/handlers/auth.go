package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jkeevk/aimlul-admin/internal/auth"
	"github.com/jkeevk/aimlul-admin/internal/database"
	"github.com/jkeevk/aimlul-admin/internal/logutil"
	"github.com/jkeevk/aimlul-admin/internal/middleware"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates against the users table and sets the session
// cookie. Failed attempts are throttled per client IP.
func Login(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	Attempts.CleanupStale()

	if blocked, remaining := Attempts.Blocked(ip); blocked {
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("Too many failed login attempts. Try again in %s.", remaining.Round(time.Second)))
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := database.GetUserByUsername(req.Username)
	if err != nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
		Attempts.Failed(ip)
		log.Printf("[auth] failed login for %q from %s", logutil.SanitizeForLog(req.Username), ip)
		detail := "Invalid username or password."
		if remaining := Attempts.Remaining(ip); remaining > 0 {
			detail += fmt.Sprintf(" Remaining attempts: %d", remaining)
		} else {
			detail += " This was your last attempt before temporary lock."
		}
		writeError(w, http.StatusUnauthorized, detail)
		return
	}

	Attempts.Clear(ip)
	token, err := SessionStore.Create(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionStore.Duration().Seconds()),
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "username": user.Username})
}

// Logout deletes the session and closes any live log streams the browser
// still has open.
func Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		SessionStore.Delete(cookie.Value)
	}
	if WSManager != nil {
		WSManager.Cleanup()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Me returns the authenticated user.
func Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"username": user.Username,
		"role":     user.Role,
	})
}
