package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jkeevk/aimlul-admin/internal/config"
	"github.com/jkeevk/aimlul-admin/internal/crypto"
	"github.com/jkeevk/aimlul-admin/internal/database"
)

type hostResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	Username    string `json:"username"`
	Container   string `json:"container"`
	HasPassword bool   `json:"has_password"`
}

// ListHosts returns the saved Docker hosts. Passwords are never included.
func ListHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := database.ListHosts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list hosts")
		return
	}

	resp := make([]hostResponse, len(hosts))
	for i, h := range hosts {
		resp[i] = hostResponse{
			ID:          h.ID,
			Name:        h.Name,
			Address:     h.Address,
			Username:    h.Username,
			Container:   h.Container,
			HasPassword: h.PasswordEnc != "",
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"hosts": resp})
}

type createHostRequest struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Container string `json:"container"`
}

// CreateHost saves a Docker host, encrypting its SSH password.
func CreateHost(w http.ResponseWriter, r *http.Request) {
	var req createHostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.Address == "" || req.Username == "" {
		writeError(w, http.StatusBadRequest, "name, address and username are required")
		return
	}

	host := &database.Host{
		Name:      req.Name,
		Address:   req.Address,
		Username:  req.Username,
		Container: req.Container,
	}
	if req.Password != "" {
		enc, err := crypto.Encrypt(req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to encrypt password")
			return
		}
		host.PasswordEnc = enc
	}

	if err := database.SaveHost(host); err != nil {
		writeError(w, http.StatusConflict, "Failed to save host")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint{"id": host.ID})
}

// Defaults returns the connection values the UI pre-fills for a quick
// connect. The default password is never exposed, only whether one is set.
func Defaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ip":           config.Cfg.DefaultSSHHost,
		"username":     config.Cfg.DefaultSSHUsername,
		"container":    config.Cfg.DefaultContainer,
		"has_password": config.Cfg.DefaultSSHPassword != "",
	})
}

// DeleteHost removes a saved host.
func DeleteHost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid host ID")
		return
	}
	if err := database.DeleteHost(uint(id)); err != nil {
		if database.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Host not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete host")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
