package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jkeevk/aimlul-admin/internal/config"
	"github.com/jkeevk/aimlul-admin/internal/crypto"
	"github.com/jkeevk/aimlul-admin/internal/database"
	"github.com/jkeevk/aimlul-admin/internal/middleware"
	"github.com/jkeevk/aimlul-admin/internal/sshexec"
	"github.com/jkeevk/aimlul-admin/internal/sshpool"
	"github.com/jkeevk/aimlul-admin/internal/wsmanager"
)

// containerActions maps UI actions to docker command templates. The
// container name is validated before interpolation.
var containerActions = map[string]string{
	"start":   "docker start %s",
	"stop":    "docker stop %s",
	"restart": "docker restart %s",
	"status":  "docker ps -f name=%s",
	"stats":   "docker stats %s --no-stream",
	"logs":    "docker logs --tail 50 %s",
	"inspect": "docker inspect %s",
}

// targetRequest carries either inline SSH credentials or the ID of a
// saved host. An empty password falls back to the configured default.
type targetRequest struct {
	HostID    uint   `json:"host_id"`
	IP        string `json:"ip"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Container string `json:"container"`
}

// resolveTarget turns a request into a stream target, looking up saved
// hosts and applying defaults.
func resolveTarget(req targetRequest) (wsmanager.Target, error) {
	target := wsmanager.Target{
		Host:      req.IP,
		Username:  req.Username,
		Password:  req.Password,
		Container: req.Container,
	}

	if req.HostID != 0 {
		host, err := database.GetHostByID(req.HostID)
		if err != nil {
			return target, fmt.Errorf("unknown host ID %d", req.HostID)
		}
		target.Host = host.Address
		target.Username = host.Username
		if target.Container == "" {
			target.Container = host.Container
		}
		if host.PasswordEnc != "" {
			password, err := crypto.Decrypt(host.PasswordEnc)
			if err != nil {
				return target, fmt.Errorf("decrypt host password: %w", err)
			}
			target.Password = password
		}
	}

	if target.Password == "" {
		target.Password = config.Cfg.DefaultSSHPassword
	}
	return target, nil
}

type actionRequest struct {
	targetRequest
	Action string `json:"action"`
}

// ContainerAction executes a docker action on the remote host and returns
// its output as text. Command failures are rendered, not raised; only a
// connection failure produces an error status.
func ContainerAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cmdFmt, ok := containerActions[req.Action]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "result": "Unknown action"})
		return
	}

	target, err := resolveTarget(req.targetRequest)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "result": err.Error()})
		return
	}
	if err := target.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "result": err.Error()})
		return
	}

	cmd := fmt.Sprintf(cmdFmt, target.Container)
	var out string
	err = Pool.With(r.Context(), target.Host, target.Username, target.Password, func(t sshpool.Transport) error {
		var runErr error
		out, runErr = sshexec.Run(r.Context(), t, cmd)
		return runErr
	})

	username := "unknown"
	if user := middleware.GetUser(r); user != nil {
		username = user.Username
	}
	database.AddAudit(username, target.Host, target.Container, req.Action)

	var connErr *sshpool.ConnectError
	if errors.As(err, &connErr) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "error", "result": connErr.Error()})
		return
	}
	// Executor failures are already rendered in out; the UI shows the text.
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "result": out})
}

type logsRequest struct {
	targetRequest
	Lines int `json:"lines"`
}

// FetchLogs returns a one-shot tail of the container's logs.
func FetchLogs(w http.ResponseWriter, r *http.Request) {
	var req logsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Lines <= 0 {
		req.Lines = 200
	}

	target, err := resolveTarget(req.targetRequest)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "result": err.Error()})
		return
	}
	if err := target.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "result": err.Error()})
		return
	}

	cmd := fmt.Sprintf("docker logs --tail %d %s 2>&1", req.Lines, target.Container)
	var out string
	err = Pool.With(r.Context(), target.Host, target.Username, target.Password, func(t sshpool.Transport) error {
		var runErr error
		out, runErr = sshexec.Run(r.Context(), t, cmd)
		return runErr
	})

	var connErr *sshpool.ConnectError
	if errors.As(err, &connErr) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "error", "result": connErr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "logs": out})
}
