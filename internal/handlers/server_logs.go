package handlers

import (
	"net/http"
	"strconv"

	"github.com/jkeevk/aimlul-admin/internal/logging"
)

// ServerLogs returns the tail of the application's own log file.
func ServerLogs(w http.ResponseWriter, r *http.Request) {
	lines := 200
	if v := r.URL.Query().Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid lines parameter")
			return
		}
		lines = n
	}

	tail, err := logging.ReadTail(lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read log file")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lines": tail})
}
