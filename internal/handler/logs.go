package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"imageclassifier/internal/dto"
	"imageclassifier/internal/logger"
)

// logFileFor maps the {level} path segment to a log file name.
func logFileFor(level string) (string, bool) {
	name := level + ".log"
	return name, logger.IsLogFile(name)
}

// ShowLogsHandler serves GET /logs/{level} as text/plain.
func ShowLogsHandler(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := logFileFor(r.PathValue("level"))
		if !ok {
			writeJSON(w, http.StatusNotFound, dto.MessageResponse{Message: "not found"})
			return
		}
		serveLogFile(w, r, log.Dir(), name)
	}
}

// serveLogFile sets headers and serves a log file if it exists.
func serveLogFile(w http.ResponseWriter, r *http.Request, logDir, filename string) {
	filePath := filepath.Join(logDir, filename)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Log file not found: " + filename))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	http.ServeFile(w, r, filePath)
}

// ClearLogsHandler truncates the log file named by POST /logs/{level}/clear.
func ClearLogsHandler(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := logFileFor(r.PathValue("level"))
		if !ok {
			writeJSON(w, http.StatusNotFound, dto.MessageResponse{Message: "not found"})
			return
		}
		if err := log.CleanLogs(name); err != nil {
			writeJSON(w, http.StatusInternalServerError, dto.MessageResponse{Message: "internal server error"})
			return
		}
		writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "cleared"})
	}
}
