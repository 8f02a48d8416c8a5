package handlers

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/vidgrab/internal/app"
)

// Version is reported by the health endpoint; set at build time with -ldflags
var Version = "dev"

// HealthHandler reports whether the server can accept and run downloads
type HealthHandler struct {
	queueMgr    *app.QueueManager
	downloadMgr *app.DownloadManager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(queueMgr *app.QueueManager, downloadMgr *app.DownloadManager) *HealthHandler {
	return &HealthHandler{
		queueMgr:    queueMgr,
		downloadMgr: downloadMgr,
	}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Queue   struct {
		Running    bool  `json:"running"`
		Queued     int64 `json:"queued"`
		Processing int64 `json:"processing"`
	} `json:"queue"`
	OutputDir string `json:"output_dir"`
}

// Health handles GET /health. It always answers 200 while the process is up.
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Version:   Version,
		OutputDir: h.downloadMgr.OutputDir(),
	}
	response.Queue.Running = h.queueMgr.IsRunning()
	if stats, err := h.queueMgr.GetStats(); err == nil {
		response.Queue.Queued = stats.Queued
		response.Queue.Processing = stats.Processing
	} else {
		response.Status = "degraded"
	}

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready: the queue must be running, the job database
// reachable and the output directory a writable directory.
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := gin.H{}
	ready := true
	record := func(name string, err error) {
		if err != nil {
			checks[name] = err.Error()
			ready = false
			return
		}
		checks[name] = "ok"
	}

	if h.queueMgr.IsRunning() {
		record("queue", nil)
	} else {
		record("queue", fmt.Errorf("queue manager not running"))
	}

	_, err := h.queueMgr.GetStats()
	record("database", err)

	record("output_dir", checkWritableDir(h.downloadMgr.OutputDir()))

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}

// checkWritableDir creates dir if needed and verifies a file can be created in it
func checkWritableDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("output directory not configured")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".vidgrab-ready-*")
	if err != nil {
		return fmt.Errorf("output directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
