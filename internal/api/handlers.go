package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"batchocr/internal/completion"
	"batchocr/internal/config"
	"batchocr/internal/discover"
	"batchocr/internal/job"
	"batchocr/internal/orchestrator"
)

// discoverRequest overrides the configured sources for one discovery pass.
// Omitted fields fall back to the loaded config.
type discoverRequest struct {
	Mode       config.Mode `json:"mode"`
	Sources    []string    `json:"sources"`
	Files      []string    `json:"files"`
	TargetDir  *string     `json:"target_dir"`
	Recursive  *bool       `json:"recursive"`
	Extensions []string    `json:"extensions"`
}

type batchResponse struct {
	ID           string    `json:"id"`
	Total        int       `json:"total"`
	TargetRoot   string    `json:"target_root,omitempty"`
	SameLocation bool      `json:"same_location"`
	CreatedAt    string    `json:"created_at"`
	Jobs         []job.Job `json:"jobs"`
	StartURL     string    `json:"start_url"`
}

type runResponse struct {
	job.Snapshot
	Percent    float64                `json:"percent"`
	Progress   string                 `json:"progress"`
	TargetRoot string                 `json:"target_root,omitempty"`
	LogPath    string                 `json:"log_path,omitempty"`
	Files      []orchestrator.FileRef `json:"files,omitempty"`
	ArchiveURL string                 `json:"archive_url,omitempty"`
}

type API struct {
	manager *orchestrator.Manager
	now     func() time.Time
}

func NewAPI(manager *orchestrator.Manager) *API {
	return &API{manager: manager, now: time.Now}
}

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/batches", a.CreateBatch)
		api.GET("/batches/:id", a.GetBatch)
		api.POST("/batches/:id/start", a.StartBatch)
		api.GET("/runs", a.ListRuns)
		api.GET("/runs/:id", a.GetRun)
		api.POST("/runs/:id/stop", a.StopRun)
		api.GET("/runs/:id/log", a.GetRunLog)
		api.GET("/runs/:id/archive", a.DownloadArchive)
	}
}

// ProgressLabel renders a snapshot the way the status line shows it.
func ProgressLabel(s job.Snapshot, now time.Time) string {
	return fmt.Sprintf("%d/%d files processed (%.1f%%) - %ds elapsed",
		s.Completed, s.Total, s.Percent(), int(s.Elapsed(now).Seconds()))
}

func (a *API) discoverRequest(body discoverRequest) discover.Request {
	req := discover.RequestFromConfig(a.manager.Config())
	if body.Mode != "" {
		req.Mode = body.Mode
	}
	if len(body.Sources) > 0 {
		req.Sources = body.Sources
	}
	if len(body.Files) > 0 {
		req.Files = body.Files
	}
	if body.TargetDir != nil {
		req.TargetRoot = *body.TargetDir
	}
	if body.Recursive != nil {
		req.Recursive = *body.Recursive
	}
	if len(body.Extensions) > 0 {
		req.Extensions = config.NormalizeExtensions(body.Extensions)
	}
	return req
}

// CreateBatch discovers jobs and caches the batch until it is started
func (a *API) CreateBatch(c *gin.Context) {
	var body discoverRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			log.Warn().Err(err).Msg("invalid discover request")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	if body.Mode != "" && body.Mode != config.ModeFolders && body.Mode != config.ModeFiles {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown mode: " + string(body.Mode)})
		return
	}

	batch, err := a.manager.Discover(a.discoverRequest(body))
	if err != nil {
		if errors.Is(err, job.ErrNoJobs) {
			log.Warn().Err(err).Msg("discovery found nothing")
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Msg("discovery failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("batch_id", batch.ID).Int("total", batch.Total()).Msg("batch discovered")
	c.JSON(http.StatusCreated, toBatchResponse(batch))
}

// GetBatch returns a discovered batch that has not been started
func (a *API) GetBatch(c *gin.Context) {
	id := c.Param("id")
	if batch, ok := a.manager.Batch(id); ok {
		c.JSON(http.StatusOK, toBatchResponse(batch))
		return
	}
	log.Warn().Str("batch_id", id).Msg("batch not found on get")
	c.JSON(http.StatusNotFound, gin.H{"error": orchestrator.ErrBatchNotFound.Error()})
}

// StartBatch submits a batch as a new run
func (a *API) StartBatch(c *gin.Context) {
	id := c.Param("id")
	run, err := a.manager.Start(id)
	if err != nil {
		status := statusFor(err)
		log.Warn().Str("batch_id", id).Err(err).Msg("start rejected")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, a.toRunResponse(run))
}

// ListRuns returns all known runs, newest first
func (a *API) ListRuns(c *gin.Context) {
	runs := a.manager.ListRuns()
	out := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		resp := a.toRunResponse(r)
		resp.Files = nil
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

// GetRun returns the run's progress and per-file status
func (a *API) GetRun(c *gin.Context) {
	id := c.Param("id")
	if run, ok := a.manager.GetRun(id); ok {
		c.JSON(http.StatusOK, a.toRunResponse(run))
		return
	}
	log.Warn().Str("run_id", id).Msg("run not found on get")
	c.JSON(http.StatusNotFound, gin.H{"error": orchestrator.ErrRunNotFound.Error()})
}

// StopRun requests a stop; the response reflects the stopping state
func (a *API) StopRun(c *gin.Context) {
	id := c.Param("id")
	if err := a.manager.Stop(id); err != nil {
		log.Warn().Str("run_id", id).Err(err).Msg("stop rejected")
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	snap, err := a.manager.Snapshot(id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, snap)
}

// GetRunLog returns the parsed completion log of the run
func (a *API) GetRunLog(c *gin.Context) {
	id := c.Param("id")
	entries, err := a.manager.LogEntries(id)
	if err != nil {
		log.Warn().Str("run_id", id).Err(err).Msg("read completion log failed")
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []completion.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// DownloadArchive zips the successful outputs of a finished run and serves it
func (a *API) DownloadArchive(c *gin.Context) {
	id := c.Param("id")
	path, err := a.manager.ExportArchive(c.Request.Context(), id)
	if err != nil {
		log.Warn().Str("run_id", id).Err(err).Msg("archive not available")
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("run_id", id).Str("path", path).Msg("serving archive download")
	c.FileAttachment(path, "outputs-"+id+".zip")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrRunNotFound),
		errors.Is(err, orchestrator.ErrBatchNotFound),
		errors.Is(err, orchestrator.ErrNoOutputs):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrRunActive),
		errors.Is(err, orchestrator.ErrRunNotActive),
		errors.Is(err, orchestrator.ErrRunNotFinished):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func toBatchResponse(b job.Batch) batchResponse {
	return batchResponse{
		ID:           b.ID,
		Total:        b.Total(),
		TargetRoot:   b.TargetRoot,
		SameLocation: b.SameLocation(),
		CreatedAt:    b.CreatedAt.UTC().Format(time.RFC3339),
		Jobs:         b.Jobs,
		StartURL:     "/api/v1/batches/" + b.ID + "/start",
	}
}

func (a *API) toRunResponse(r orchestrator.Run) runResponse {
	snap := r.Snapshot()
	resp := runResponse{
		Snapshot:   snap,
		Percent:    snap.Percent(),
		Progress:   ProgressLabel(snap, a.now()),
		TargetRoot: r.TargetRoot,
		LogPath:    r.LogPath,
		Files:      r.Files,
	}
	if r.State.Terminal() && r.Succeeded > 0 {
		resp.ArchiveURL = "/api/v1/runs/" + r.ID + "/archive"
	}
	return resp
}
