package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
	"github.com/bryanreynaldy/social-media-api/internal/storage/history"
)

// stepRequest is the wire form of one browser instruction.
type stepRequest struct {
	Kind       string `json:"kind" binding:"required"`
	URL        string `json:"url"`
	Selector   string `json:"selector"`
	Script     string `json:"script"`
	Pixels     int    `json:"pixels"`
	DurationMS int64  `json:"duration_ms"`
	TimeoutMS  int64  `json:"timeout_ms"`
}

type taskRequest struct {
	Steps     []stepRequest `json:"steps" binding:"required"`
	TimeoutMS int64         `json:"timeout_ms"`
}

func (r taskRequest) toSteps() []task.Step {
	steps := make([]task.Step, 0, len(r.Steps))
	for _, s := range r.Steps {
		steps = append(steps, task.Step{
			Kind:     task.StepKind(s.Kind),
			URL:      s.URL,
			Selector: s.Selector,
			Script:   s.Script,
			Pixels:   s.Pixels,
			Duration: time.Duration(s.DurationMS) * time.Millisecond,
			Timeout:  time.Duration(s.TimeoutMS) * time.Millisecond,
		})
	}
	return steps
}

// SubmitTask runs a raw browser task and reports its payload
func (h *Handlers) SubmitTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	res, err := h.coordinator.SubmitTask(c.Request.Context(), req.toSteps(), timeout)
	if err != nil || !res.Succeeded() {
		h.writeTaskFailure(c, res)
		return
	}

	payload := res.Payload
	if payload == nil {
		payload = []task.Extraction{}
	}
	c.JSON(http.StatusOK, gin.H{
		"task_id":    res.TaskID.String(),
		"outcome":    res.Outcome,
		"steps_run":  res.StepsRun,
		"elapsed_ms": res.Elapsed.Milliseconds(),
		"payload":    payload,
	})
}

// writeTaskFailure maps a failed result onto a status: invalid requests
// are the caller's fault, busy kinds deserve a retry later, everything
// else is a terminal task failure.
func (h *Handlers) writeTaskFailure(c *gin.Context, res task.Result) {
	body := gin.H{
		"task_id": res.TaskID.String(),
		"error": gin.H{
			"kind":   res.ErrorKind,
			"step":   res.FailedStep,
			"reason": res.Reason,
		},
	}

	switch {
	case res.ErrorKind == task.KindInvalid:
		c.JSON(http.StatusBadRequest, body)
	case res.ErrorKind.Busy():
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, body)
	default:
		c.JSON(http.StatusUnprocessableEntity, body)
	}
}

// GetTask looks up one finished task in the history store
func (h *Handlers) GetTask(c *gin.Context) {
	rec, err := h.coordinator.History().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, recordView(rec))
}

// ListTasks returns recent task history, newest first
func (h *Handlers) ListTasks(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	recs, err := h.coordinator.History().Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	tasks := make([]gin.H, 0, len(recs))
	for i := range recs {
		tasks = append(tasks, recordView(&recs[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// recordView shapes a history record for transport; the stored payload
// is embedded as raw JSON rather than a double-encoded string.
func recordView(rec *history.TaskRecord) gin.H {
	view := gin.H{
		"task_id":    rec.TaskID,
		"url":        rec.URL,
		"platform":   rec.Platform,
		"outcome":    rec.Outcome,
		"elapsed_ms": rec.ElapsedMS,
		"created_at": rec.CreatedAt,
	}
	if rec.FailedStep != nil {
		view["failed_step"] = *rec.FailedStep
	}
	if rec.Reason != nil {
		view["reason"] = *rec.Reason
	}
	if rec.Payload != "" && json.Valid([]byte(rec.Payload)) {
		view["payload"] = json.RawMessage(rec.Payload)
	}
	return view
}
