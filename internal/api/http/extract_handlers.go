package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bryanreynaldy/social-media-api/internal/domain/coordinator"
)

// maxBatchLinks caps one batch request; larger jobs should be split by
// the caller so a single request cannot monopolize the pool.
const maxBatchLinks = 500

type extractRequest struct {
	Links []string `json:"links"`
}

type extractSingleRequest struct {
	URL string `json:"url"`
}

// Extract processes a batch of post URLs and reports per-row results
// with a run summary. Per-URL failures ride inside their rows; the
// batch itself only fails on a malformed request.
func (h *Handlers) Extract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	links := make([]string, 0, len(req.Links))
	for _, l := range req.Links {
		if s := strings.TrimSpace(l); s != "" {
			links = append(links, s)
		}
	}
	if len(links) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no links provided"})
		return
	}
	if len(links) > maxBatchLinks {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("too many links: %d exceeds the cap of %d", len(links), maxBatchLinks),
		})
		return
	}

	rows, summary := h.coordinator.ExtractBatch(c.Request.Context(), links)
	c.JSON(http.StatusOK, gin.H{
		"results": rows,
		"summary": summary,
	})
}

// ExtractSingle processes one post URL. Capacity conditions map to 503
// so callers know to retry later; data failures come back inside the
// result row.
func (h *Handlers) ExtractSingle(c *gin.Context) {
	var req extractSingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	url := strings.TrimSpace(req.URL)
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no url provided"})
		return
	}

	row, err := h.coordinator.ExtractPost(c.Request.Context(), url)
	if err != nil {
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"kind":   coordinator.ClassifyAcquire(err),
				"reason": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": row})
}
