package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-leads/internal/export"
	"github.com/celerix-dev/celerix-leads/internal/metrics"
	"github.com/celerix-dev/celerix-leads/internal/report"
	"github.com/celerix-dev/celerix-leads/pkg/schema"
	"github.com/celerix-dev/celerix-leads/pkg/sdk"
)

const defaultMaxBodyBytes = 1 << 20

type Handler struct {
	Store        sdk.LeadStore
	Log          *slog.Logger
	Metrics      *metrics.Metrics
	Export       export.Options
	MaxBodyBytes int64
	Now          func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Webhook accepts one lead from the external workflow.
func (h *Handler) Webhook(c *gin.Context) {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body := http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	in, err := schema.DecodeLead(body)
	if err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			h.Metrics.ValidationFailures.Inc()
			h.Log.Warn("rejected webhook lead", "error", verr.Error())
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": verr.Error()})
			return
		}
		h.internalError(c, "decode webhook lead", err, gin.H{"success": false, "error": "internal server error"})
		return
	}

	lead, err := h.Store.Create(c.Request.Context(), in)
	if err != nil {
		h.internalError(c, "create lead", err, gin.H{"success": false, "error": "internal server error"})
		return
	}

	h.Metrics.LeadsIngested.Inc()
	h.Metrics.LeadsStored.Inc()
	h.Log.Info("lead ingested", "lead_id", lead.ID, "score", lead.Score)
	c.JSON(http.StatusOK, gin.H{"success": true, "lead": lead})
}

// ListLeads returns every lead in insertion order.
func (h *Handler) ListLeads(c *gin.Context) {
	leads, err := h.Store.ListAll(c.Request.Context())
	if err != nil {
		h.internalError(c, "list leads", err, gin.H{"error": "Failed to fetch leads"})
		return
	}
	if leads == nil {
		leads = []schema.Lead{}
	}
	c.JSON(http.StatusOK, leads)
}

func (h *Handler) GetLead(c *gin.Context) {
	id := c.Param("id")
	lead, err := h.Store.GetByID(c.Request.Context(), id)
	if errors.Is(err, schema.ErrLeadNotFound) {
		h.Log.Debug("lead not found", "lead_id", id)
		c.JSON(http.StatusNotFound, gin.H{"error": "lead not found"})
		return
	}
	if err != nil {
		h.internalError(c, "get lead", err, gin.H{"error": "Failed to fetch lead"})
		return
	}
	c.JSON(http.StatusOK, lead)
}

// Stats returns the dashboard summary cards.
func (h *Handler) Stats(c *gin.Context) {
	leads, err := h.Store.ListAll(c.Request.Context())
	if err != nil {
		h.internalError(c, "summarize leads", err, gin.H{"error": "Failed to fetch leads"})
		return
	}
	c.JSON(http.StatusOK, report.Summarize(leads, h.now()))
}

func (h *Handler) ExportExcel(c *gin.Context) {
	h.export(c, export.FormatXLSX, export.WriteXLSX, "Failed to export to Excel")
}

func (h *Handler) ExportCSV(c *gin.Context) {
	h.export(c, export.FormatCSV, export.WriteCSV, "Failed to export to CSV")
}

type encoder func(w io.Writer, leads []schema.Lead, opts export.Options) error

// export renders one ListAll snapshot into memory before answering, so a
// failure never leaves the client with a partial file.
func (h *Handler) export(c *gin.Context, format export.Format, encode encoder, failMsg string) {
	leads, err := h.Store.ListAll(c.Request.Context())
	if err != nil {
		h.internalError(c, "export leads", err, gin.H{"error": failMsg})
		return
	}

	var buf bytes.Buffer
	if err := encode(&buf, leads, h.Export); err != nil {
		h.internalError(c, "encode "+string(format)+" export", err, gin.H{"error": failMsg})
		return
	}

	h.Metrics.Exports.WithLabelValues(string(format)).Inc()
	c.Header("Content-Disposition", "attachment; filename="+export.Filename(format, h.now()))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (h *Handler) Health(c *gin.Context) {
	n, err := h.Store.Count(c.Request.Context())
	if err != nil {
		h.Log.Error("health check", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	h.Metrics.LeadsStored.Set(float64(n))
	c.JSON(http.StatusOK, gin.H{"status": "ok", "leads": n})
}

func (h *Handler) internalError(c *gin.Context, op string, err error, body gin.H) {
	h.Log.Error(op, "error", err, "path", c.Request.URL.Path)
	c.JSON(http.StatusInternalServerError, body)
}
