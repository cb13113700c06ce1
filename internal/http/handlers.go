package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/domain/session"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/domain/widget"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/browser"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/filesystem"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/http/client"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	pages   *session.Manager
	library *filesystem.Library
	fetcher *client.Fetcher
	metrics *monitoring.Metrics
	logger  *logging.Logger
}

// NewHandlers creates a new handler set. library and fetcher may be nil, which disables
// the matching page sources.
func NewHandlers(
	pages *session.Manager,
	library *filesystem.Library,
	fetcher *client.Fetcher,
	metrics *monitoring.Metrics,
	logger *logging.Logger,
) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		pages:   pages,
		library: library,
		fetcher: fetcher,
		metrics: metrics,
		logger:  logger.Named("api"),
	}
}

// Register mounts every REST route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/library", h.ListLibrary)

	r.POST("/pages", h.CreatePage)
	r.GET("/pages", h.ListPages)
	r.GET("/pages/:id", h.GetPage)
	r.DELETE("/pages/:id", h.DeletePage)
	r.POST("/pages/:id/scan", h.ScanPage)

	r.GET("/pages/:id/widgets/:wid", h.GetWidget)
	r.PUT("/pages/:id/widgets/:wid/fields/:field", h.SetField)
	r.POST("/pages/:id/widgets/:wid/run", h.RunWidget)
	r.GET("/pages/:id/widgets/:wid/preview", h.PreviewWidget)
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"service": "tiny-sandbox",
		"version": Version,
		"pages":   h.pages.Count(),
		"uptime":  h.metrics.UptimeSince().String(),
		"library": h.library != nil && h.library.Enabled(),
		"fetch":   h.fetcher != nil,
	}
	if last := h.pages.LastCleanup(); last != nil {
		resp["last_cleanup"] = last.Format(time.RFC3339)
	}
	if h.fetcher != nil {
		if open := h.fetcher.OpenHosts(); len(open) > 0 {
			resp["open_circuits"] = open
		}
	}
	c.JSON(http.StatusOK, resp)
}

// ListLibrary lists host pages available on disk
func (h *Handlers) ListLibrary(c *gin.Context) {
	if h.library == nil {
		h.fail(c, filesystem.ErrNoLibrary)
		return
	}
	entries, err := h.library.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if entries == nil {
		entries = []filesystem.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"pages": entries, "count": len(entries)})
}

// CreatePageRequest names exactly one page source.
type CreatePageRequest struct {
	HTML    string `json:"html"`
	Library string `json:"library"`
	URL     string `json:"url"`
}

// CreatePage starts a page session and initializes its widgets
func (h *Handlers) CreatePage(c *gin.Context) {
	var req CreatePageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	sources := 0
	for _, s := range []string{req.HTML, req.Library, req.URL} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		badRequest(c, "exactly one of html, library or url is required")
		return
	}

	timer := monitoring.NewTimer(h.metrics, "pages", "create")
	data, source, err := h.load(c.Request.Context(), req)
	if err != nil {
		timer.Stop("error")
		h.fail(c, err)
		return
	}

	page, err := h.pages.Create(c.Request.Context(), data, source)
	if err != nil {
		timer.Stop("error")
		h.fail(c, err)
		return
	}
	info, err := page.Info(c.Request.Context())
	if err != nil {
		timer.Stop("error")
		h.fail(c, err)
		return
	}
	timer.Stop("success")

	c.JSON(http.StatusCreated, info)
}

// load resolves the request's page source to bytes.
func (h *Handlers) load(ctx context.Context, req CreatePageRequest) ([]byte, string, error) {
	switch {
	case req.Library != "":
		if h.library == nil {
			return nil, "", filesystem.ErrNoLibrary
		}
		data, err := h.library.Read(req.Library)
		return data, "library:" + req.Library, err
	case req.URL != "":
		if h.fetcher == nil {
			return nil, "", client.ErrInvalidURL
		}
		page, err := h.fetcher.Fetch(ctx, req.URL)
		if err != nil {
			return nil, "", err
		}
		return page.Body, page.URL, nil
	default:
		return []byte(req.HTML), "inline", nil
	}
}

// ListPages lists live page sessions
func (h *Handlers) ListPages(c *gin.Context) {
	pages := h.pages.List()
	infos := make([]session.Info, 0, len(pages))
	for _, p := range pages {
		info, err := p.Info(c.Request.Context())
		if err != nil {
			// Closed between List and Info.
			continue
		}
		infos = append(infos, info)
	}
	c.JSON(http.StatusOK, gin.H{"pages": infos, "count": len(infos)})
}

// GetPage renders the host document
func (h *Handlers) GetPage(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	out, err := page.HTML(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(out))
}

// DeletePage ends a page session
func (h *Handlers) DeletePage(c *gin.Context) {
	pid, ok := pageID(c)
	if !ok {
		return
	}
	if err := h.pages.Delete(pid); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": pid})
}

// ScanPage initializes containers added since the last scan
func (h *Handlers) ScanPage(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	var initialized []id.WidgetID
	if err := page.Do(c.Request.Context(), func(ctl *widget.Controller) {
		initialized = ctl.Scan()
	}); err != nil {
		h.fail(c, err)
		return
	}
	if initialized == nil {
		initialized = []id.WidgetID{}
	}
	c.JSON(http.StatusOK, gin.H{"initialized": initialized})
}

// GetWidget returns a widget's fragments, outcome, console and document
func (h *Handlers) GetWidget(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	wid := id.WidgetID(c.Param("wid"))

	var st widget.State
	var stateErr error
	if err := page.Do(c.Request.Context(), func(ctl *widget.Controller) {
		st, stateErr = ctl.State(wid)
	}); err != nil {
		h.fail(c, err)
		return
	}
	if stateErr != nil {
		h.fail(c, stateErr)
		return
	}
	c.JSON(http.StatusOK, st)
}

// SetFieldRequest carries the new field text.
type SetFieldRequest struct {
	Value *string `json:"value"`
}

// SetField replaces an editor field's text
func (h *Handlers) SetField(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	wid := id.WidgetID(c.Param("wid"))
	field, err := browser.ParseField(c.Param("field"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	var req SetFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Value == nil {
		badRequest(c, "value is required")
		return
	}

	var inputErr error
	if err := page.Do(c.Request.Context(), func(ctl *widget.Controller) {
		inputErr = ctl.Input(wid, field, *req.Value)
	}); err != nil {
		h.fail(c, err)
		return
	}
	if inputErr != nil {
		h.fail(c, inputErr)
		return
	}

	h.logger.Debug("field updated",
		zap.String("page", page.ID.String()),
		zap.String("widget", wid.String()),
		zap.String("field", string(field)))
	c.JSON(http.StatusAccepted, gin.H{"widget": wid, "field": field})
}

// RunWidget re-renders a widget immediately
func (h *Handlers) RunWidget(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	wid := id.WidgetID(c.Param("wid"))

	var runErr error
	if err := page.Do(c.Request.Context(), func(ctl *widget.Controller) {
		runErr = ctl.Run(wid)
	}); err != nil {
		h.fail(c, err)
		return
	}
	if runErr != nil {
		h.fail(c, runErr)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"widget": wid})
}

// PreviewWidget returns a sanitized static copy of the widget's rendered body
func (h *Handlers) PreviewWidget(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	wid := id.WidgetID(c.Param("wid"))

	var body string
	var previewErr error
	if err := page.Do(c.Request.Context(), func(ctl *widget.Controller) {
		body, previewErr = ctl.Preview(wid)
	}); err != nil {
		h.fail(c, err)
		return
	}
	if previewErr != nil {
		h.fail(c, previewErr)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(body))
}

// page resolves the :id parameter to a live page, writing the error response if it can't.
func (h *Handlers) page(c *gin.Context) (*session.Page, bool) {
	pid, ok := pageID(c)
	if !ok {
		return nil, false
	}
	page, err := h.pages.Get(pid)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return page, true
}

func pageID(c *gin.Context) (id.PageID, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	if !id.IsValidPageID(raw) {
		badRequest(c, "invalid page id")
		return "", false
	}
	return id.PageID(raw), true
}
