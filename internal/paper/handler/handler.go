package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paperdesk/paperdesk/internal/ingest"
	"github.com/paperdesk/paperdesk/internal/locks"
	"github.com/paperdesk/paperdesk/internal/paper"
	"github.com/paperdesk/paperdesk/internal/paper/attachments"
	"github.com/paperdesk/paperdesk/internal/paper/repository"
	"github.com/paperdesk/paperdesk/internal/paper/service"
	"github.com/paperdesk/paperdesk/internal/users"
	"github.com/paperdesk/paperdesk/pkg/logger"
	"github.com/paperdesk/paperdesk/pkg/middleware"
)

// paperView is the JSON shape of a paper. Attachment bytes are served
// separately under /images/:n.
type paperView struct {
	ID        int64                 `json:"id"`
	Owner     string                `json:"owner"`
	Status    paper.Status          `json:"status"`
	Sections  map[string]string     `json:"sections"`
	Images    int                   `json:"images"`
	Tables    []attachments.Table   `json:"tables"`
	History   []paper.HistoryRecord `json:"history,omitempty"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

func view(p *paper.Paper, withHistory bool) paperView {
	v := paperView{
		ID:        p.ID,
		Owner:     p.Owner,
		Status:    p.Status,
		Sections:  p.Sections,
		Images:    len(p.Attachments.Images),
		Tables:    p.Attachments.Tables,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if v.Tables == nil {
		v.Tables = []attachments.Table{}
	}
	if withHistory {
		v.History = p.History
	}
	return v
}

type routes struct {
	svc       *service.Service
	maxUpload int64
}

// RegisterPaperRoutes mounts the paper API on r. r must already run
// middleware.AuthMiddleware. maxUpload <= 0 disables the body size cap.
func RegisterPaperRoutes(r gin.IRouter, svc *service.Service, maxUpload int64) {
	h := &routes{svc: svc, maxUpload: maxUpload}

	g := r.Group("/api/papers")
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/statuses", h.statuses)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.delete)
	g.PATCH("/:id/sections", h.editSections)
	g.POST("/:id/upload", h.upload)
	g.PUT("/:id/status", h.setStatus)
	g.GET("/:id/history", h.history)
	g.GET("/:id/render", h.render)
	g.POST("/:id/images", h.addImage)
	g.GET("/:id/images/:n", h.image)
	g.POST("/:id/tables", h.addTable)
	g.POST("/:id/reviews", h.addReview)
	g.GET("/:id/reviews", h.reviews)
}

func actorFrom(c *gin.Context) (service.Actor, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return service.Actor{}, false
	}
	return service.Actor{Username: id.Subject, Role: users.Role(id.Role)}, true
}

func paperID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paper id"})
		return 0, false
	}
	return id, true
}

// begin resolves the caller and the paper id shared by most routes.
func begin(c *gin.Context) (service.Actor, int64, bool) {
	actor, ok := actorFrom(c)
	if !ok {
		return actor, 0, false
	}
	id, ok := paperID(c)
	return actor, id, ok
}

// fail maps service errors to HTTP status codes.
func fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// StatusFor returns the HTTP status code for an error returned by the
// paper or users services.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrUnknownSection),
		errors.Is(err, service.ErrEmptyUpload),
		errors.Is(err, attachments.ErrInvalidDimensions),
		errors.Is(err, users.ErrInvalidAccount),
		errors.Is(err, users.ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ingest.ErrMalformed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, locks.ErrNotAcquired),
		errors.Is(err, users.ErrDuplicateUsername):
		return http.StatusConflict
	case errors.Is(err, service.ErrTooLarge),
		errors.Is(err, repository.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

func (h *routes) list(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	ps, err := h.svc.List(c.Request.Context(), actor)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]paperView, 0, len(ps))
	for _, p := range ps {
		out = append(out, view(p, false))
	}
	c.JSON(http.StatusOK, out)
}

func (h *routes) create(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req struct {
		Sections map[string]string `json:"sections"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	p, err := h.svc.Create(c.Request.Context(), actor, req.Sections)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view(p, false))
}

func (h *routes) statuses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"statuses": h.svc.Statuses()})
}

func (h *routes) get(c *gin.Context) {
	actor, id, ok := begin(c)
	if !ok {
		return
	}
	p, err := h.svc.Get(c.Request.Context(), actor, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view(p, false))
}

func (h *routes) delete(c *gin.Context) {
	actor, id, ok := begin(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actor, id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *routes) editSections(c *gin.Context) {
	actor, id, ok := begin(c)
	if !ok {
		return
	}
	var req struct {
		Sections map[string]string `json:"sections" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, changes, err := h.svc.EditSections(c.Request.Context(), actor, id, req.Sections)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paper": view(p, false), "changes": changes})
}

func (h *routes) upload(c *gin.Context) {
	actor, id, ok := begin(c)
	if !ok {
		return
	}
	fh, ok := h.formFile(c)
	if !ok {
		return
	}
	if !ingest.IsSupportedExtension(fh.Filename) {
		fail(c, ingest.ErrUnsupported)
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	p, res, err := h.svc.ImportUpload(c.Request.Context(), actor, id, fh.Filename, f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paper": view(p, false), "result": res})
}

// formFile reads the multipart "file" field under the upload cap.
func (h *routes) formFile(c *gin.Context) (*multipart.FileHeader, bool) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		if status := StatusFor(err); status == http.StatusRequestEntityTooLarge {
			c.JSON(status, gin.H{"error": "upload too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return nil, false
	}
	return fh, true
}

func (h *routes) setStatus(c *gin.Context) {
	actor, id, ok := begin(c)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.svc.SetStatus(c.Request.Context(), actor, id, req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view(p, false))
}

func (h *routes) history(c *gin.Context) {
	actor, id, ok := begin(c)
	if !ok {
		return
	}
	hist, err := h.svc.History(c.Request.Context(), actor, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

func (h *routes) render(c *gin.Context) {
	actor, id, ok := begin(c)
	if !ok {
		return
	}
	sections, err := h.svc.Render(c.Request.Context(), actor, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "order": paper.SectionNames(), "sections": sections})
}

func (h *routes) addImage(c *gin.Context) {
	actor, id, ok := begin(c)
	if !ok {
		return
	}
	fh, ok := h.formFile(c)
	if !ok {
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		fail(c, err)
		return
	}
	n, err := h.svc.AddImage(c.Request.Context(), actor, id, data)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"index": n, "placeholder": attachments.Placeholder("image", n)})
}

func (h *routes) image(c *gin.Context) {
	actor, id, ok := begin(c)
	if !ok {
		return
	}
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image index"})
		return
	}
	img, err := h.svc.Image(c.Request.Context(), actor, id, n)
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, img.ContentType, img.Data)
}

func (h *routes) addTable(c *gin.Context) {
	actor, id, ok := begin(c)
	if !ok {
		return
	}
	var req struct {
		Rows int `json:"rows"`
		Cols int `json:"cols"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := h.svc.AddBlankTable(c.Request.Context(), actor, id, req.Rows, req.Cols)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"index": n, "placeholder": attachments.Placeholder("table", n)})
}

func (h *routes) addReview(c *gin.Context) {
	actor, id, ok := begin(c)
	if !ok {
		return
	}
	var req struct {
		Suggestions    string `json:"suggestions"`
		OverallComment string `json:"overallComment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rv, err := h.svc.AddReview(c.Request.Context(), actor, id, req.Suggestions, req.OverallComment)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rv)
}

func (h *routes) reviews(c *gin.Context) {
	actor, id, ok := begin(c)
	if !ok {
		return
	}
	list, err := h.svc.Reviews(c.Request.Context(), actor, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
