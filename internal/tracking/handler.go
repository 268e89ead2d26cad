package tracking

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/access"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/auth"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/search"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/workflow"
)

// maxUpload bounds an attached file.
const maxUpload = 25 << 20

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the document endpoints under an authenticated group.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	docs := r.Group("/documents")
	{
		docs.POST("", h.Create)
		docs.GET("", h.List)
		docs.GET("/search", h.Search)
		docs.GET("/track/:number", h.Track)
		docs.GET("/activity", h.Activity)
		docs.GET("/statuses", h.Statuses)
		docs.POST("/bulk/:action", h.Bulk)
		docs.GET("/:id", h.Get)
		docs.PATCH("/:id", h.Update)
		docs.POST("/:id/actions/:action", h.Perform)
		docs.GET("/:id/status", h.Status)
		docs.GET("/:id/logs", h.Logs)
		docs.GET("/:id/routes", h.Routes)
		docs.GET("/:id/signatures", h.Signatures)
		docs.GET("/:id/signatures/verify", h.VerifySignatures)
		docs.POST("/:id/file", h.Upload)
		docs.GET("/:id/file", h.Download)
	}
}

func (h *Handler) Create(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req workflow.NewDocument
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	doc, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) List(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	filters := documents.Filters{
		Number: c.Query("number"),
		Query:  c.Query("q"),
	}
	filters.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	filters.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	if v := c.Query("status"); v != "" {
		st := documents.Status(v)
		if !st.IsValid() {
			badRequest(c, "unknown status "+v)
			return
		}
		filters.Status = &st
	}
	if v := c.Query("type"); v != "" {
		dt := documents.DocumentType(v)
		if !dt.IsValid() {
			badRequest(c, "unknown document type "+v)
			return
		}
		filters.Type = &dt
	}
	var err error
	if filters.DepartmentID, err = optionalUUID(c, "department_id"); err != nil {
		badRequest(c, "invalid department_id")
		return
	}
	if filters.AssignedTo, err = optionalUUID(c, "assigned_to"); err != nil {
		badRequest(c, "invalid assigned_to")
		return
	}
	if filters.CreatedBy, err = optionalUUID(c, "created_by"); err != nil {
		badRequest(c, "invalid created_by")
		return
	}

	page, err := h.service.List(c.Request.Context(), actor, filters)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) Search(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	q := search.Query{
		Text:   c.Query("q"),
		Status: c.Query("status"),
		Type:   c.Query("type"),
	}
	q.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	q.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	dept, err := optionalUUID(c, "department_id")
	if err != nil {
		badRequest(c, "invalid department_id")
		return
	}
	q.DepartmentID = dept

	page, err := h.service.Search(c.Request.Context(), actor, q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) Track(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	source := SourceManual
	if c.Query("source") == string(SourceScan) {
		source = SourceScan
	}

	doc, err := h.service.Track(c.Request.Context(), actor, c.Param("number"), source)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) Get(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	doc, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) Update(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	var patch workflow.DetailsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err.Error())
		return
	}

	doc, err := h.service.Update(c.Request.Context(), actor, id, patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) Perform(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	action, valid := workflow.ParseAction(c.Param("action"))
	if !valid {
		badRequest(c, "unknown action "+c.Param("action"))
		return
	}
	var params workflow.Params
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	doc, err := h.service.Perform(c.Request.Context(), actor, action, id, params)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// BulkRequest is the body of a bulk action.
type BulkRequest struct {
	DocumentIDs []uuid.UUID `json:"document_ids" binding:"required"`
	workflow.Params
}

func (h *Handler) Bulk(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	action, valid := workflow.ParseAction(c.Param("action"))
	if !valid {
		badRequest(c, "unknown action "+c.Param("action"))
		return
	}
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.service.Bulk(c.Request.Context(), actor, action, req.DocumentIDs, req.Params)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) Status(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	view, err := h.service.Status(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) Logs(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.service.History(c.Request.Context(), actor, id, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries, "count": len(entries)})
}

func (h *Handler) Activity(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	entries, err := h.service.Activity(c.Request.Context(), actor, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries, "count": len(entries)})
}

func (h *Handler) Statuses(c *gin.Context) {
	statuses := h.service.Statuses()
	c.JSON(http.StatusOK, gin.H{"statuses": statuses, "count": len(statuses)})
}

func (h *Handler) Routes(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	routes, err := h.service.Routes(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routes": routes, "count": len(routes)})
}

func (h *Handler) Signatures(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	sigs, err := h.service.Signatures(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signatures": sigs, "count": len(sigs)})
}

func (h *Handler) VerifySignatures(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	checks, err := h.service.VerifySignatures(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checks": checks, "count": len(checks)})
}

func (h *Handler) Upload(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUpload)
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large", "kind": string(workflow.KindInvalidInput)})
			return
		}
		badRequest(c, "file is required")
		return
	}

	f, err := file.Open()
	if err != nil {
		badRequest(c, "unreadable file")
		return
	}
	defer f.Close()

	doc, err := h.service.Attach(c.Request.Context(), actor, id, file.Filename, f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) Download(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	url, err := h.service.FileURL(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in": int(presignTTL.Seconds())})
}

func (h *Handler) actor(c *gin.Context) (access.Actor, bool) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "kind": "unauthorized"})
		return access.Actor{}, false
	}
	return actor, true
}

func (h *Handler) actorAndID(c *gin.Context) (access.Actor, uuid.UUID, bool) {
	actor, ok := h.actor(c)
	if !ok {
		return access.Actor{}, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid document id")
		return access.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := workflow.MapHTTPStatus(err)
	kind := workflow.KindOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Document request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": string(kind)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "kind": string(workflow.KindInvalidInput)})
}

func optionalUUID(c *gin.Context, name string) (*uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
