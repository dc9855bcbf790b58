package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/warden/internal/api/middleware"
	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/services"
)

// BlockedIPHandler exposes the block registry to administrators.
type BlockedIPHandler struct {
	service *services.BlockService
}

func NewBlockedIPHandler(service *services.BlockService) *BlockedIPHandler {
	return &BlockedIPHandler{service: service}
}

type blockRequest struct {
	Type        models.BlockKind `json:"type" binding:"required"`
	IPAddress   string           `json:"ip_address"`
	MACAddress  string           `json:"mac_address"`
	Reason      string           `json:"reason"`
	Description string           `json:"description"`
	IsActive    *bool            `json:"is_active"`
	ExpiresAt   *time.Time       `json:"expires_at"`
}

// entry converts the request into a BlockEntry. An omitted is_active means
// active.
func (r blockRequest) entry() *models.BlockEntry {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return &models.BlockEntry{
		Kind:        r.Type,
		IPAddress:   r.IPAddress,
		MACAddress:  r.MACAddress,
		Reason:      r.Reason,
		Description: r.Description,
		IsActive:    active,
		ExpiresAt:   r.ExpiresAt,
	}
}

// List handles GET /api/v1/blocked-ips
func (h *BlockedIPHandler) List(c *gin.Context) {
	f := services.BlockFilter{
		Search:    c.Query("search"),
		Kind:      models.BlockKind(c.Query("type")),
		Sort:      c.Query("sort"),
		Direction: c.Query("direction"),
	}
	switch c.Query("status") {
	case "":
	case "active":
		f.Active = boolPtr(true)
	case "inactive":
		f.Active = boolPtr(false)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active or inactive", "field": "status"})
		return
	}
	var ok bool
	if f.Page, ok = queryInt(c, "page"); !ok {
		return
	}
	if f.PerPage, ok = queryInt(c, "per_page"); !ok {
		return
	}

	page, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Create handles POST /api/v1/blocked-ips
func (h *BlockedIPHandler) Create(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry := req.entry()
	entry.BlockedBy = actorID(c)

	if err := h.service.Create(c.Request.Context(), entry); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// Get handles GET /api/v1/blocked-ips/:id
func (h *BlockedIPHandler) Get(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	entry, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Update handles PUT /api/v1/blocked-ips/:id
func (h *BlockedIPHandler) Update(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.service.Update(c.Request.Context(), id, req.entry(), actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Delete handles DELETE /api/v1/blocked-ips/:id
func (h *BlockedIPHandler) Delete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, actorID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "block entry deleted"})
}

// Toggle handles PATCH /api/v1/blocked-ips/:id/toggle-status
func (h *BlockedIPHandler) Toggle(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	entry, err := h.service.Toggle(c.Request.Context(), id, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Stats handles GET /api/v1/blocked-ips/stats
func (h *BlockedIPHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// respondError maps service errors onto HTTP responses. Unexpected errors are
// logged and reported without detail.
func respondError(c *gin.Context, err error) {
	var fe *services.FieldError
	switch {
	case errors.As(err, &fe):
		c.JSON(http.StatusBadRequest, gin.H{"error": fe.Err.Error(), "field": fe.Field})
	case errors.Is(err, services.ErrBlockNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "block entry not found"})
	case errors.Is(err, services.ErrInvalidRetention):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": "days"})
	default:
		middleware.GetRequestLogger(c).WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ID"})
		return 0, false
	}
	return uint(id), true
}

// queryInt parses an optional non-negative integer query parameter. On a
// malformed value it writes a 400 and returns false.
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a non-negative integer", "field": name})
		return 0, false
	}
	return n, true
}

// actorID returns the authenticated operator, if any.
func actorID(c *gin.Context) *uint {
	v, ok := c.Get("userID")
	if !ok {
		return nil
	}
	id, ok := v.(uint)
	if !ok || id == 0 {
		return nil
	}
	return &id
}

func boolPtr(b bool) *bool { return &b }
