package admin

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nulzo/claude-gate/internal/keys"
	"github.com/nulzo/claude-gate/internal/store/model"
)

type createKeyRequest struct {
	Name string `json:"name" binding:"required"`
}

type limitsRequest struct {
	FiveHourLimit *int64 `json:"five_hour_limit"`
	WeeklyLimit   *int64 `json:"weekly_limit"`
	TotalLimit    *int64 `json:"total_limit"`
}

type resetRequest struct {
	// Window is five_hour, weekly, total or empty for all.
	Window string `json:"window"`
}

func resetWindows(w string) []model.Window {
	switch model.Window(w) {
	case model.WindowFiveHour, model.WindowWeekly, model.WindowTotal:
		return []model.Window{model.Window(w)}
	}
	return nil
}

// CreateKey mints a key. The plaintext secret appears in this response and
// nowhere else.
func (h *Handler) CreateKey(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	secret := keys.GenerateSecret()
	key := &model.APIKey{
		ID:         uuid.NewString(),
		SecretHash: keys.Hash(secret),
		KeyPrefix:  secret[:len(keys.SecretPrefix)+4],
		Name:       req.Name,
		Enabled:    true,
		CreatedAt:  time.Now().UnixMilli(),
	}

	if err := h.repo.Keys().Create(c.Request.Context(), key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create key"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"key": key, "secret": secret})
}

func (h *Handler) ListKeys(c *gin.Context) {
	list, err := h.repo.Keys().List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list keys"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": list})
}

func (h *Handler) DeleteKey(c *gin.Context) {
	deleted, err := h.repo.Keys().Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete key"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type enableRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) SetKeyEnabled(c *gin.Context) {
	var req enableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}
	if err := h.repo.Keys().SetEnabled(c.Request.Context(), c.Param("id"), *req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) UpdateKeyLimits(c *gin.Context) {
	var req limitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limits"})
		return
	}
	limits := model.Limits{FiveHour: req.FiveHourLimit, Weekly: req.WeeklyLimit, Total: req.TotalLimit}
	if err := h.repo.Keys().SetLimits(c.Request.Context(), c.Param("id"), limits); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update limits"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetKeyUsage returns the live counters, expired windows masked.
func (h *Handler) GetKeyUsage(c *gin.Context) {
	id := c.Param("id")
	key, err := h.repo.Keys().Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}

	counters, err := h.quota.Snapshot(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"limits":   key.LimitsOf(),
		"counters": counters,
	})
}

func (h *Handler) ResetKeyUsage(c *gin.Context) {
	var req resetRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.quota.Reset(c.Request.Context(), c.Param("id"), "", resetWindows(req.Window)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset usage"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// --- per-key model access ---

type allowedModelsRequest struct {
	Models []string `json:"models"`
}

func (h *Handler) GetKeyModels(c *gin.Context) {
	models, err := h.repo.Keys().AllowedModels(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read model access"})
		return
	}
	// Empty list means all models allowed.
	c.JSON(http.StatusOK, gin.H{"models": models})
}

func (h *Handler) SetKeyModels(c *gin.Context) {
	var req allowedModelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid model list"})
		return
	}
	if err := h.repo.Keys().SetAllowedModels(c.Request.Context(), c.Param("id"), req.Models); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set model access"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// --- per-key per-model limits ---

func (h *Handler) SetKeyModelLimits(c *gin.Context) {
	var req limitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limits"})
		return
	}

	limits := &model.KeyModelLimits{
		KeyID: c.Param("id"),
		Model: c.Param("model"),
	}
	if req.FiveHourLimit != nil {
		limits.FiveHourLimit = sql.NullInt64{Int64: *req.FiveHourLimit, Valid: true}
	}
	if req.WeeklyLimit != nil {
		limits.WeeklyLimit = sql.NullInt64{Int64: *req.WeeklyLimit, Valid: true}
	}
	if req.TotalLimit != nil {
		limits.TotalLimit = sql.NullInt64{Int64: *req.TotalLimit, Valid: true}
	}

	if err := h.repo.Keys().SetModelLimits(c.Request.Context(), limits); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set model limits"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) RemoveKeyModelLimits(c *gin.Context) {
	removed, err := h.repo.Keys().RemoveModelLimits(c.Request.Context(), c.Param("id"), c.Param("model"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove model limits"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "no limits set"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) GetKeyModelUsage(c *gin.Context) {
	id := c.Param("id")

	limits, err := h.repo.Keys().ListModelLimits(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read model limits"})
		return
	}
	counters, err := h.quota.Snapshot(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read usage"})
		return
	}

	perModel := make([]model.UsageCounter, 0, len(counters))
	for _, counter := range counters {
		if counter.ModelID != "" {
			perModel = append(perModel, counter)
		}
	}

	c.JSON(http.StatusOK, gin.H{"limits": limits, "counters": perModel})
}

func (h *Handler) ResetKeyModelUsage(c *gin.Context) {
	var req resetRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.quota.Reset(c.Request.Context(), c.Param("id"), c.Param("model"), resetWindows(req.Window)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset usage"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
