package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/claude-gate/internal/store/model"
)

type modelRequest struct {
	ID              string `json:"id"`
	SortOrder       int    `json:"sort_order"`
	Enabled         *bool  `json:"enabled"`
	InputPrice      int64  `json:"input_price"`
	OutputPrice     int64  `json:"output_price"`
	CacheReadPrice  int64  `json:"cache_read_price"`
	CacheWritePrice int64  `json:"cache_write_price"`
}

func (r *modelRequest) toModel() *model.Model {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &model.Model{
		ID:              r.ID,
		SortOrder:       r.SortOrder,
		Enabled:         enabled,
		InputPrice:      r.InputPrice,
		OutputPrice:     r.OutputPrice,
		CacheReadPrice:  r.CacheReadPrice,
		CacheWritePrice: r.CacheWritePrice,
	}
}

func (h *Handler) ListModels(c *gin.Context) {
	models, err := h.repo.Models().List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list models"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

func (h *Handler) AddModel(c *gin.Context) {
	var req modelRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}
	if err := h.repo.Models().Create(c.Request.Context(), req.toModel()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "failed to add model"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true})
}

func (h *Handler) UpdateModel(c *gin.Context) {
	var req modelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid model"})
		return
	}
	req.ID = c.Param("id")
	if err := h.repo.Models().Update(c.Request.Context(), req.toModel()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update model"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) DeleteModel(c *gin.Context) {
	deleted, err := h.repo.Models().Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete model"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type reorderRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

func (h *Handler) ReorderModels(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
		return
	}
	if err := h.repo.Models().Reorder(c.Request.Context(), req.IDs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reorder models"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
