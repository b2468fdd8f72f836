package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/claude-gate/internal/store/model"
)

// parsePeriod maps a period string onto (cutoff, bucket, granularity).
func parsePeriod(period string) (cutoffMS, bucketMS int64, granularity string) {
	switch period {
	case "7d":
		return 7 * 24 * 3600 * 1000, 6 * 3600 * 1000, "6h"
	case "30d":
		return 30 * 24 * 3600 * 1000, 24 * 3600 * 1000, "day"
	default: // 24h
		return 24 * 3600 * 1000, 3600 * 1000, "hour"
	}
}

// Timeseries returns bucketed usage sums for the requested period, with
// empty buckets filled so charts render gapless.
func (h *Handler) Timeseries(c *gin.Context) {
	period := c.DefaultQuery("period", "24h")
	cutoffMS, bucketMS, granularity := parsePeriod(period)
	now := time.Now().UnixMilli()
	since := now - cutoffMS

	points, err := h.repo.Usage().Timeseries(c.Request.Context(), since, bucketMS)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate usage"})
		return
	}

	byBucket := make(map[int64]model.TimeseriesPoint, len(points))
	for _, p := range points {
		byBucket[p.Timestamp] = p
	}

	filled := make([]model.TimeseriesPoint, 0, cutoffMS/bucketMS+1)
	for ts := (since / bucketMS) * bucketMS; ts <= (now/bucketMS)*bucketMS; ts += bucketMS {
		if p, ok := byBucket[ts]; ok {
			filled = append(filled, p)
		} else {
			filled = append(filled, model.TimeseriesPoint{Timestamp: ts})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"period":      period,
		"granularity": granularity,
		"points":      filled,
	})
}

func (h *Handler) UsageByModel(c *gin.Context) {
	period := c.DefaultQuery("period", "24h")
	cutoffMS, _, _ := parsePeriod(period)
	since := time.Now().UnixMilli() - cutoffMS

	rows, err := h.repo.Usage().ByModel(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"period": period, "models": rows})
}

func (h *Handler) UsageByKey(c *gin.Context) {
	period := c.DefaultQuery("period", "24h")
	cutoffMS, _, _ := parsePeriod(period)
	since := time.Now().UnixMilli() - cutoffMS

	rows, err := h.repo.Usage().ByKey(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"period": period, "keys": rows})
}
