package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bthode/engawa/app/database"
	"github.com/bthode/engawa/app/tasks"
)

func NewHandler(subRepo database.SubscriptionRepository, videoRepo database.VideoRepository,
	scheduler tasks.SchedulerInterface, version string) *Handler {
	return &Handler{
		subRepo:   subRepo,
		videoRepo: videoRepo,
		scheduler: scheduler,
		version:   version,
	}
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.In(time.Local).Format(time.RFC3339)
	return &s
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	if count, err := h.subRepo.GetSubscriptionCount(c.Request.Context()); err == nil {
		health["subscriptions"] = count
	} else {
		slog.Error("Database error", "operation", "count_subscriptions", "error", err)
		health["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	counts, err := h.videoRepo.GetStatusCounts(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "status_counts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	stats := gin.H{
		"videos": counts,
		"total":  counts.Total(),
	}
	if report := h.scheduler.LastReport(); report != nil {
		stats["last_cycle"] = report
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) APIListSubscriptions(c *gin.Context) {
	ctx := c.Request.Context()

	subs, err := h.subRepo.ListSubscriptions(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "list_subscriptions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	counts, err := h.videoRepo.GetStatusCountsBySubscription(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "status_counts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	out := make([]subscriptionInfo, 0, len(subs))
	for _, sub := range subs {
		videos := counts[sub.ID]
		if videos == nil {
			videos = database.StatusCounts{}
		}
		out = append(out, subscriptionInfo{
			Name:         sub.Name,
			Title:        sub.Title,
			URL:          sub.URL,
			FeedURL:      sub.FeedURL,
			Destination:  sub.Destination.Path,
			Filters:      len(sub.Filters),
			Retention:    string(sub.Retention.Type),
			LastSyncedAt: formatOptionalTime(sub.LastSyncedAt),
			Videos:       videos,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"subscriptions": out,
		"total":         len(out),
	})
}

func (h *Handler) APIGetSubscriptionVideos(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("name")

	sub, err := h.subRepo.GetSubscriptionByName(ctx, name)
	if err != nil {
		slog.Error("Database error", "operation", "get_subscription", "subscription", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
		return
	}

	var statuses []database.VideoStatus
	if status := c.Query("status"); status != "" {
		s := database.VideoStatus(status)
		if !s.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status", "status": status})
			return
		}
		statuses = append(statuses, s)
	}

	videos, err := h.videoRepo.GetVideos(ctx, sub.ID, statuses...)
	if err != nil {
		slog.Error("Database error", "operation", "get_videos", "subscription", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	out := make([]videoInfo, 0, len(videos))
	for _, v := range videos {
		info := videoInfo{
			RemoteID:        v.RemoteID,
			Title:           v.Title,
			Link:            v.Link,
			PublishedAt:     formatOptionalTime(v.PublishedAt),
			DurationSeconds: v.DurationSeconds,
			Status:          string(v.Status),
			RetryCount:      v.RetryCount,
			FilePath:        v.FilePath,
		}
		if v.MetadataError != nil {
			kind := string(*v.MetadataError)
			info.MetadataError = &kind
		}
		out = append(out, info)
	}

	c.JSON(http.StatusOK, gin.H{
		"subscription": sub.Name,
		"videos":       out,
		"total":        len(out),
	})
}

func (h *Handler) APITriggerSync(c *gin.Context) {
	if !h.scheduler.TriggerNow() {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": "A sync request is already queued",
		})
		return
	}

	slog.Info("Manual sync requested", "client", c.ClientIP())
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Sync cycle triggered",
	})
}
