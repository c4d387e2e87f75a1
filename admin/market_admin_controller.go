package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"market_backend/models"
	"market_backend/scheduler"
	"market_backend/services/marketconfig"
)

// PreferenceStore is the admin write side of the configuration store
type PreferenceStore interface {
	GetProviderPreference(ctx context.Context, category models.Category) models.ProviderPreference
	ListProviderPreferences(ctx context.Context) []models.ProviderPreference
	UpdateProviderPreference(ctx context.Context, in marketconfig.PreferenceInput) (models.ProviderPreference, error)
	ClearConfigCache(ctx context.Context)
}

type SchedulerControl interface {
	Start() error
	Stop()
	Restart() error
	SetInterval(job scheduler.JobName, d time.Duration) error
	Status() scheduler.Status
}

type RefreshTrigger interface {
	TriggerRefresh(category models.Category) bool
}

// MarketAdminController exposes provider preferences, cache and scheduler control to the CMS
type MarketAdminController struct {
	prefs     PreferenceStore
	scheduler SchedulerControl
	refresher RefreshTrigger
	logger    logrus.FieldLogger
}

func NewMarketAdminController(prefs PreferenceStore, sched SchedulerControl, refresher RefreshTrigger, logger logrus.FieldLogger) *MarketAdminController {
	return &MarketAdminController{prefs: prefs, scheduler: sched, refresher: refresher, logger: logger}
}

func (ac *MarketAdminController) category(c *gin.Context) (models.Category, bool) {
	category, err := models.ParseCategory(c.Param("category"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown category", "category": c.Param("category")})
		return "", false
	}
	return category, true
}

// ListPreferences returns the effective provider order of every category
// GET /admin/api/market/preferences
func (ac *MarketAdminController) ListPreferences(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": ac.prefs.ListProviderPreferences(c.Request.Context())})
}

// GetPreference GET /admin/api/market/preferences/:category
func (ac *MarketAdminController) GetPreference(c *gin.Context) {
	category, ok := ac.category(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": ac.prefs.GetProviderPreference(c.Request.Context(), category)})
}

type preferenceRequest struct {
	ProviderOrder    []string       `json:"provider_order" binding:"required"`
	FallbackStrategy string         `json:"fallback_strategy"`
	Metadata         map[string]any `json:"metadata"`
}

// UpdatePreference sanitizes and stores a provider order
// PUT /admin/api/market/preferences/:category
func (ac *MarketAdminController) UpdatePreference(c *gin.Context) {
	category, ok := ac.category(c)
	if !ok {
		return
	}
	var req preferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pref, err := ac.prefs.UpdateProviderPreference(c.Request.Context(), marketconfig.PreferenceInput{
		Category:         category,
		ProviderOrder:    req.ProviderOrder,
		FallbackStrategy: req.FallbackStrategy,
		Metadata:         req.Metadata,
	})
	if err != nil {
		if errors.Is(err, models.ErrUnknownCategory) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ac.logger.WithError(err).WithField("category", category).Error("failed to update provider preference")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update provider preference"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pref})
}

// ClearCache drops cached symbol lists and preferences after an admin edit
// POST /admin/api/market/cache/clear
func (ac *MarketAdminController) ClearCache(c *gin.Context) {
	ac.prefs.ClearConfigCache(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Config cache cleared"})
}

// SchedulerStatus GET /admin/api/market/scheduler
func (ac *MarketAdminController) SchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, ac.scheduler.Status())
}

type intervalsRequest struct {
	Intervals map[string]string `json:"intervals" binding:"required"`
	Restart   bool              `json:"restart"`
}

// UpdateIntervals stores new job periods, e.g. {"intervals":{"crypto":"3m"},"restart":true}.
// Without restart they apply the next time the scheduler starts.
// PUT /admin/api/market/scheduler/intervals
func (ac *MarketAdminController) UpdateIntervals(c *gin.Context) {
	var req intervalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	parsed := make(map[scheduler.JobName]time.Duration, len(req.Intervals))
	for raw, value := range req.Intervals {
		job, err := scheduler.ParseJob(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid interval", "job": raw, "value": value})
			return
		}
		parsed[job] = d
	}
	for job, d := range parsed {
		if err := ac.scheduler.SetInterval(job, d); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if req.Restart && ac.scheduler.Status().Running {
		if err := ac.scheduler.Restart(); err != nil {
			ac.logger.WithError(err).Error("failed to restart scheduler")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to restart scheduler"})
			return
		}
	}
	c.JSON(http.StatusOK, ac.scheduler.Status())
}

// StartScheduler POST /admin/api/market/scheduler/start
func (ac *MarketAdminController) StartScheduler(c *gin.Context) {
	if err := ac.scheduler.Start(); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ac.scheduler.Status())
}

// StopScheduler POST /admin/api/market/scheduler/stop
func (ac *MarketAdminController) StopScheduler(c *gin.Context) {
	ac.scheduler.Stop()
	c.JSON(http.StatusOK, ac.scheduler.Status())
}

// RestartScheduler POST /admin/api/market/scheduler/restart
func (ac *MarketAdminController) RestartScheduler(c *gin.Context) {
	if err := ac.scheduler.Restart(); err != nil {
		ac.logger.WithError(err).Error("failed to restart scheduler")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to restart scheduler"})
		return
	}
	c.JSON(http.StatusOK, ac.scheduler.Status())
}

// TriggerRefresh starts a background update of one category
// POST /admin/api/market/refresh/:category
func (ac *MarketAdminController) TriggerRefresh(c *gin.Context) {
	category, ok := ac.category(c)
	if !ok {
		return
	}
	if !ac.refresher.TriggerRefresh(category) {
		c.JSON(http.StatusConflict, gin.H{"status": "already_running", "category": category})
		return
	}
	ac.logger.WithFields(logrus.Fields{"category": category, "admin": c.GetString("admin_email")}).Info("manual refresh triggered")
	c.JSON(http.StatusAccepted, gin.H{"status": "started", "category": category})
}
