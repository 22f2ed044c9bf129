package api

import (
	"client-registry/internal/config"
	"client-registry/internal/models"
	"client-registry/internal/normalize"
	"client-registry/internal/services"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Rescheduler applies a changed scan interval to the running scheduler
type Rescheduler interface {
	Reschedule(scanInterval string, retentionDays int) error
}

// Deps are the services the API is built from
type Deps struct {
	Config        *config.Config
	Clients       *services.ClientService
	Monitor       *services.MonitorService
	Notifications *services.NotificationService
	Notify        *services.NotifyService
	Auth          *services.AuthService
	Spreadsheet   *services.SpreadsheetService
	Settings      *services.SettingsService
	Chat          *services.ChatService
	Backup        *services.BackupService
	Scheduler     Rescheduler
	Now           func() time.Time
	Log           *zap.Logger
}

// Handler holds service dependencies
type Handler struct {
	cfgMu         sync.Mutex
	cfg           *config.Config
	clients       *services.ClientService
	monitor       *services.MonitorService
	notifications *services.NotificationService
	notify        *services.NotifyService
	auth          *services.AuthService
	spreadsheet   *services.SpreadsheetService
	settings      *services.SettingsService
	chat          *services.ChatService
	backup        *services.BackupService
	scheduler     Rescheduler
	now           func() time.Time
	log           *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(d Deps) *Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Handler{
		cfg:           d.Config,
		clients:       d.Clients,
		monitor:       d.Monitor,
		notifications: d.Notifications,
		notify:        d.Notify,
		auth:          d.Auth,
		spreadsheet:   d.Spreadsheet,
		settings:      d.Settings,
		chat:          d.Chat,
		backup:        d.Backup,
		scheduler:     d.Scheduler,
		now:           d.Now,
		log:           d.Log.With(zap.String("component", "api")),
	}
}

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, handler *Handler) {
	api := r.Group("/api/v1")
	{
		api.GET("/health", handler.Health)

		// Authentication (no auth required)
		api.POST("/auth/login", handler.Login)
		api.POST("/auth/remember", handler.Remember)
	}

	protected := api.Group("")
	protected.Use(RequireAuth(handler.auth))
	{
		protected.GET("/auth/me", handler.Me)
		protected.POST("/auth/logout", handler.Logout)
		protected.POST("/auth/change-password", handler.ChangePassword)

		// Client registry
		protected.GET("/clients", handler.ListClients)
		protected.POST("/clients", handler.CreateClient)
		protected.GET("/clients/export", handler.ExportClients)
		protected.POST("/clients/import", handler.ImportClients)
		protected.GET("/clients/:id", handler.GetClient)
		protected.PUT("/clients/:id", handler.UpdateClient)
		protected.DELETE("/clients/:id", handler.DeleteClient)

		// Dashboard statistics
		protected.GET("/dashboard/stats", handler.GetStats)
		protected.GET("/dashboard/monthly", handler.GetMonthlyStats)

		// Notifications
		protected.GET("/notifications", handler.ListNotifications)
		protected.GET("/notifications/unread-count", handler.UnreadCount)
		protected.POST("/notifications/read-all", handler.MarkAllRead)
		protected.POST("/notifications/scan", handler.RunScan)
		protected.POST("/notifications/:id/read", handler.MarkRead)
		protected.DELETE("/notifications", handler.ClearNotifications)
		protected.GET("/notifications/deliveries", handler.ListDeliveries)

		// Operator chat
		protected.GET("/chat/messages", handler.ListChatMessages)
		protected.POST("/chat/messages", handler.SendChatMessage)
		protected.GET("/chat/unread-count", handler.ChatUnreadCount)
		protected.POST("/chat/read", handler.MarkChatRead)
		protected.GET("/chat/online", handler.OnlineUsers)
		protected.POST("/chat/presence", handler.UpdatePresence)
	}

	chatAdmin := protected.Group("")
	chatAdmin.Use(RequirePermission(handler.auth, "manage_chat"))
	{
		chatAdmin.DELETE("/chat/messages", handler.ClearChat)
	}

	backup := protected.Group("")
	backup.Use(RequirePermission(handler.auth, "backup"))
	{
		backup.GET("/backups", handler.ListBackups)
		backup.POST("/backups", handler.CreateBackup)
	}

	admin := protected.Group("")
	admin.Use(RequirePermission(handler.auth, "settings"))
	{
		admin.GET("/settings", handler.GetSettings)
		admin.PUT("/settings", handler.UpdateSettings)
	}
}

// respondError maps service errors to HTTP status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	var validation *services.ValidationError
	var duplicate *services.DuplicateIdentityError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": validation.Errors})
	case errors.As(err, &duplicate):
		c.JSON(http.StatusConflict, gin.H{
			"error": duplicate.Error(),
			"conflict": gin.H{
				"id":            duplicate.ConflictID,
				"name":          duplicate.DisplayName,
				"date_of_birth": duplicate.DateOfBirth,
			},
		})
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": services.ErrInvalidCredentials.Error()})
	case errors.Is(err, services.ErrNoSavedSession):
		c.JSON(http.StatusUnauthorized, gin.H{"error": services.ErrNoSavedSession.Error()})
	case errors.Is(err, services.ErrStoreBusy):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": services.ErrStoreBusy.Error()})
	default:
		h.log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client ID"})
		return 0, false
	}
	return uint(id), true
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": h.now().Format(time.RFC3339)})
}

type clientRequest struct {
	FullName       string `json:"full_name"`
	LastName       string `json:"last_name"`
	FirstName      string `json:"first_name"`
	MiddleName     string `json:"middle_name"`
	DateOfBirth    string `json:"date_of_birth"`
	Phone          string `json:"phone"`
	ContractNumber string `json:"contract_number"`
	PlanStartDate  string `json:"plan_start_date"`
	PlanEndDate    string `json:"plan_end_date"`
	GroupLabel     string `json:"group_label"`
}

func (r *clientRequest) toClient() *models.Client {
	c := &models.Client{
		LastName:       r.LastName,
		FirstName:      r.FirstName,
		MiddleName:     r.MiddleName,
		DateOfBirth:    r.DateOfBirth,
		Phone:          r.Phone,
		ContractNumber: r.ContractNumber,
		PlanStartDate:  r.PlanStartDate,
		PlanEndDate:    r.PlanEndDate,
		GroupLabel:     r.GroupLabel,
	}
	if c.LastName == "" && c.FirstName == "" && r.FullName != "" {
		c.LastName, c.FirstName, c.MiddleName = normalize.SplitFullName(r.FullName)
	}
	return c
}

// ListClients returns clients matching ?q= with their plan status
func (h *Handler) ListClients(c *gin.Context) {
	clients, err := h.clients.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, services.WithStatus(clients, h.now()))
}

// CreateClient adds a new client
func (h *Handler) CreateClient(c *gin.Context) {
	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client := req.toClient()
	if err := h.clients.CheckAndInsert(c.Request.Context(), client); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, client)
}

// GetClient retrieves a single client
func (h *Handler) GetClient(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	client, err := h.clients.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, services.WithStatus([]models.Client{*client}, h.now())[0])
}

// UpdateClient replaces a client record
func (h *Handler) UpdateClient(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client := req.toClient()
	if err := h.clients.CheckAndUpdate(c.Request.Context(), client, id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, client)
}

// DeleteClient removes a client
func (h *Handler) DeleteClient(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.clients.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Client deleted successfully"})
}

// ImportClients imports an uploaded xlsx workbook from the "file" form field
func (h *Handler) ImportClients(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	defer file.Close()

	report, err := h.spreadsheet.ImportClients(c.Request.Context(), file)
	if err != nil {
		var validation *services.ValidationError
		if report == nil && !errors.As(err, &validation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// ExportClients streams every client as an xlsx workbook
func (h *Handler) ExportClients(c *gin.Context) {
	filename := fmt.Sprintf("clients_%s.xlsx", h.now().Format("20060102_150405"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	if err := h.spreadsheet.ExportClients(c.Request.Context(), c.Writer); err != nil {
		h.log.Error("Export failed", zap.Error(err))
		if !c.Writer.Written() {
			h.respondError(c, err)
		}
		return
	}
	c.Status(http.StatusOK)
}

// GetStats retrieves dashboard statistics
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.clients.Stats(c.Request.Context(), h.now())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"clients":              stats,
		"unread_notifications": h.notifications.UnreadCount(),
	})
}

// GetMonthlyStats counts clients by plan start month
func (h *Handler) GetMonthlyStats(c *gin.Context) {
	months, err := h.clients.MonthlyStats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, months)
}

// ListBackups returns existing store snapshots
func (h *Handler) ListBackups(c *gin.Context) {
	files, err := h.backup.List()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

// CreateBackup snapshots the store
func (h *Handler) CreateBackup(c *gin.Context) {
	path, err := h.backup.Create(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"file": filepath.Base(path)})
}

// ListNotifications returns queued events; ?unread=true limits to unread
func (h *Handler) ListNotifications(c *gin.Context) {
	unreadOnly, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))
	c.JSON(http.StatusOK, h.notifications.GetNotifications(unreadOnly))
}

// UnreadCount returns the number of unread events
func (h *Handler) UnreadCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"unread": h.notifications.UnreadCount()})
}

// MarkRead flags one event as read
func (h *Handler) MarkRead(c *gin.Context) {
	if err := h.notifications.MarkRead(c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

// MarkAllRead flags every event as read
func (h *Handler) MarkAllRead(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"updated": h.notifications.MarkAllRead()})
}

// ClearNotifications drops read events older than ?older_than_days=
func (h *Handler) ClearNotifications(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("older_than_days", "0"))
	if err != nil || days < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "older_than_days must be a non-negative integer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": h.notifications.ClearOlderThan(days)})
}

// RunScan runs the notification checks now
func (h *Handler) RunScan(c *gin.Context) {
	result, err := h.monitor.RunChecks(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListDeliveries returns recent outbound delivery attempts
func (h *Handler) ListDeliveries(c *gin.Context) {
	rows, err := h.notify.History(c.Request.Context(), 100)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// GetSettings retrieves stored runtime settings
func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.settings.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings stores settings and applies them to the running services
func (h *Handler) UpdateSettings(c *gin.Context) {
	var settings map[string]string
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if spec, ok := settings["monitor.scan_interval"]; ok && spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid scan interval: %v", err)})
			return
		}
	}

	if err := h.settings.Save(c.Request.Context(), settings); err != nil {
		h.respondError(c, err)
		return
	}

	h.cfgMu.Lock()
	h.cfg.ApplySettings(settings)
	monitorCfg := h.cfg.Monitor
	notifyCfg := h.cfg.Notifications
	h.cfgMu.Unlock()

	h.notify.Reload(&notifyCfg)
	if h.scheduler != nil {
		if err := h.scheduler.Reschedule(monitorCfg.ScanInterval, monitorCfg.RetentionDays); err != nil {
			h.respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Settings updated successfully"})
}
