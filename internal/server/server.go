package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/wrenfield/starling/internal/backup"
	"github.com/wrenfield/starling/internal/config"
	"github.com/wrenfield/starling/internal/handler"
	"github.com/wrenfield/starling/internal/ledger"
	"github.com/wrenfield/starling/internal/lifecycle"
	"github.com/wrenfield/starling/internal/middleware"
	"github.com/wrenfield/starling/internal/notify"
	"github.com/wrenfield/starling/internal/push"
	"github.com/wrenfield/starling/internal/store"
	"github.com/wrenfield/starling/internal/synccache"
	ws "github.com/wrenfield/starling/internal/websocket"
)

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	familyH       *handler.FamilyHandler
	taskH         *handler.TaskHandler
	rewardH       *handler.RewardHandler
	notificationH *handler.NotificationHandler
	settingsH     *handler.SettingsHandler
	syncH         *handler.SyncHandler
	backupH       *handler.BackupHandler
	pushH         *handler.PushHandler
	rateLimiter   *middleware.RateLimiter
	backupManager *backup.Manager
	pushScheduler *push.Scheduler
	jwtSecret     []byte
	logger        *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	familyStore := store.NewFamilyStore(db)
	taskStore := store.NewTaskStore(db)
	rewardStore := store.NewRewardStore(db)
	settingsStore := store.NewSettingsStore(db)
	notificationStore := store.NewNotificationStore(db)
	pushStore := store.NewPushStore(db)
	syncOpStore := store.NewSyncOpStore(db)
	backupStore := store.NewBackupStore(db)

	starLedger := ledger.New(db)

	pushLogger := logger.With("component", "push")
	var pushSvc *push.Service
	var pushSched *push.Scheduler
	var pushH *handler.PushHandler
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
		pushSched = push.NewScheduler(pushSvc, pushStore, taskStore, familyStore, cfg.ReminderHour, pushLogger)
		pushH = handler.NewPushHandler(pushStore, pushSvc, pushLogger)
	}

	// A nil *push.Service must stay a nil Pusher interface or the
	// dispatcher would try to call it.
	var pusher notify.Pusher
	if pushSvc != nil {
		pusher = pushSvc
	}
	dispatcher := notify.NewDispatcher(notificationStore, pushStore, familyStore, pusher, hub, logger.With("component", "notify"))

	cache := synccache.NewCache(familyStore, taskStore, starLedger, cfg.SnapshotTTL, logger.With("component", "synccache"))

	// Every lifecycle event means balances or completions changed, so the
	// family's cached snapshot is stale.
	sink := lifecycle.SinkFunc(func(e lifecycle.Event) {
		dispatcher.Emit(e)
		cache.Invalidate(e.FamilyID)
	})

	taskLC := lifecycle.NewTaskLifecycle(db, taskStore, sink, logger.With("component", "task_lifecycle"))
	policy := lifecycle.NewThresholdPolicy(settingsStore)
	redeemLC := lifecycle.NewRedemptionLifecycle(db, rewardStore, policy, sink, logger.With("component", "redemption_lifecycle"))

	replayer := synccache.NewReplayer(syncOpStore, taskLC, redeemLC, cache)

	backupMgr := backup.NewManager(cfg.Backup, db, backupStore, logger.With("component", "backup"))

	secret := []byte(cfg.JWTSecret)

	return &Server{
		db:            db,
		hub:           hub,
		familyH:       handler.NewFamilyHandler(familyStore, starLedger, secret, cfg.TokenTTL, logger.With("component", "family")),
		taskH:         handler.NewTaskHandler(taskStore, taskLC, logger.With("component", "task")),
		rewardH:       handler.NewRewardHandler(rewardStore, redeemLC, logger.With("component", "reward")),
		notificationH: handler.NewNotificationHandler(notificationStore, logger.With("component", "notification")),
		settingsH:     handler.NewSettingsHandler(settingsStore, logger.With("component", "settings")),
		syncH:         handler.NewSyncHandler(cache, replayer, logger.With("component", "sync")),
		backupH:       handler.NewBackupHandler(backupMgr, backupStore, logger.With("component", "backup_handler")),
		pushH:         pushH,
		rateLimiter:   middleware.NewRateLimiter(),
		backupManager: backupMgr,
		pushScheduler: pushSched,
		jwtSecret:     secret,
		logger:        logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// PushScheduler returns the push notification scheduler, nil when VAPID
// keys are not configured.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/register", s.rateLimitedHandler(s.familyH.Register))
	outerMux.HandleFunc("POST /api/login", s.rateLimitedHandler(s.familyH.Login))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes behind RequireAuth
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.jwtSecret)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func parentOnly(h http.HandlerFunc) http.Handler {
	return middleware.RequireParent(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Family and member routes
	mux.HandleFunc("GET /api/family", s.familyH.GetFamily)
	mux.HandleFunc("GET /api/members", s.familyH.ListMembers)
	mux.Handle("POST /api/members", parentOnly(s.familyH.CreateMember))
	mux.Handle("PUT /api/members/{id}", parentOnly(s.familyH.UpdateMember))
	mux.Handle("DELETE /api/members/{id}", parentOnly(s.familyH.DeleteMember))
	mux.Handle("POST /api/members/{id}/pin", parentOnly(s.familyH.SetPIN))
	mux.Handle("DELETE /api/members/{id}/pin", parentOnly(s.familyH.ClearPIN))

	// Star ledger routes
	mux.HandleFunc("GET /api/members/{id}/balances", s.familyH.Balances)
	mux.HandleFunc("GET /api/members/{id}/history", s.familyH.History)

	// Task routes
	mux.Handle("POST /api/tasks", parentOnly(s.taskH.Create))
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.Handle("PUT /api/tasks/{id}", parentOnly(s.taskH.Update))
	mux.Handle("POST /api/tasks/{id}/archive", parentOnly(s.taskH.Archive))
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.taskH.Complete)

	// Completion routes
	mux.HandleFunc("GET /api/completions", s.taskH.ListCompletions)
	mux.Handle("POST /api/completions/{id}/approve", parentOnly(s.taskH.Approve))
	mux.Handle("POST /api/completions/{id}/reject", parentOnly(s.taskH.Reject))

	// Reward routes
	mux.Handle("POST /api/rewards", parentOnly(s.rewardH.Create))
	mux.HandleFunc("GET /api/rewards", s.rewardH.List)
	mux.Handle("PUT /api/rewards/{id}", parentOnly(s.rewardH.Update))
	mux.Handle("DELETE /api/rewards/{id}", parentOnly(s.rewardH.Delete))
	mux.HandleFunc("POST /api/rewards/{id}/redeem", s.rewardH.Redeem)

	// Reward request routes
	mux.HandleFunc("GET /api/reward-requests", s.rewardH.ListRequests)
	mux.Handle("POST /api/reward-requests/{id}/approve", parentOnly(s.rewardH.Approve))
	mux.Handle("POST /api/reward-requests/{id}/reject", parentOnly(s.rewardH.Reject))

	// Notification routes
	mux.HandleFunc("GET /api/notifications", s.notificationH.List)
	mux.HandleFunc("GET /api/notifications/unread-count", s.notificationH.UnreadCount)
	mux.HandleFunc("POST /api/notifications/{id}/read", s.notificationH.MarkRead)
	mux.HandleFunc("POST /api/notifications/read-all", s.notificationH.MarkAllRead)

	// Settings routes
	mux.HandleFunc("GET /api/settings/auto-approve", s.settingsH.GetAutoApprove)
	mux.Handle("PUT /api/settings/auto-approve", parentOnly(s.settingsH.UpdateAutoApprove))

	// Offline sync routes
	mux.HandleFunc("GET /api/sync/snapshot", s.syncH.Snapshot)
	mux.HandleFunc("POST /api/sync/replay", s.syncH.Replay)

	// Backup routes
	mux.Handle("POST /api/backups/run", parentOnly(s.backupH.RunNow))
	mux.Handle("GET /api/backups", parentOnly(s.backupH.List))

	// Push notification routes
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
		mux.HandleFunc("GET /api/push/preferences", s.pushH.GetPreferences)
		mux.HandleFunc("PUT /api/push/preferences", s.pushH.UpdatePreferences)
		mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)
	}

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
}
