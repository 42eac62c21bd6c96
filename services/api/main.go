package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/crmnexus/internal/chat"
	"github.com/crmnexus/internal/config"
	"github.com/crmnexus/internal/events"
	"github.com/crmnexus/internal/fileserver"
	"github.com/crmnexus/internal/handler"
	"github.com/crmnexus/internal/logger"
	"github.com/crmnexus/internal/middleware"
	"github.com/crmnexus/internal/push"
	"github.com/crmnexus/internal/rbac"
	"github.com/crmnexus/internal/repository"
	"github.com/crmnexus/internal/service"
	"github.com/crmnexus/internal/startup"
	"github.com/crmnexus/internal/storage"
	"github.com/crmnexus/internal/storage/devstore"
	"github.com/crmnexus/internal/ws"
	"github.com/crmnexus/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB/Redis required)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}

	resetCtx, resetCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := pool.Exec(resetCtx, "UPDATE users SET is_online = false"); err != nil {
		logger.Errorf("reset online status: %v", err)
	}
	resetCancel()
	logger.Info("database connected, migrations applied")

	userRepo := repository.NewUserRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	groupRepo := repository.NewGroupRepository(pool)
	clientRepo := repository.NewClientRepository(pool)
	leadRepo := repository.NewLeadRepository(pool)
	projectRepo := repository.NewProjectRepository(pool)
	taskRepo := repository.NewTaskRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	docRepo := repository.NewDocumentRepository(pool)
	calRepo := repository.NewCalendarRepository(pool)
	internRepo := repository.NewInternRepository(pool)
	attRepo := repository.NewAttendanceRepository(pool)
	financeRepo := repository.NewFinanceRepository(pool)

	// В -dev секреты сессий живут в БД, шина событий в памяти (один инстанс).
	// В production для обоих нужен Redis.
	var (
		store storage.SessionStore
		bus   events.Bus
	)
	if *dev {
		store = devstore.New(sessionRepo)
		bus = events.NewMemoryBus()
		logger.Info("dev mode: session secrets in DB, event bus in memory")
		seedDevAdmin(pool)
	} else {
		redisClient := startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "")
		defer redisClient.Close()
		store = redisClient
		bus = events.NewRedisBus(redisClient.Raw())
	}

	resolver := rbac.NewResolver(profileRepo)
	var engine rbac.Engine
	if cfg.PermissionEngine == "allow_all" {
		engine = rbac.AllowAllEngine{}
		logger.Info("permission engine: allow_all (все проверки прав отключены)")
	} else {
		engine = rbac.NewMatrixEngine(rbac.DefaultMatrix())
	}

	authSvc := service.NewAuthService(userRepo, profileRepo, sessionRepo, store, resolver)
	pushClient := push.NewClient(cfg.PushServiceURL)
	fileSvc := fileserver.New(cfg.UploadDir, cfg.MaxUploadSize)
	chatSvc := chat.NewService(msgRepo, groupRepo, bus)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(chatSvc, groupRepo, userRepo, profileRepo, cfg.MaxWSConnections, pushClient)

	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()
	if err := bus.Subscribe(hubCtx, hub.HandleBusEvent); err != nil {
		logger.Errorf("event bus subscribe: %v", err)
		os.Exit(1)
	}

	authH := handler.NewAuthHandler(authSvc)
	userH := handler.NewUserHandler(userRepo, profileRepo, authSvc)
	chatH := handler.NewChatHandler(chatSvc, groupRepo)
	clientH := handler.NewClientHandler(clientRepo, projectRepo)
	leadH := handler.NewLeadHandler(leadRepo)
	projectH := handler.NewProjectHandler(projectRepo, taskRepo)
	taskH := handler.NewTaskHandler(taskRepo)
	ticketH := handler.NewTicketHandler(ticketRepo)
	docH := handler.NewDocumentHandler(docRepo, fileSvc, cfg.MaxUploadSize)
	calH := handler.NewCalendarHandler(calRepo)
	internH := handler.NewInternHandler(internRepo)
	attH := handler.NewAttendanceHandler(attRepo)
	financeH := handler.NewFinanceHandler(financeRepo)
	configH := handler.NewConfigHandler(cfg)
	pushH := handler.NewPushHandler(pushClient)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-Id", "X-Timestamp", "X-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/config/push", configH.GetPushConfig)
	r.Get("/api/config/upload", configH.GetUploadConfig)
	r.Post("/api/auth/login", authH.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(sessionRepo, store, resolver))

		perm := func(module string, action rbac.Action) func(http.Handler) http.Handler {
			return middleware.RequirePermission(engine, module, action)
		}

		// Сессии и профиль — доступны любой аутентифицированной роли.
		r.Post("/api/auth/change-password", authH.ChangePassword)
		r.Get("/api/auth/sessions", authH.GetSessions)
		r.Post("/api/auth/logout", authH.Logout)
		r.Delete("/api/auth/sessions/{id}", authH.LogoutSessionByID)
		r.Post("/api/auth/logout-all", authH.LogoutAllSessions)
		r.Get("/api/users/me", userH.Me)
		r.Put("/api/users/me", userH.UpdateProfile)
		r.Get("/api/profiles", userH.GetProfiles)
		r.Get("/api/profiles/{id}", userH.GetProfile)

		// Администрирование пользователей.
		r.With(perm(rbac.ModuleSettings, rbac.ActionCreate)).Post("/api/auth/register", authH.Register)
		r.With(perm(rbac.ModuleSettings, rbac.ActionRead)).Get("/api/users", userH.GetUsers)
		r.With(perm(rbac.ModuleSettings, rbac.ActionUpdate)).Put("/api/users/{id}/role", userH.SetRole)
		r.With(perm(rbac.ModuleSettings, rbac.ActionUpdate)).Put("/api/users/{id}/disable", userH.SetDisabled)

		// Чат: история и контакты по messages, управление группами по groups.
		r.With(perm(rbac.ModuleMessages, rbac.ActionRead)).Get("/api/chat/contacts", chatH.GetContacts)
		r.With(perm(rbac.ModuleMessages, rbac.ActionRead)).Get("/api/chat/direct/{peerId}", chatH.GetDirectHistory)
		r.With(perm(rbac.ModuleMessages, rbac.ActionRead)).Get("/api/chat/groups/{id}/messages", chatH.GetGroupHistory)
		r.With(perm(rbac.ModuleGroups, rbac.ActionRead)).Get("/api/chat/groups", chatH.GetGroups)
		r.With(perm(rbac.ModuleGroups, rbac.ActionRead)).Get("/api/chat/groups/{id}/members", chatH.GetGroupMembers)
		r.With(perm(rbac.ModuleGroups, rbac.ActionCreate)).Post("/api/chat/groups", chatH.CreateGroup)
		r.With(perm(rbac.ModuleGroups, rbac.ActionUpdate)).Put("/api/chat/groups/{id}", chatH.UpdateGroup)
		r.With(perm(rbac.ModuleGroups, rbac.ActionUpdate)).Post("/api/chat/groups/{id}/members", chatH.AddMember)
		r.With(perm(rbac.ModuleGroups, rbac.ActionUpdate)).Delete("/api/chat/groups/{id}/members/{userId}", chatH.RemoveMember)
		r.Get("/ws", wsH.ServeWS)

		r.With(perm(rbac.ModuleClients, rbac.ActionRead)).Get("/api/clients", clientH.List)
		r.With(perm(rbac.ModuleClients, rbac.ActionRead)).Get("/api/clients/{id}", clientH.Get)
		r.With(perm(rbac.ModuleClients, rbac.ActionRead)).Get("/api/clients/{id}/projects", clientH.GetProjects)
		r.With(perm(rbac.ModuleClients, rbac.ActionCreate)).Post("/api/clients", clientH.Create)
		r.With(perm(rbac.ModuleClients, rbac.ActionUpdate)).Put("/api/clients/{id}", clientH.Update)
		r.With(perm(rbac.ModuleClients, rbac.ActionDelete)).Delete("/api/clients/{id}", clientH.Delete)

		r.With(perm(rbac.ModuleLeads, rbac.ActionRead)).Get("/api/leads", leadH.List)
		r.With(perm(rbac.ModuleLeads, rbac.ActionRead)).Get("/api/leads/{id}", leadH.Get)
		r.With(perm(rbac.ModuleLeads, rbac.ActionCreate)).Post("/api/leads", leadH.Create)
		r.With(perm(rbac.ModuleLeads, rbac.ActionUpdate)).Put("/api/leads/{id}", leadH.Update)
		r.With(perm(rbac.ModuleLeads, rbac.ActionDelete)).Delete("/api/leads/{id}", leadH.Delete)

		r.With(perm(rbac.ModuleProjects, rbac.ActionRead)).Get("/api/projects", projectH.List)
		r.With(perm(rbac.ModuleProjects, rbac.ActionRead)).Get("/api/projects/{id}", projectH.Get)
		r.With(perm(rbac.ModuleProjects, rbac.ActionRead)).Get("/api/projects/{id}/tasks", projectH.GetTasks)
		r.With(perm(rbac.ModuleProjects, rbac.ActionCreate)).Post("/api/projects", projectH.Create)
		r.With(perm(rbac.ModuleProjects, rbac.ActionUpdate)).Put("/api/projects/{id}", projectH.Update)
		r.With(perm(rbac.ModuleProjects, rbac.ActionDelete)).Delete("/api/projects/{id}", projectH.Delete)

		r.With(perm(rbac.ModuleTasks, rbac.ActionRead)).Get("/api/tasks", taskH.List)
		r.With(perm(rbac.ModuleTasks, rbac.ActionRead)).Get("/api/tasks/{id}", taskH.Get)
		r.With(perm(rbac.ModuleTasks, rbac.ActionCreate)).Post("/api/tasks", taskH.Create)
		r.With(perm(rbac.ModuleTasks, rbac.ActionUpdate)).Put("/api/tasks/{id}", taskH.Update)
		r.With(perm(rbac.ModuleTasks, rbac.ActionUpdate)).Put("/api/tasks/{id}/status", taskH.UpdateStatus)
		r.With(perm(rbac.ModuleTasks, rbac.ActionDelete)).Delete("/api/tasks/{id}", taskH.Delete)

		r.With(perm(rbac.ModuleTickets, rbac.ActionRead)).Get("/api/tickets", ticketH.List)
		r.With(perm(rbac.ModuleTickets, rbac.ActionRead)).Get("/api/tickets/{id}", ticketH.Get)
		r.With(perm(rbac.ModuleTickets, rbac.ActionCreate)).Post("/api/tickets", ticketH.Create)
		r.With(perm(rbac.ModuleTickets, rbac.ActionUpdate)).Put("/api/tickets/{id}", ticketH.Update)
		r.With(perm(rbac.ModuleTickets, rbac.ActionDelete)).Delete("/api/tickets/{id}", ticketH.Delete)

		r.With(perm(rbac.ModuleDocuments, rbac.ActionRead)).Get("/api/documents", docH.List)
		r.With(perm(rbac.ModuleDocuments, rbac.ActionRead)).Get("/api/documents/{id}", docH.Get)
		r.With(perm(rbac.ModuleDocuments, rbac.ActionRead)).Get("/api/documents/files/{filename}", docH.Download)
		r.With(perm(rbac.ModuleDocuments, rbac.ActionCreate)).Post("/api/documents", docH.Upload)
		r.With(perm(rbac.ModuleDocuments, rbac.ActionUpdate)).Put("/api/documents/{id}", docH.Rename)
		r.With(perm(rbac.ModuleDocuments, rbac.ActionDelete)).Delete("/api/documents/{id}", docH.Delete)

		r.With(perm(rbac.ModuleCalendarEvents, rbac.ActionRead)).Get("/api/calendar", calH.List)
		r.With(perm(rbac.ModuleCalendarEvents, rbac.ActionCreate)).Post("/api/calendar", calH.Create)
		r.With(perm(rbac.ModuleCalendarEvents, rbac.ActionUpdate)).Put("/api/calendar/{id}", calH.Update)
		r.With(perm(rbac.ModuleCalendarEvents, rbac.ActionDelete)).Delete("/api/calendar/{id}", calH.Delete)

		r.With(perm(rbac.ModuleInterns, rbac.ActionRead)).Get("/api/interns", internH.List)
		r.With(perm(rbac.ModuleInterns, rbac.ActionRead)).Get("/api/interns/{id}", internH.Get)
		r.With(perm(rbac.ModuleInterns, rbac.ActionCreate)).Post("/api/interns", internH.Create)
		r.With(perm(rbac.ModuleInterns, rbac.ActionUpdate)).Put("/api/interns/{id}", internH.Update)
		r.With(perm(rbac.ModuleInterns, rbac.ActionDelete)).Delete("/api/interns/{id}", internH.Delete)

		// Отметки о приходе/уходе — самообслуживание, без матрицы.
		// Сводка по дню — чтение модуля attendance.
		r.Post("/api/attendance/check-in", attH.CheckIn)
		r.Post("/api/attendance/check-out", attH.CheckOut)
		r.Get("/api/attendance/me", attH.Me)
		r.With(perm(rbac.ModuleAttendance, rbac.ActionRead)).Get("/api/attendance/day", attH.Day)

		r.With(perm(rbac.ModuleFinance, rbac.ActionRead)).Get("/api/finance", financeH.List)
		r.With(perm(rbac.ModuleFinance, rbac.ActionRead)).Get("/api/finance/summary", financeH.Summary)
		r.With(perm(rbac.ModuleFinance, rbac.ActionCreate)).Post("/api/finance", financeH.Create)
		r.With(perm(rbac.ModuleFinance, rbac.ActionDelete)).Delete("/api/finance/{id}", financeH.Delete)

		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)
	})

	webDist := "./web/dist"
	if info, err := os.Stat(webDist); err == nil && info.IsDir() {
		r.Get("/*", spaHandler(webDist))
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func spaHandler(dir string) http.HandlerFunc {
	fs := http.Dir(dir)
	fileServer := http.FileServer(fs)
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(filepath.Clean(r.URL.Path), "/")
		if path == "" {
			path = "index.html"
		}
		if f, err := fs.Open(path); err != nil {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
		} else {
			f.Close()
			fileServer.ServeHTTP(w, r)
		}
	}
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

// seedDevAdmin создаёт администратора в пустой базе, чтобы в -dev можно было
// войти сразу после первого запуска. В непустой базе ничего не делает.
func seedDevAdmin(pool *pgxpool.Pool) {
	const (
		email    = "admin@localhost"
		password = "admin12345"
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		logger.Errorf("seed admin: count users: %v", err)
		return
	}
	if count > 0 {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Errorf("seed admin: hash: %v", err)
		return
	}
	userID := uuid.New().String()
	if _, err := pool.Exec(ctx,
		"INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3)",
		userID, email, string(hash)); err != nil {
		logger.Errorf("seed admin: insert user: %v", err)
		return
	}
	if _, err := pool.Exec(ctx,
		"INSERT INTO profiles (id, user_id, full_name, role) VALUES ($1, $2, $3, $4)",
		uuid.New().String(), userID, "Администратор", "admin"); err != nil {
		logger.Errorf("seed admin: insert profile: %v", err)
		return
	}
	logger.Infof("dev admin created: %s / %s (смените пароль после входа)", email, password)
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "crmnexus"
		password = "crmnexus_secret"
		database = "crmnexus"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
