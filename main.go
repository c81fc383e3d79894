package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	alertadapters "geomon-cloud/internal/alerting/adapters"
	alertapp "geomon-cloud/internal/alerting/application"
	alertrepo "geomon-cloud/internal/alerting/infrastructure/postgres"
	alerthttp "geomon-cloud/internal/alerting/interfaces/http"
	"geomon-cloud/internal/alerting/notify"
	"geomon-cloud/internal/auth"
	authrepo "geomon-cloud/internal/auth/infrastructure/postgres"
	authhttp "geomon-cloud/internal/auth/interfaces/http"
	"geomon-cloud/internal/exports"
	instrumentrepo "geomon-cloud/internal/instruments/infrastructure/postgres"
	instrumenthttp "geomon-cloud/internal/instruments/interfaces/http"
	"geomon-cloud/internal/micromate"
	"geomon-cloud/internal/observability/metrics"
	"geomon-cloud/internal/payments"
	readingapp "geomon-cloud/internal/readings/application"
	readingrepo "geomon-cloud/internal/readings/infrastructure/postgres"
	readinghttp "geomon-cloud/internal/readings/interfaces/http"
	"geomon-cloud/internal/upstream/loadsensing"
	"geomon-cloud/internal/upstream/syscom"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)

	readingStore := readingrepo.NewReadingRepository(db)
	instrumentStore := instrumentrepo.NewInstrumentRepository(db)
	calibrationStore := instrumentrepo.NewCalibrationRepository(db)
	ledger := alertrepo.NewSentAlertLedger(db)
	eventLog := alertrepo.NewAlertLogRepository(db)
	userStore := authrepo.NewUserRepository(db)
	tokenStore := authrepo.NewResetTokenRepository(db)

	mailer, err := notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	if err != nil {
		logger.Fatalf("mailer error: %v", err)
	}

	loc, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		logger.Printf("timezone %q not found, falling back to UTC", cfg.DisplayTimezone)
		loc = time.UTC
	}
	renderer, err := notify.NewRenderer(loc)
	if err != nil {
		logger.Fatalf("renderer error: %v", err)
	}

	var syscomClient *syscom.Client
	if cfg.SyscomBaseURL != "" {
		syscomClient, err = syscom.NewClient(cfg.SyscomBaseURL, cfg.SyscomAPIKey)
		if err != nil {
			logger.Fatalf("syscom client error: %v", err)
		}
	}

	var micromateStore *micromate.Store
	if cfg.MicromateDir != "" {
		micromateStore, err = micromate.NewStore(cfg.MicromateDir)
		if err != nil {
			logger.Fatalf("micromate store error: %v", err)
		}
	}

	var ingest *readingapp.IngestService
	if cfg.LoadsensingBaseURL != "" {
		lsClient, err := loadsensing.NewClient(cfg.LoadsensingBaseURL, cfg.LoadsensingUsername, cfg.LoadsensingPassword)
		if err != nil {
			logger.Fatalf("loadsensing client error: %v", err)
		}
		ingest, err = readingapp.NewIngestService(lsClient, readingStore, cfg.LoadsensingNodes, logger)
		if err != nil {
			logger.Fatalf("ingest service error: %v", err)
		}
		go ingest.Run(ctx, cfg.IngestInterval)
	}

	fleet, err := alertapp.LoadFleetConfig(cfg.FleetConfigPath)
	if err != nil {
		logger.Fatalf("fleet config error: %v", err)
	}
	checkers := make([]*alertapp.Checker, 0, len(fleet.Checks))
	for _, spec := range fleet.Checks {
		source, err := buildSource(spec, readingStore, syscomClient, micromateStore)
		if err != nil {
			logger.Fatalf("check %s: %v", spec.InstrumentID, err)
		}
		checker, err := alertapp.NewChecker(
			spec, instrumentStore, calibrationStore, source, ledger, renderer, mailer, logger,
			alertapp.WithEventLog(eventLog), alertapp.WithLocation(loc),
		)
		if err != nil {
			logger.Fatalf("checker %s error: %v", spec.InstrumentID, err)
		}
		checkers = append(checkers, checker)
	}
	alertService, err := alertapp.NewService(checkers, logger)
	if err != nil {
		logger.Fatalf("alert service error: %v", err)
	}
	scheduler, err := alertapp.NewScheduler(alertService, cfg.CheckInterval, logger)
	if err != nil {
		logger.Fatalf("scheduler error: %v", err)
	}
	go scheduler.Run(ctx)

	if len(cfg.MonitorRecipients) > 0 {
		monitor, err := alertapp.NewMonitor(eventLog, mailer, cfg.MonitorRecipients, cfg.MonitorWindow, cfg.MonitorCooldown, logger)
		if err != nil {
			logger.Fatalf("monitor error: %v", err)
		}
		go monitor.Run(ctx, cfg.MonitorInterval)
	}

	authHandler, err := authhttp.NewHandler(userStore, tokenStore, mailer,
		[]byte(cfg.JWTSecret), cfg.JWTTTL, cfg.ResetTokenTTL, cfg.ResetURL, logger)
	if err != nil {
		logger.Fatalf("auth handler error: %v", err)
	}
	alertHandler, err := alerthttp.NewHandler(alertService, ledger)
	if err != nil {
		logger.Fatalf("alert handler error: %v", err)
	}
	readingHandler, err := readinghttp.NewHandler(readingStore, calibrationStore, ingest)
	if err != nil {
		logger.Fatalf("reading handler error: %v", err)
	}
	instrumentHandler, err := instrumenthttp.NewHandler(instrumentStore, calibrationStore)
	if err != nil {
		logger.Fatalf("instrument handler error: %v", err)
	}
	exportHandler, err := exports.NewHandler(readingStore, ledger)
	if err != nil {
		logger.Fatalf("export handler error: %v", err)
	}

	var paymentGateway payments.Gateway
	if cfg.PaymentLoginID != "" && cfg.PaymentTransactionKey != "" {
		client, err := payments.NewClient(cfg.PaymentLoginID, cfg.PaymentTransactionKey, cfg.PaymentSandbox)
		if err != nil {
			logger.Fatalf("payment client error: %v", err)
		}
		paymentGateway = client
	}
	paymentHandler, err := payments.NewHandler(paymentGateway, logger)
	if err != nil {
		logger.Fatalf("payment handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy(nil, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/login", authHandler)
	mux.Handle("/api/check-auth", authHandler)
	mux.Handle("/api/forgot-password", authHandler)
	mux.Handle("/api/reset-password", authHandler)
	mux.Handle("/api/sensor-data/", readingHandler)
	mux.Handle("/api/sensor-data-raw/", readingHandler)
	mux.Handle("/api/fetch-sensor-data", readingHandler)
	mux.Handle("/api/instruments", instrumentHandler)
	mux.Handle("/api/instruments/", instrumentHandler)
	mux.Handle("/api/alerts/", alertHandler)
	mux.Handle("/api/exports/", exportHandler)
	mux.Handle("/api/payments/process", paymentHandler)
	if micromateStore != nil {
		micromateHandler, err := micromate.NewHandler(micromateStore)
		if err != nil {
			logger.Fatalf("micromate handler error: %v", err)
		}
		mux.Handle("/api/micromate/", micromateHandler)
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown error: %v", err)
	}
}

func buildSource(spec alertapp.CheckSpec, store *readingrepo.ReadingRepository, syscomClient *syscom.Client, micromateStore *micromate.Store) (alertapp.ReadingSource, error) {
	switch spec.Source {
	case alertapp.SourceSyscom:
		if syscomClient == nil {
			return nil, errors.New("syscom source needs SYSCOM_BASE_URL and SYSCOM_API_KEY")
		}
		return alertadapters.NewSyscomSource(syscomClient)
	case alertapp.SourceMicromate:
		if micromateStore == nil {
			return nil, errors.New("micromate source needs MICROMATE_DIR")
		}
		return alertadapters.NewMicromateSource(micromateStore)
	default:
		return alertadapters.NewStoreSource(store)
	}
}

type config struct {
	DatabaseURL           string
	HTTPAddr              string
	JWTSecret             string
	JWTTTL                time.Duration
	ResetTokenTTL         time.Duration
	ResetURL              string
	SMTPHost              string
	SMTPPort              int
	SMTPUsername          string
	SMTPPassword          string
	SMTPFrom              string
	DisplayTimezone       string
	FleetConfigPath       string
	CheckInterval         time.Duration
	MonitorRecipients     []string
	MonitorWindow         time.Duration
	MonitorCooldown       time.Duration
	MonitorInterval       time.Duration
	LoadsensingBaseURL    string
	LoadsensingUsername   string
	LoadsensingPassword   string
	LoadsensingNodes      []int64
	IngestInterval        time.Duration
	SyscomBaseURL         string
	SyscomAPIKey          string
	MicromateDir          string
	PaymentLoginID        string
	PaymentTransactionKey string
	PaymentSandbox        bool
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:           getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:              getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:             getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		JWTTTL:                getenvDuration("JWT_TTL", 24*time.Hour),
		ResetTokenTTL:         getenvDuration("RESET_TOKEN_TTL", time.Hour),
		ResetURL:              getenvDefault("RESET_URL", ""),
		SMTPHost:              getenvDefault("SMTP_HOST", ""),
		SMTPPort:              getenvIntDefault("SMTP_PORT", 587),
		SMTPUsername:          getenvDefault("SMTP_USERNAME", ""),
		SMTPPassword:          getenvDefault("SMTP_PASSWORD", ""),
		SMTPFrom:              getenvDefault("SMTP_FROM", ""),
		DisplayTimezone:       getenvDefault("DISPLAY_TIMEZONE", "America/New_York"),
		FleetConfigPath:       getenvDefault("FLEET_CONFIG", "fleet.yaml"),
		CheckInterval:         getenvDuration("CHECK_INTERVAL", time.Minute),
		MonitorRecipients:     splitList(os.Getenv("MONITOR_RECIPIENTS")),
		MonitorWindow:         getenvDuration("MONITOR_WINDOW", 24*time.Hour),
		MonitorCooldown:       getenvDuration("MONITOR_COOLDOWN", 6*time.Hour),
		MonitorInterval:       getenvDuration("MONITOR_INTERVAL", time.Hour),
		LoadsensingBaseURL:    getenvDefault("LOADSENSING_BASE_URL", ""),
		LoadsensingUsername:   getenvDefault("LOADSENSING_USERNAME", ""),
		LoadsensingPassword:   getenvDefault("LOADSENSING_PASSWORD", ""),
		LoadsensingNodes:      splitNodeList(os.Getenv("LOADSENSING_NODES")),
		IngestInterval:        getenvDuration("INGEST_INTERVAL", 10*time.Minute),
		SyscomBaseURL:         getenvDefault("SYSCOM_BASE_URL", ""),
		SyscomAPIKey:          getenvDefault("SYSCOM_API_KEY", ""),
		MicromateDir:          getenvDefault("MICROMATE_DIR", ""),
		PaymentLoginID:        getenvDefault("AUTHORIZE_NET_API_LOGIN_ID", ""),
		PaymentTransactionKey: getenvDefault("AUTHORIZE_NET_TRANSACTION_KEY", ""),
		PaymentSandbox:        getenvDefault("AUTHORIZE_NET_SANDBOX", "") == "true",
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	if cfg.SMTPHost == "" {
		log.Fatal("SMTP_HOST is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func splitNodeList(raw string) []int64 {
	var out []int64
	for _, part := range splitList(raw) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		out = append(out, id)
	}
	return out
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
