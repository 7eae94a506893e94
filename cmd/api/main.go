package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/biosight/internal/application"
	appanalysis "github.com/bryanwahyu/biosight/internal/application/analysis"
	appconsent "github.com/bryanwahyu/biosight/internal/application/consent"
	apphistory "github.com/bryanwahyu/biosight/internal/application/history"
	"github.com/bryanwahyu/biosight/internal/config"
	"github.com/bryanwahyu/biosight/internal/domain/analysis"
	"github.com/bryanwahyu/biosight/internal/domain/audit"
	"github.com/bryanwahyu/biosight/internal/domain/consent"
	"github.com/bryanwahyu/biosight/internal/domain/inference"
	"github.com/bryanwahyu/biosight/internal/domain/specimen"
	"github.com/bryanwahyu/biosight/internal/infra/ai/gemini"
	"github.com/bryanwahyu/biosight/internal/infra/ai/openai"
	"github.com/bryanwahyu/biosight/internal/infra/ai/remote"
	"github.com/bryanwahyu/biosight/internal/infra/codec"
	mysqlp "github.com/bryanwahyu/biosight/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/biosight/internal/infra/db/postgres"
	"github.com/bryanwahyu/biosight/internal/infra/httpserver"
	"github.com/bryanwahyu/biosight/internal/infra/observability"
	sessionstore "github.com/bryanwahyu/biosight/internal/infra/session"
	"github.com/bryanwahyu/biosight/internal/infra/storage"
	"github.com/bryanwahyu/biosight/internal/middleware"
)

// repositories is nil-valued when no database is configured.
type repositories struct {
	consent  consent.Repository
	analysis analysis.Repository
	audit    audit.Repository
}

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		logrus.Fatalf("config load error: %v", err)
	}
	log := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()
	checkers := map[string]middleware.HealthChecker{}

	// database
	db, repos, err := openDatabase(ctx, cfg)
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}
	if db != nil {
		defer db.Close()
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	} else {
		log.Warn("database driver is none: consent, records and audit are not persisted")
	}

	// image storage
	images, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("storage init error: %v", err)
	}
	checkers["storage"] = images

	// sessions
	sessions, closeSessions, err := openSessions(ctx, cfg, checkers)
	if err != nil {
		log.Fatalf("session store init error: %v", err)
	}
	defer closeSessions()

	// inference
	ai, closeAI, err := openInference(ctx, cfg)
	if err != nil {
		log.Fatalf("inference init error: %v", err)
	}
	defer closeAI()

	sealer, err := codec.New(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatalf("codec init error: %v", err)
	}

	// init services
	observer := &observability.Observer{Log: log}
	clock := application.SystemClock{}

	consentSvc := &appconsent.Service{
		Repo:              repos.consent,
		Audit:             repos.audit,
		Observer:          observer,
		DisclaimerVersion: cfg.Security.DisclaimerVersion,
		Clock:             clock,
	}
	analysisSvc := &appanalysis.Service{
		Images:    images,
		Inference: ai,
		Records:   repos.analysis,
		Audit:     repos.audit,
		Codec:     sealer,
		Validator: specimen.Validator{MaxBytes: cfg.Security.MaxUploadBytes},
		Consent:   consentSvc,
		Cooldown:  cfg.RateLimitWindow(),
		Timeout:   cfg.Inference.Timeout,
		Observer:  observer,
		Clock:     clock,
	}
	historySvc := &apphistory.Service{
		Records:  repos.analysis,
		Codec:    sealer,
		Observer: observer,
	}

	// init router
	handler := httpserver.NewRouter(httpserver.Deps{
		Analysis: analysisSvc,
		Consent:  consentSvc,
		History:  historySvc,
		Sessions: sessions,
		Checkers: checkers,
		Log:      log,
	}, httpserver.Options{
		CookieName:     cfg.Session.CookieName,
		SessionTTL:     cfg.Session.TTL,
		SecureCookies:  cfg.Server.SecureCookies,
		TrustProxy:     cfg.Server.TrustProxy,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxUploadBytes: cfg.Security.MaxUploadBytes,
		IPRequestsPerS: cfg.Security.IPRequestsPerSec,
		IPBurst:        cfg.Security.IPBurst,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.WithFields(logrus.Fields{
			"addr":      addr,
			"database":  cfg.Database.Driver,
			"storage":   cfg.Storage.Driver,
			"sessions":  cfg.Session.Driver,
			"inference": cfg.Inference.Driver,
		}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down server...")

	// in-flight inference calls may take up to the inference timeout
	ctx2, cancel := context.WithTimeout(context.Background(), cfg.Inference.Timeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, repositories, error) {
	var (
		db    *sql.DB
		repos repositories
		err   error
	)
	switch cfg.Database.Driver {
	case "mysql":
		if db, err = mysqlp.Connect(ctx, cfg.MySQLDSN()); err != nil {
			return nil, repos, err
		}
		if cfg.Database.AutoMigrate {
			if err := mysqlp.EnsureSchema(ctx, db); err != nil {
				db.Close()
				return nil, repos, err
			}
		}
		repos = repositories{
			consent:  mysqlp.NewConsentRepository(db),
			analysis: mysqlp.NewAnalysisRepository(db),
			audit:    mysqlp.NewAuditRepository(db),
		}
	case "postgres":
		if db, err = pgp.Connect(ctx, cfg.PostgresDSN()); err != nil {
			return nil, repos, err
		}
		if cfg.Database.AutoMigrate {
			if err := pgp.EnsureSchema(ctx, db); err != nil {
				db.Close()
				return nil, repos, err
			}
		}
		repos = repositories{
			consent:  pgp.NewConsentRepository(db),
			analysis: pgp.NewAnalysisRepository(db),
			audit:    pgp.NewAuditRepository(db),
		}
	}
	return db, repos, nil
}

type imageStore interface {
	analysis.ImageStore
	middleware.HealthChecker
}

func openStorage(ctx context.Context, cfg *config.Config) (imageStore, error) {
	if cfg.Storage.Driver == "minio" {
		m := cfg.Storage.Minio
		return storage.NewMinio(ctx, m.Endpoint, m.Region, m.BucketName, m.AccessKey, m.SecretKey, m.UseSSL)
	}
	return storage.NewLocal(cfg.Storage.Dir)
}

func openSessions(ctx context.Context, cfg *config.Config, checkers map[string]middleware.HealthChecker) (scs.Store, func(), error) {
	if cfg.Session.Driver == "redis" {
		r := cfg.Session.Redis
		st, err := sessionstore.NewRedisStore(ctx, r.Addr, r.Password, r.DB)
		if err != nil {
			return nil, nil, err
		}
		checkers["sessions"] = st
		return st, func() { _ = st.Close() }, nil
	}
	st := memstore.New()
	return st, st.StopCleanup, nil
}

func openInference(ctx context.Context, cfg *config.Config) (inference.Client, func(), error) {
	switch cfg.Inference.Driver {
	case "openai":
		return openai.NewClient(cfg.Inference.APIKey, cfg.Inference.Model), func() {}, nil
	case "gemini":
		c, err := gemini.New(ctx, cfg.Inference.APIKey, cfg.Inference.Model)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	default:
		return remote.NewClient(cfg.Inference.URL, cfg.Inference.Timeout), func() {}, nil
	}
}
