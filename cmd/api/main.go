package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/config"
	"lawdesk.org/internal/grpcapi"
	"lawdesk.org/internal/guard"
	"lawdesk.org/internal/httpapi"
	"lawdesk.org/internal/notify"
	"lawdesk.org/internal/obs"
	"lawdesk.org/internal/store/kv"
	"lawdesk.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the environment")
	httpAddr := flag.String("http-addr", "", "HTTP listen address (overrides LAWDESK_HTTP_ADDR)")
	grpcAddr := flag.String("grpc-addr", "", "gRPC listen address (overrides LAWDESK_GRPC_ADDR)")
	policyFile := flag.String("policy", "", "permission policy YAML (overrides LAWDESK_POLICY_FILE)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *grpcAddr != "" {
		cfg.GRPCAddr = *grpcAddr
	}
	if *policyFile != "" {
		cfg.PolicyFile = *policyFile
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, templates, err := cfg.Policy()
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	// Session markers expire with the configured TTL; the registration table
	// must not, so it gets its own handle without one.
	var (
		sessionStore kv.Store = kv.NewMemory()
		tableStore            = sessionStore
		kvPing       httpapi.Pinger
	)
	if cfg.RedisAddr != "" {
		client, err := kv.NewRedisClient(ctx, kv.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		r := kv.NewRedis(client, cfg.SessionTTL)
		sessionStore, tableStore, kvPing = r, kv.NewRedis(client, 0), r
	}

	var (
		db        *sql.DB
		directory auth.AccountRepository = auth.NewMemoryAccountRepository()
		roleRepo  auth.RoleRepository    = auth.NewMemoryRoleRepository()
		auditLog  audit.Reader
		sinks     = audit.Multi{audit.LogSink{}}
	)
	if cfg.PGDSN != "" {
		if db, err = pg.Open(cfg.PGDSN); err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer db.Close()
		if err := pg.Ping(ctx, db); err != nil {
			log.Fatalf("ping db: %v", err)
		}
		if directory, err = pg.NewAccountStore(db, pg.ProvisionedAccounts); err != nil {
			log.Fatalf("account store: %v", err)
		}
		roleRepo = pg.NewRoleStore(db)
		store := pg.NewAuditStore(db)
		sinks, auditLog = append(sinks, store), store
	} else {
		ring := audit.NewRing(512)
		sinks, auditLog = append(sinks, ring), ring
	}

	var registered auth.AccountRepository = auth.NewKVAccountRepository(tableStore)
	if cfg.RegistrationStore == config.RegistrationPG {
		if registered, err = pg.NewAccountStore(db, pg.RegisteredAccounts); err != nil {
			log.Fatalf("registration store: %v", err)
		}
	}

	var (
		dispatcher auth.VerificationDispatcher = notify.Log{}
		approver   auth.ApprovalNotifier       = notify.Log{}
		notifier   auth.Notifier               = notify.Log{}
	)
	if cfg.AMQPURL != "" {
		broker, err := notify.Dial(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("rabbitmq: %v", err)
		}
		defer broker.Close()
		dispatcher, approver, notifier = broker, broker, broker
	}

	opts := []auth.Option{auth.WithAuditSink(sinks)}
	roles, err := auth.NewRoleService(roleRepo, catalog, opts...)
	if err != nil {
		log.Fatalf("roles: %v", err)
	}
	if seeded, err := roles.Seed(ctx, templates); err != nil {
		log.Fatalf("seed roles: %v", err)
	} else if len(seeded) > 0 {
		obs.Info("role templates seeded", map[string]any{"count": len(seeded)})
	}
	accounts, err := auth.NewAccountService(directory, registered, roleRepo, catalog, opts...)
	if err != nil {
		log.Fatalf("accounts: %v", err)
	}
	if cfg.BootstrapAdminEmail != "" {
		admin, created, err := accounts.Bootstrap(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
		if err != nil {
			log.Fatalf("bootstrap admin: %v", err)
		}
		if created {
			obs.Info("bootstrap administrator created", map[string]any{"account_id": admin.ID, "email": admin.Email})
		}
	}
	verifier, err := auth.NewVerifier([]byte(cfg.VerificationSecret), cfg.VerificationIssuer)
	if err != nil {
		log.Fatalf("verifier: %v", err)
	}
	verification, err := auth.NewVerificationService(verifier, registered, opts...)
	if err != nil {
		log.Fatalf("verification: %v", err)
	}
	approvals, err := auth.NewApprovalWorkflow(approver, cfg.AdminContact, accounts, opts...)
	if err != nil {
		log.Fatalf("approvals: %v", err)
	}

	sessionOpts := append(opts, auth.WithVerification(verifier, dispatcher), auth.WithApprovalWorkflow(approvals))
	if cfg.RevalidateSessions {
		sessionOpts = append(sessionOpts, auth.WithRestoreRevalidation())
	}
	sessions, err := auth.NewClientSessions(func(clientID string) (*auth.SessionManager, error) {
		return auth.NewSessionManager(registered, directory, kv.ClientScope(sessionStore, clientID), sessionOpts...)
	})
	if err != nil {
		log.Fatalf("sessions: %v", err)
	}

	g := guard.New(guard.WithNotifier(notifier))
	rp := httpapi.ReadyProbe{DB: db, KV: kvPing}

	api, err := httpapi.New(rp, version, httpapi.Services{
		Sessions:     sessions,
		Roles:        roles,
		Accounts:     accounts,
		Verification: verification,
		Approvals:    approvals,
		Audit:        auditLog,
		Guard:        g,
	}, httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSecond), httpapi.WithSecureCookie(cfg.CookieSecure))
	if err != nil {
		log.Fatalf("http api: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpcapi.NewServer(rp, grpcapi.NewAuthServer(catalog, accounts), g, grpcapi.DefaultPolicy(),
		func(ctx context.Context, clientID string) (guard.Source, error) {
			m, err := sessions.Get(ctx, clientID)
			if m == nil {
				return nil, err
			}
			return m, nil
		})
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}

	obs.Info("starting lawdesk-auth", map[string]any{
		"version":   version,
		"http_addr": srv.Addr,
		"grpc_addr": cfg.GRPCAddr,
		"env":       cfg.Env,
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			obs.Error("grpc serve stopped", map[string]any{"error": err})
		}
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			if n := sessions.Sweep(cfg.ClientIdle); n > 0 {
				obs.Info("idle clients released", map[string]any{"count": n})
			}
			grpcSrv.RefreshHealth(ctx)
		}
	}

	obs.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.Stop()
	obs.Info("stopped", nil)
}
