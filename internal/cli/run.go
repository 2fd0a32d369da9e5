package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/vaultmail/internal/archive"
	"github.com/cloo-solutions/vaultmail/internal/chunker"
	"github.com/cloo-solutions/vaultmail/internal/config"
	"github.com/cloo-solutions/vaultmail/internal/domain"
	"github.com/cloo-solutions/vaultmail/internal/index"
	"github.com/cloo-solutions/vaultmail/internal/jobs"
	"github.com/cloo-solutions/vaultmail/internal/mail"
	"github.com/cloo-solutions/vaultmail/internal/mail/gmail"
	"github.com/cloo-solutions/vaultmail/internal/openai"
	"github.com/cloo-solutions/vaultmail/internal/repository"
	"github.com/cloo-solutions/vaultmail/internal/retrieve"
	"github.com/cloo-solutions/vaultmail/internal/server"
	"github.com/cloo-solutions/vaultmail/internal/telemetry"
	"github.com/cloo-solutions/vaultmail/internal/triage"
	"github.com/cloo-solutions/vaultmail/internal/vault"
)

// RunCmd returns the run command: both loops plus the ops endpoint.
func RunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the vault indexer and mail triage loops",
		Long:  "Watch the vault, keep the vector index in sync, and poll the mailbox for threads to triage",
		RunE:  runRun,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port for the ops endpoint")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.VaultPath == "" {
		return domain.ErrVaultPathRequired
	}

	// Initialize Sentry if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.OpsPort = portFlag
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if !cfg.HasOpenAI() {
		return fmt.Errorf("VAULTMAIL_OPENAI_API_KEY is required")
	}
	client := openai.NewClient(cfg.OpenAIAPIKey)

	idx := index.NewPG(pool)
	syncer := vault.New(cfg.VaultPath, idx, client, vault.Options{
		ChunkConfig: chunker.Config{
			MaxChars:  cfg.ChunkMaxChars,
			MinChars:  cfg.ChunkMinChars,
			Overlap:   cfg.ChunkOverlap,
			MaxChunks: cfg.ChunkMax,
		},
		MinContentLength: cfg.MinContentLength,
	})

	// Bring the index up to date before the watcher starts filling gaps.
	if err := syncer.FullResync(ctx); err != nil {
		return fmt.Errorf("initial resync failed: %w", err)
	}
	log.Println("initial resync complete")

	watcher, err := vault.NewWatcher(cfg.VaultPath)
	if err != nil {
		return fmt.Errorf("failed to watch vault: %w", err)
	}
	go watcher.Run(ctx)
	go func() {
		for change := range watcher.Changes() {
			span := telemetry.StartSpan(ctx, "vault.reconcile")
			if err := syncer.Reconcile(span.Context(), change); err != nil {
				span.SetError(err)
				log.Printf("reconcile %s: %v", change, err)
				telemetry.CaptureError(err, "vault")
			}
			span.End()
		}
	}()
	log.Printf("watching vault at %s", cfg.VaultPath)

	resyncWorker := jobs.NewWorker("vault", jobs.NewResyncWorker(syncer), cfg.ResyncInterval)
	go resyncWorker.Start(ctx)

	var mailWorker *jobs.MailWorker
	var mailLoop *jobs.Worker
	if cfg.HasGmail() {
		mailbox, err := gmail.NewMailboxFromDir(ctx, cfg.GmailCredentialsDir)
		if err != nil {
			return fmt.Errorf("failed to create gmail mailbox: %w", err)
		}

		var archiver jobs.Archiver
		if cfg.HasS3() {
			s3Archive, err := archive.NewS3Archive(ctx, archive.S3ArchiveConfig{
				Endpoint:        cfg.S3Endpoint,
				Region:          cfg.S3Region,
				AccessKeyID:     cfg.S3AccessKey,
				SecretAccessKey: cfg.S3SecretKey,
				Bucket:          cfg.S3Bucket,
				UsePathStyle:    true,
			})
			if err != nil {
				return fmt.Errorf("failed to create S3 archive: %w", err)
			}
			if err := s3Archive.EnsureBucket(ctx); err != nil {
				return fmt.Errorf("failed to ensure S3 bucket: %w", err)
			}
			log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
			archiver = s3Archive
		}

		seen := repository.NewSeenRepository(pool)
		if pruned, err := seen.Prune(ctx, cfg.SeenRetention); err != nil {
			log.Printf("prune seen threads: %v", err)
		} else if pruned > 0 {
			log.Printf("pruned %d seen threads older than %v", pruned, cfg.SeenRetention)
		}

		poller := mail.NewPoller(mailbox, seen)
		categorizer := triage.NewCategorizer(client, domain.NewTaxonomy(cfg.Taxonomy))
		retriever := retrieve.New(idx, client, cfg.RetrieveTopK)
		composer := triage.NewComposer(retriever, client)

		mailWorker = jobs.NewMailWorker(poller, categorizer, composer, mailbox, archiver)
		mailLoop = jobs.NewWorker("mail", mailWorker, cfg.PollInterval)
		go mailLoop.Start(ctx)
	} else {
		log.Println("gmail credentials not configured, mail loop disabled")
	}

	routerCfg := server.RouterConfig{Sync: syncer, Index: idx}
	if mailWorker != nil {
		routerCfg.Mail = mailWorker
	}

	srv := &http.Server{
		Addr:    ":" + cfg.OpsPort,
		Handler: server.NewRouter(routerCfg),
	}

	go func() {
		log.Printf("ops endpoint listening on port %s", cfg.OpsPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ops server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	cancel()
	resyncWorker.Stop()
	if mailLoop != nil {
		mailLoop.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("exited")
	return nil
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Println("migrations applied")
	return nil
}
