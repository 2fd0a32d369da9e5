package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/vaultmail/internal/chunker"
	"github.com/cloo-solutions/vaultmail/internal/config"
	"github.com/cloo-solutions/vaultmail/internal/index"
	"github.com/cloo-solutions/vaultmail/internal/openai"
	"github.com/cloo-solutions/vaultmail/internal/vault"
)

// ResyncCmd returns the resync command: one full pass over the vault, then
// exit.
func ResyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Rebuild the vector index from the vault and exit",
		RunE:  runResync,
	}

	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runResync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if !cfg.HasOpenAI() {
		return fmt.Errorf("VAULTMAIL_OPENAI_API_KEY is required")
	}

	idx := index.NewPG(pool)
	syncer := vault.New(cfg.VaultPath, idx, openai.NewClient(cfg.OpenAIAPIKey), vault.Options{
		ChunkConfig: chunker.Config{
			MaxChars:  cfg.ChunkMaxChars,
			MinChars:  cfg.ChunkMinChars,
			Overlap:   cfg.ChunkOverlap,
			MaxChunks: cfg.ChunkMax,
		},
		MinContentLength: cfg.MinContentLength,
	})

	if err := syncer.FullResync(ctx); err != nil {
		return fmt.Errorf("resync failed: %w", err)
	}

	stats := syncer.Stats()
	count, err := idx.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}

	log.Printf("resync complete: %d documents synced, %d deleted, %d skipped, %d chunks indexed",
		stats.DocumentsSynced, stats.DocumentsDeleted, stats.Skipped, count)
	return nil
}
