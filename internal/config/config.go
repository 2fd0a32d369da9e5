package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	OpsPort string `envconfig:"OPS_PORT" default:"8080"`
	Debug   bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	VaultPath        string        `envconfig:"VAULT_PATH" required:"true"`
	MinContentLength int           `envconfig:"MIN_CONTENT_LENGTH" default:"10"`
	ResyncInterval   time.Duration `envconfig:"RESYNC_INTERVAL" default:"10m"`

	ChunkMaxChars int `envconfig:"CHUNK_MAX_CHARS" default:"1200"`
	ChunkMinChars int `envconfig:"CHUNK_MIN_CHARS" default:"400"`
	ChunkOverlap  int `envconfig:"CHUNK_OVERLAP" default:"200"`
	ChunkMax      int `envconfig:"CHUNK_MAX_PER_DOC" default:"64"`

	RetrieveTopK int `envconfig:"RETRIEVE_TOP_K" default:"5"`

	PollInterval  time.Duration `envconfig:"POLL_INTERVAL" default:"60s"`
	SeenRetention time.Duration `envconfig:"SEEN_RETENTION" default:"720h"`
	Taxonomy      []string      `envconfig:"TAXONOMY" default:"QUESTION,FOLLOW_UP,NOTIFICATION,NEWSLETTER,SPAM"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`

	GmailCredentialsDir string `envconfig:"GMAIL_CREDENTIALS_DIR"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"vaultmail-drafts"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("VAULTMAIL", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasGmail() bool {
	return c.GmailCredentialsDir != ""
}
