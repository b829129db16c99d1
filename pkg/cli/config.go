package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/adapter"
	"github.com/m-mizutani/lily/pkg/repository"
	"github.com/urfave/cli/v3"
)

const (
	storeFirestore = "firestore"
	storePostgres  = "postgres"
	storeSQLite    = "sqlite"
	storeMemory    = "memory"
)

// config holds configuration values
type config struct {
	// Repository
	store       string
	project     string
	database    string
	postgresURL string
	sqlitePath  string
	timezone    string

	// Adapters
	geminiAPIKey   string
	geminiProject  string
	geminiLocation string
	geminiModel    string

	// Channels
	whatsappToken         string
	whatsappPhoneNumberID string
	whatsappVerifyToken   string
	telegramToken         string
	telegramSecret        string

	// Server
	addr          string
	sweepSecret   string
	sweepSchedule string
	mediaBucket   string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Store backend (firestore, postgres, sqlite, memory)",
			Value:       storeFirestore,
			Sources:     cli.EnvVars("LILY_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "postgres-url",
			Usage:       "Postgres connection URL",
			Sources:     cli.EnvVars("LILY_POSTGRES_URL", "DATABASE_URL"),
			Destination: &cfg.postgresURL,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "SQLite database file",
			Value:       "lily.db",
			Sources:     cli.EnvVars("LILY_SQLITE_PATH"),
			Destination: &cfg.sqlitePath,
		},
		&cli.StringFlag{
			Name:        "timezone",
			Usage:       "Timezone for human readable times and zone-less timestamps",
			Value:       "UTC",
			Sources:     cli.EnvVars("LILY_TIMEZONE"),
			Destination: &cfg.timezone,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key. Vertex AI is used when empty",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
	}
}

// channelFlags returns flags for messaging channels
func channelFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "whatsapp-token",
			Usage:       "WhatsApp Cloud API access token",
			Sources:     cli.EnvVars("WHATSAPP_TOKEN"),
			Destination: &cfg.whatsappToken,
		},
		&cli.StringFlag{
			Name:        "whatsapp-phone-number-id",
			Usage:       "WhatsApp sender phone number ID",
			Sources:     cli.EnvVars("WHATSAPP_PHONE_NUMBER_ID"),
			Destination: &cfg.whatsappPhoneNumberID,
		},
		&cli.StringFlag{
			Name:        "whatsapp-verify-token",
			Usage:       "Token expected in the WhatsApp webhook handshake",
			Sources:     cli.EnvVars("WHATSAPP_VERIFY_TOKEN"),
			Destination: &cfg.whatsappVerifyToken,
		},
		&cli.StringFlag{
			Name:        "telegram-token",
			Usage:       "Telegram bot token",
			Sources:     cli.EnvVars("TELEGRAM_BOT_TOKEN"),
			Destination: &cfg.telegramToken,
		},
		&cli.StringFlag{
			Name:        "telegram-secret",
			Usage:       "Expected X-Telegram-Bot-Api-Secret-Token header. Not checked when empty",
			Sources:     cli.EnvVars("TELEGRAM_WEBHOOK_SECRET"),
			Destination: &cfg.telegramSecret,
		},
	}
}

// serverFlags returns flags for the HTTP server
func serverFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("LILY_ADDR"),
			Destination: &cfg.addr,
		},
		&cli.StringFlag{
			Name:        "sweep-secret",
			Usage:       "Bearer token required by /api/cron/sweep",
			Sources:     cli.EnvVars("CRON_SECRET"),
			Destination: &cfg.sweepSecret,
		},
		&cli.StringFlag{
			Name:        "sweep-schedule",
			Usage:       "Cron schedule to run sweeps in process, e.g. '* * * * *' or '@every 30s'",
			Sources:     cli.EnvVars("LILY_SWEEP_SCHEDULE"),
			Destination: &cfg.sweepSchedule,
		},
		&cli.StringFlag{
			Name:        "media-bucket",
			Usage:       "Cloud Storage bucket to archive inbound media",
			Sources:     cli.EnvVars("LILY_MEDIA_BUCKET"),
			Destination: &cfg.mediaBucket,
		},
	}
}

// newRepository creates a new repository instance for the selected store
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	switch cfg.store {
	case storeFirestore:
		if cfg.project == "" {
			return nil, goerr.New("project is required")
		}
		if cfg.database == "" {
			return nil, goerr.New("database is required")
		}
		repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create firestore repository")
		}
		return repo, nil

	case storePostgres:
		if cfg.postgresURL == "" {
			return nil, goerr.New("postgres-url is required")
		}
		repo, err := repository.NewPostgres(ctx, cfg.postgresURL)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create postgres repository")
		}
		return repo, nil

	case storeSQLite:
		if cfg.sqlitePath == "" {
			return nil, goerr.New("sqlite-path is required")
		}
		repo, err := repository.NewSQLite(ctx, cfg.sqlitePath)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create sqlite repository")
		}
		return repo, nil

	case storeMemory:
		return repository.NewMemory(), nil

	default:
		return nil, goerr.New("unknown store", goerr.V("store", cfg.store))
	}
}

// location resolves the configured timezone
func (cfg *config) location() (*time.Location, error) {
	if cfg.timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(cfg.timezone)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid timezone", goerr.V("timezone", cfg.timezone))
	}
	return loc, nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	opts := []adapter.GeminiOption{
		adapter.WithGenerativeModel(cfg.geminiModel),
	}

	switch {
	case cfg.geminiAPIKey != "":
		opts = append(opts, adapter.WithAPIKey(cfg.geminiAPIKey))
	case cfg.geminiProject != "":
		if cfg.geminiLocation == "" {
			return nil, goerr.New("gemini-location is required")
		}
		opts = append(opts, adapter.WithVertexAI(cfg.geminiProject, cfg.geminiLocation))
	default:
		return nil, goerr.New("gemini-api-key or gemini-project is required")
	}

	client, err := adapter.NewGemini(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return client, nil
}

// newWhatsApp creates a new WhatsApp channel
func (cfg *config) newWhatsApp() (*adapter.WhatsApp, error) {
	if cfg.whatsappToken == "" {
		return nil, goerr.New("whatsapp-token is required")
	}
	if cfg.whatsappPhoneNumberID == "" {
		return nil, goerr.New("whatsapp-phone-number-id is required")
	}
	return adapter.NewWhatsApp(cfg.whatsappToken, cfg.whatsappPhoneNumberID), nil
}

// newTelegram creates a new Telegram channel
func (cfg *config) newTelegram() (*adapter.Telegram, error) {
	if cfg.telegramToken == "" {
		return nil, goerr.New("telegram-token is required")
	}
	return adapter.NewTelegram(cfg.telegramToken), nil
}

// newStorage creates a new Storage adapter instance
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.mediaBucket == "" {
		return nil, goerr.New("media-bucket is required")
	}

	storage, err := adapter.NewStorage(ctx, cfg.mediaBucket)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}
