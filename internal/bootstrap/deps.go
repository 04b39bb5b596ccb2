package bootstrap

import (
	"time"

	"replyflow_server/adapter/out/mailbox"
	"replyflow_server/adapter/out/messaging"
	"replyflow_server/adapter/out/persistence"
	"replyflow_server/config"
	"replyflow_server/core/agent/llm"
	"replyflow_server/core/service/classify"
	"replyflow_server/core/service/dispatch"
	syncsvc "replyflow_server/core/service/sync"
	"replyflow_server/infra/database"
	"replyflow_server/pkg/crypto"
	"replyflow_server/pkg/health"
	"replyflow_server/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

type Dependencies struct {
	Config *config.Config
	DB     *pgxpool.Pool
	SQLDB  *sqlx.DB
	Redis  *redis.Client

	// Repositories
	TenantRepo   *persistence.TenantAdapter
	MailboxRepo  *persistence.MailboxAdapter
	MessageRepo  *persistence.MessageAdapter
	SettingsRepo *persistence.SettingsAdapter
	SyncRunRepo  *persistence.SyncRunAdapter
	DispatchRepo *persistence.DispatchAdapter
	CredStore    *persistence.CredentialStore

	// Mailbox transport
	Fetcher *mailbox.IMAPFetcher
	Sender  *mailbox.SMTPSender

	// Messaging
	Producer *messaging.RedisProducer

	// Agent
	LLMClient *llm.Client

	// Services
	ClassifyService *classify.Service
	SyncService     *syncsvc.Service
	DispatchService *dispatch.Service

	// Health
	Health *health.Registry
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	start := time.Now()
	deps := &Dependencies{
		Config: cfg,
		Health: health.NewRegistry(),
	}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Database (pgxpool for migrations and health checks)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// Database (sqlx for the persistence adapters)
	sqlDB, err := database.NewSQLX(cfg.DatabaseURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis carries the job streams between scheduler and workers, so a
	// missing connection is fatal rather than degraded.
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })
	deps.Producer = messaging.NewRedisProducer(redisClient)

	// Credential encryption
	encryptor, err := crypto.NewEncryptor([]byte(cfg.EncryptionKey))
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	// Repositories
	deps.TenantRepo = persistence.NewTenantAdapter(sqlDB)
	deps.MailboxRepo = persistence.NewMailboxAdapter(sqlDB)
	deps.MessageRepo = persistence.NewMessageAdapter(sqlDB)
	deps.SettingsRepo = persistence.NewSettingsAdapter(sqlDB)
	deps.SyncRunRepo = persistence.NewSyncRunAdapter(sqlDB)
	deps.DispatchRepo = persistence.NewDispatchAdapter(sqlDB)
	deps.CredStore = persistence.NewCredentialStore(encryptor)

	// Mailbox transport
	oauth := mailbox.OAuthConfig{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		TokenURL:     cfg.OAuthTokenURL,
	}
	deps.Fetcher = mailbox.NewIMAPFetcher(oauth)
	deps.Sender = mailbox.NewSMTPSender(oauth, cfg.SMTPTimeout)

	// LLM
	deps.LLMClient = llm.NewClient(llm.ClientConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		MaxRetries:  cfg.LLMMaxRetries,
	})

	// Services
	deps.ClassifyService = classify.NewService(deps.LLMClient, logger.Default())

	deps.DispatchService = dispatch.NewService(
		deps.DispatchRepo,
		deps.MailboxRepo,
		deps.CredStore,
		deps.Sender,
		deps.Producer,
		dispatch.Config{
			MaxAttempts: cfg.DispatchMaxAttempts,
			RetryBase:   cfg.DispatchRetryBase,
			RetryMax:    cfg.DispatchRetryMax,
		},
		logger.Default(),
	)

	deps.SyncService = syncsvc.NewService(
		deps.TenantRepo,
		deps.MailboxRepo,
		deps.MessageRepo,
		deps.SettingsRepo,
		deps.SyncRunRepo,
		deps.CredStore,
		deps.Fetcher,
		deps.LLMClient,
		deps.ClassifyService,
		deps.DispatchService,
		syncsvc.Config{
			MailboxTimeout:     cfg.MailboxTimeout,
			MailboxConcurrency: cfg.MailboxConcurrency,
			CooldownBase:       cfg.CooldownBase,
			CooldownMax:        cfg.CooldownMax,
		},
		logger.Default(),
	)

	logger.Info("dependencies initialized in %s", time.Since(start))
	return deps, cleanup, nil
}
