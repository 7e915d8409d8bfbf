package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmcnabb/tickerwatch/internal/clients/gemini"
	"github.com/bmcnabb/tickerwatch/internal/clients/krx"
	"github.com/bmcnabb/tickerwatch/internal/clients/quoteapi"
	"github.com/bmcnabb/tickerwatch/internal/common"
	"github.com/bmcnabb/tickerwatch/internal/interfaces"
	"github.com/bmcnabb/tickerwatch/internal/models"
	"github.com/bmcnabb/tickerwatch/internal/services/enrich"
	"github.com/bmcnabb/tickerwatch/internal/services/quote"
	"github.com/bmcnabb/tickerwatch/internal/services/rank"
	"github.com/bmcnabb/tickerwatch/internal/storage/surrealdb"
)

// App holds all initialized services, clients, and storage. It is the shared
// core behind cmd/tickerwatch-server.
type App struct {
	Config        *common.Config
	Logger        *common.Logger
	Storage       interfaces.StorageManager
	QuoteClient   interfaces.QuoteClient
	IndexClient   interfaces.IndexClient
	Generative    interfaces.GenerativeClient
	QuoteService  interfaces.QuoteService
	RankService   interfaces.RankService
	EnrichService interfaces.EnrichService
	StartupTime   time.Time

	schedulerCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, storage, clients and services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	// Check provided path, TICKERWATCH_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("TICKERWATCH_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "tickerwatch.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/tickerwatch.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	storageManager, err := surrealdb.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ctx := context.Background()

	// Quote provider client
	var quoteClient interfaces.QuoteClient
	if config.Clients.QuoteAPI.APIKey != "" {
		quoteClient = quoteapi.NewClient(config.Clients.QuoteAPI.BaseURL, config.Clients.QuoteAPI.APIKey,
			quoteapi.WithLogger(logger),
			quoteapi.WithRateLimit(config.Clients.QuoteAPI.RateLimit),
			quoteapi.WithTimeout(config.Clients.QuoteAPI.GetTimeout()),
			quoteapi.WithRetries(config.Clients.QuoteAPI.MaxRetries, config.Clients.QuoteAPI.GetBackoffBase()),
		)
	} else {
		logger.Warn().Msg("Quote API key not configured - live quotes will be unavailable")
	}

	// Index-constituent client
	indexClient := krx.NewClient(
		krx.WithBaseURL(config.Clients.KRX.BaseURL),
		krx.WithLogger(logger),
		krx.WithRateLimit(config.Clients.KRX.RateLimit),
		krx.WithTimeout(config.Clients.KRX.GetTimeout()),
		krx.WithSessionTTL(config.Clients.KRX.GetSessionTTL()),
	)

	// Generative client (optional)
	var generative interfaces.GenerativeClient
	if config.Clients.Gemini.APIKey != "" {
		geminiClient, err := gemini.NewClient(ctx, config.Clients.Gemini.APIKey,
			gemini.WithLogger(logger),
			gemini.WithModel(config.Clients.Gemini.Model),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize Gemini client")
		} else {
			generative = geminiClient
		}
	} else {
		logger.Warn().Msg("Gemini API key not configured - generative fallbacks will be unavailable")
	}

	// Maps a symbol key to the provider's symbol string, e.g. 005930/KOSPI
	// to 005930.KS.
	symbolFor := func(key models.SymbolKey) string {
		return config.Clients.QuoteAPI.ProviderSymbol(key.Ticker, key.Market)
	}

	// Services
	cache := quote.NewCache(config.Engine.GetOpenTTL(), config.Engine.GetClosedTTL(),
		quote.WithMaxEntries(config.Engine.CacheMaxEntries))
	quoteService := quote.NewService(quoteClient, cache, symbolFor, logger,
		quote.Options{
			StalenessThreshold: config.Engine.GetStalenessThreshold(),
			Concurrency:        config.Engine.FetchConcurrency,
			RetryDebounce:      config.Engine.GetRetryDebounce(),
		})

	builder := rank.NewBuilder(indexClient, generative, logger, config.Engine.MinRankMembers)
	writer := rank.NewWriter(storageManager.SymbolStore(), logger, config.Engine.WriteChunkSize)
	rankService := rank.NewService(builder, writer, &config.Engine, logger)

	enrichService := enrich.NewService(storageManager.SymbolStore(), storageManager.WatchStore(),
		quoteClient, generative, &config.Engine, symbolFor, logger)

	a := &App{
		Config:        config,
		Logger:        logger,
		Storage:       storageManager,
		QuoteClient:   quoteClient,
		IndexClient:   indexClient,
		Generative:    generative,
		QuoteService:  quoteService,
		RankService:   rankService,
		EnrichService: enrichService,
		StartupTime:   startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// Close releases all resources held by the App.
// Shutdown order: cancel scheduler, close storage.
func (a *App) Close() {
	if a.schedulerCancel != nil {
		a.schedulerCancel()
		a.schedulerCancel = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}

// StartRankScheduler launches the periodic rank refresh goroutine.
func (a *App) StartRankScheduler() {
	ctx, cancel := context.WithCancel(context.Background())
	a.schedulerCancel = cancel
	go startRankScheduler(ctx, a.RankService, a.Logger, a.Config.Engine.GetRefreshInterval())
}
