package bootstrap

import (
	"log"
	"time"

	"study-pipeline-be/internal/config"
	"study-pipeline-be/internal/controller"
	"study-pipeline-be/internal/metrics"
	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/internal/repository/memory"
	"study-pipeline-be/internal/service"
	"study-pipeline-be/internal/websocket"
	"study-pipeline-be/pkg/events"
	"study-pipeline-be/pkg/extraction"
	"study-pipeline-be/pkg/generator"
	"study-pipeline-be/pkg/llm/factory"
	"study-pipeline-be/pkg/llm/resilient"
	pktNats "study-pipeline-be/pkg/nats"
	"study-pipeline-be/pkg/optimizer"
	"study-pipeline-be/pkg/relay"
	"study-pipeline-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const noteJobTopic = "note-jobs"

type Container struct {
	// Controllers
	SessionController controller.ISessionController
	JobController     controller.IJobController
	DebugController   controller.IDebugController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	WebSocketHub    *websocket.Hub

	Metrics *metrics.Collector
	Logger  logger.ILogger

	natsPublisher *pktNats.Publisher
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.IsProduction())
	llmLogger := logger.NewIsolatedLogger(cfg.App.LLMLogFilePath)
	collector := metrics.NewCollector("study_pipeline")

	// 2. Event Bus
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewStdLogger(false, false),
	)

	var eventPublisher events.Publisher = events.NopPublisher{}
	var natsPub *pktNats.Publisher
	if cfg.App.NatsURL != "" {
		pub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			natsPub = pub
			eventPublisher = pub
		}
	}
	pipelineEvents := events.NewPipelinePublisher(eventPublisher, sysLogger)

	// 3. Completion Provider
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.BaseURL,
		cfg.Ai.APIKey,
		resilientConfig(cfg.Pipeline),
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 4. Pipeline Components
	prices := optimizer.DefaultPriceTable()
	if cfg.Pipeline.PriceTablePath != "" {
		loaded, err := optimizer.LoadPriceTable(cfg.Pipeline.PriceTablePath)
		if err != nil {
			log.Printf("[WARN] Failed to load price table %s: %v. Using defaults", cfg.Pipeline.PriceTablePath, err)
		} else {
			prices = loaded
		}
	}
	textOptimizer := optimizer.New(llmProvider, optimizer.Config{
		MaxTokensPerChunk: cfg.Pipeline.MaxTokensPerChunk,
		CharsPerToken:     cfg.Pipeline.CharsPerToken,
		MinChunkChars:     cfg.Pipeline.MinChunkChars,
		MinAlphaRatio:     cfg.Pipeline.MinAlphaRatio,
		Concurrency:       cfg.Pipeline.OptimizerConcurrency,
		ChunkTimeout:      cfg.Pipeline.OptimizerChunkTimeout,
		Model:             cfg.Ai.LLMModel,
	}, prices, sysLogger)

	generators := generator.NewRegistry(llmProvider, generator.Config{
		MaxSourceChars: cfg.Pipeline.MaxSourceChars,
		Temperature:    cfg.Ai.Temperature,
		Timeouts: map[store.OutputKind]time.Duration{
			store.OutputKindNotes:       cfg.Pipeline.NotesTimeout,
			store.OutputKindSummary:     cfg.Pipeline.SummaryTimeout,
			store.OutputKindFlashcards:  cfg.Pipeline.FlashcardsTimeout,
			store.OutputKindQuiz:        cfg.Pipeline.QuizTimeout,
			store.OutputKindTimeline:    cfg.Pipeline.TimelineTimeout,
			store.OutputKindChat:        cfg.Pipeline.ChatTimeout,
			store.OutputKindSectionEdit: cfg.Pipeline.SectionEditTimeout,
		},
	}, sysLogger, llmLogger)

	streamRelay := relay.New(llmProvider, cfg.Pipeline.StreamTimeout, sysLogger)

	// 5. Storage
	sessionRepo := memory.NewSessionRepository()
	jobRepo := memory.NewJobRepository()

	// WebSocket Hub
	wsHub := websocket.NewHub(sysLogger)

	// 6. Services
	pipelineService := service.NewPipelineService(
		sessionRepo,
		extraction.NewService(sysLogger),
		textOptimizer,
		generators,
		streamRelay,
		pipelineEvents,
		collector,
		sysLogger,
	)

	publisherService := service.NewPublisherService(noteJobTopic, pubSub)
	jobService := service.NewJobService(sessionRepo, jobRepo, publisherService, pipelineEvents, wsHub, collector, sysLogger)
	consumerService := service.NewConsumerService(
		pubSub,
		noteJobTopic,
		sessionRepo,
		jobRepo,
		pipelineService,
		pipelineEvents,
		wsHub, // Hub implements JobNotifier
		collector,
		sysLogger,
		cfg.Pipeline.JobTimeout,
		cfg.Pipeline.JobWorkers,
	)

	// 7. Controllers
	return &Container{
		SessionController: controller.NewSessionController(pipelineService, jobService, sysLogger),
		JobController:     controller.NewJobController(jobService, wsHub, sysLogger),
		DebugController:   controller.NewDebugController(pipelineService, sysLogger),

		ConsumerService: consumerService,
		WebSocketHub:    wsHub,
		Metrics:         collector,
		Logger:          sysLogger,
		natsPublisher:   natsPub,
	}
}

func resilientConfig(p config.PipelineConfig) resilient.Config {
	cfg := resilient.DefaultConfig()
	cfg.CallTimeout = p.ProviderCallTimeout
	cfg.MaxRetries = uint(max(p.ProviderMaxRetries, 0))
	cfg.InitialBackoff = p.RetryInitialBackoff
	cfg.MaxBackoff = p.RetryMaxBackoff
	cfg.MinRequests = uint32(max(p.BreakerMinRequests, 0))
	cfg.FailureThreshold = p.BreakerFailureRatio
	cfg.OpenTimeout = p.BreakerOpenTimeout
	return cfg
}

// Close releases connections held by the container.
func (c *Container) Close() {
	if c.natsPublisher != nil {
		c.natsPublisher.Close()
	}
	_ = c.Logger.Sync()
}
