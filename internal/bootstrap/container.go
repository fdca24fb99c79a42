package bootstrap

import (
	"context"
	"log"
	"time"

	"ai-chat-be/internal/config"
	"ai-chat-be/internal/controller"
	"ai-chat-be/internal/entity"
	"ai-chat-be/internal/events"
	"ai-chat-be/internal/pkg/logger"
	memstore "ai-chat-be/internal/repository/memory"
	"ai-chat-be/internal/repository/unitofwork"
	"ai-chat-be/internal/service"
	"ai-chat-be/internal/websocket"
	"ai-chat-be/pkg/listcache"
	"ai-chat-be/pkg/llm/factory"
	"ai-chat-be/pkg/memory"
	"ai-chat-be/pkg/upload"

	pktNats "ai-chat-be/pkg/nats"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// activeViewTTL bounds how long an idle conversation view stays in memory
// before it is rebuilt from the store.
const activeViewTTL = 30 * time.Minute

type Container struct {
	// Controllers
	ConversationController controller.IConversationController
	MemoryController       controller.IMemoryController
	UploadController       controller.IUploadController

	// WebSockets
	WebSocketHub *websocket.Hub

	// In-process structural event bus
	EventHub *events.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	eventHub := events.NewHub(sysLogger)

	// 3. External Collaborators
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		llmBaseURL(cfg),
		cfg.Keys.OpenAI,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	memoryClient := memory.NewClient(cfg.Keys.Mem0, cfg.Ai.MemoryBaseURL, cfg.Ai.MemoryOrgID, cfg.Ai.MemoryProject)
	if !memoryClient.Enabled() {
		log.Printf("[INFO] Memory service not configured; completions use the default system prompt")
	}

	uploadClient := upload.NewClient(cfg.Upload.BaseURL, cfg.Upload.CDNPrefix, cfg.Upload.PublicKey)

	// 4. In-Memory State
	views := memstore.NewViewStore(activeViewTTL, cfg.Chat.SettleDelay)

	listCache := listcache.NewCache(
		func(ctx context.Context, ownerId uuid.UUID) ([]*entity.ConversationSummary, error) {
			uow := uowFactory.NewUnitOfWork(ctx)
			return uow.ConversationRepository().ListSummaries(ctx, ownerId)
		},
		cfg.Chat.ListRefreshInterval,
		sysLogger,
	)
	go listCache.StartRefreshLoop(context.Background(), cfg.Chat.ListRefreshInterval)

	// 5. Infrastructure
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		natsPub = nil
	}

	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/websocket.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()
	if err := wsHub.ConsumeStructuralEvents(context.Background(), eventHub); err != nil {
		log.Printf("[WARN] WebSocket hub could not subscribe to structural events: %v", err)
	}

	// 6. Services
	chatService := service.NewChatService(
		uowFactory,
		llmProvider,
		memoryClient,
		views,
		listCache,
		eventHub,
		natsPub,
		sysLogger,
		cfg,
	)
	memoryService := service.NewMemoryService(memoryClient, sysLogger)
	uploadService := service.NewUploadService(uploadClient, sysLogger)

	// 7. Controllers
	return &Container{
		ConversationController: controller.NewConversationController(chatService, sysLogger),
		MemoryController:       controller.NewMemoryController(memoryService),
		UploadController:       controller.NewUploadController(uploadService),
		WebSocketHub:           wsHub,
		EventHub:               eventHub,
	}
}

func llmBaseURL(cfg *config.Config) string {
	if cfg.Ai.LLMProvider == "ollama" {
		return cfg.Ai.OllamaBaseURL
	}
	return cfg.Ai.OpenAIBaseURL
}
