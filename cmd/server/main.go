package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/lifecoachhq/coachapi/internal/ai"
	"github.com/lifecoachhq/coachapi/internal/chat"
	"github.com/lifecoachhq/coachapi/internal/config"
	"github.com/lifecoachhq/coachapi/internal/db"
	"github.com/lifecoachhq/coachapi/internal/httpapi"
	"github.com/lifecoachhq/coachapi/internal/httpapi/handlers"
	"github.com/lifecoachhq/coachapi/internal/models"
	"github.com/lifecoachhq/coachapi/internal/sqlexec"
	"github.com/lifecoachhq/coachapi/internal/store/rabbitmq"
	"github.com/lifecoachhq/coachapi/internal/store/redisstore"
)

func buildRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("ollama", func(ctx context.Context) (ai.Provider, error) {
		_ = ctx
		return ai.NewOllamaProvider(cfg.OllamaBaseURL), nil
	})
	reg.Register("openrouter", func(ctx context.Context) (ai.Provider, error) {
		_ = ctx
		return ai.NewOpenRouterProvider(
			cfg.OpenRouterBaseURL,
			cfg.OpenRouterAPIKey,
			cfg.OpenRouterSiteURL,
			cfg.OpenRouterAppName,
		), nil
	})
	return reg
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	if err := gdb.AutoMigrate(&models.User{}, &chat.Thread{}, &chat.Message{}, &chat.Job{}); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	rabbit, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit connect: %v", err)
	}
	defer rabbit.Close()

	reg := buildRegistry(cfg)
	provider, err := reg.Get(context.Background(), cfg.AIProvider)
	if err != nil {
		log.Fatalf("ai provider: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	engine := ai.NewEngine(provider, sqlexec.NewGormExecutor(gdb), logger)

	repo := chat.NewRepo(gdb)
	svc := chat.NewService(repo, engine, rds, cfg.ChatHistorySize)

	// One coaching session per account, built on first use. The schema
	// document is read once here so a bad path fails at boot, not on the
	// first request.
	schemaDoc, err := os.ReadFile(cfg.SchemaDocPath)
	if err != nil {
		log.Fatalf("read schema document %s: %v", cfg.SchemaDocPath, err)
	}
	assistants := handlers.NewAssistantManager(func(ownerID uint64) (*chat.Session, error) {
		return chat.NewSession(chat.SessionParams{
			Name:      "coach",
			SchemaDoc: string(schemaDoc),
			AllowedModels: []string{
				cfg.AssistantModel,
			},
			Engine: engine,
			Logger: logger.With("owner_id", ownerID),
		})
	})

	r := httpapi.NewRouter(gdb, cfg, svc, assistants, rabbit)

	log.Printf("server listening on %s", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
