// Trempist server — conversational ride-sharing coordinator over WhatsApp.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/trempist/trempist/pkg/api"
	"github.com/trempist/trempist/pkg/chat"
	"github.com/trempist/trempist/pkg/config"
	"github.com/trempist/trempist/pkg/database"
	"github.com/trempist/trempist/pkg/dispatch"
	"github.com/trempist/trempist/pkg/gazetteer"
	"github.com/trempist/trempist/pkg/llm"
	"github.com/trempist/trempist/pkg/matching"
	"github.com/trempist/trempist/pkg/notify"
	"github.com/trempist/trempist/pkg/pipeline"
	"github.com/trempist/trempist/pkg/routing"
	"github.com/trempist/trempist/pkg/store"
	"github.com/trempist/trempist/pkg/whatsapp"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
		log.Printf("Continuing with existing environment variables...")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("Error closing database client: %v", err)
		}
	}()
	log.Println("✓ Connected to PostgreSQL database")

	gaz, err := gazetteer.Load()
	if err != nil {
		log.Fatalf("Failed to load gazetteer: %v", err)
	}
	log.Printf("✓ Gazetteer loaded (%d settlements)", gaz.Len())

	rideStore := store.NewPostgresStore(dbClient)

	sink := whatsapp.NewClient(cfg.ChatProviderBaseURL, cfg.ChatProviderPhoneID, cfg.ChatProviderToken)

	engine := matching.NewEngine(rideStore, gaz)
	emitter := notify.NewEmitter(rideStore, sink)

	router := routing.NewClient(cfg.RoutingBaseURL,
		routing.WithCallTimeout(cfg.RouteTimeout))
	planner := pipeline.NewPlanner(gaz, router, rideStore, engine, emitter, cfg.RouteMaxInFlight)

	dispatcher := dispatch.NewDispatcher(rideStore, gaz, engine, emitter, planner)

	llmClient := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		Timeout:     cfg.LLMTimeout,
		Retries:     cfg.LLMRetries,
		MaxInFlight: cfg.LLMMaxInFlight,
	})

	admin := chat.NewAdminHandler(rideStore, cfg.AdminToken)
	orchestrator := chat.NewOrchestrator(rideStore, llmClient, dispatcher, sink, admin,
		cfg.AIContextMessages, cfg.MaxChatHistory)

	server := api.NewServer(cfg, dbClient, orchestrator, rideStore)
	log.Printf("✓ Services initialized")

	if err := server.Start(ctx); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}

	// Let in-flight route pipelines settle before exiting.
	planner.Wait()
	log.Println("Shutdown complete")
}
