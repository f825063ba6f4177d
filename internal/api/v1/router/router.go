package router

import (
	"context"
	"net/http"
	"strings"

	"app/internal/admission"
	"app/internal/api/v1/handler"
	"app/internal/config"
	"app/internal/middleware"
	"app/internal/plan"
	"app/internal/pubsub"
	"app/internal/repository"
	"app/internal/service"
	"app/internal/speech"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func New(cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initializing")
	ctx := context.Background()

	// 1. Open DB connection pool
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Msgf("Failed to create DB pool: %v", err)
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Msgf("Failed to ping DB: %v", err)
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	// 2. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 3. Resolve the LLM provider key, from Secret Manager when configured
	openAIKey := cfg.OpenAIAPIKey
	if cfg.OpenAIKeySecretName != "" {
		sm, err := service.NewSecretManagerService(ctx, cfg)
		if err != nil {
			logger.Fatal().Msgf("Failed to create Secret Manager client: %v", err)
			return nil, nil, err
		}
		openAIKey, err = sm.GetSecret(ctx, cfg.OpenAIKeySecretName)
		if err != nil {
			logger.Fatal().Msgf("Failed to fetch OpenAI key secret: %v", err)
			return nil, nil, err
		}
		sm.Close()
	}

	// 4. Initialize upstream clients
	llm := service.NewOpenAIClient(openAIKey, cfg.OpenAIBaseURL, logger)
	if err := llm.ValidateKey(ctx, plan.ModelGPT41Mini); err != nil {
		logger.Fatal().Msgf("OpenAI key validation failed: %v", err)
		return nil, nil, err
	}
	recognizer := speech.NewDeepgramClient(cfg.DeepgramAPIKey, cfg.DeepgramWSURL, logger)

	// 5. Initialize Pub/Sub publisher for usage event fan-out
	var publisher pubsub.Publisher
	if cfg.UsageEventTopic != "" && cfg.GCPProjectID != "" {
		p, err := pubsub.NewPublisher(ctx, cfg)
		if err != nil {
			logger.Fatal().Msgf("Failed to create Pub/Sub publisher: %v", err)
			return nil, nil, err
		}
		publisher = p
	}

	// 6. Initialize repositories, services, and handlers
	subRepo := repository.NewSubscriptionRepo(pool)
	usageRepo := repository.NewUsageRepo(pool)

	entitlementSvc := service.NewEntitlementService(subRepo, plan.Default(), logger)
	admissionCtrl := admission.New(logger)
	aiSvc := service.NewAIService(entitlementSvc, usageRepo, admissionCtrl, llm, publisher, cfg.UsageEventTopic, logger)

	aiHandler := handler.NewAIHandler(aiSvc, validate, logger)
	aiStreamHandler := handler.NewAIStreamHandler(aiSvc, cfg.AllowedOrigins, logger)
	transcriptionHandler := handler.NewTranscriptionHandler(recognizer, cfg.AllowedOrigins, logger)

	// 7. Initialize middleware
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)

	// 8. Create ServeMux router
	mux := http.NewServeMux()

	apiV1Mux := http.NewServeMux()
	aiHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	aiStreamHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	transcriptionHandler.RegisterRoutes(apiV1Mux, authMiddleware)

	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// 9. Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(c.Handler(mux)), pool, nil
}

func allowedOrigins(cfg *config.Config) []string {
	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
