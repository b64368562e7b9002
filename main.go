package main

import (
	"context"
	"errors"
	"log"

	api "mailpilot-backend/cmd/api"
	authdomain "mailpilot-backend/internal/auth/domain"
	authRepo "mailpilot-backend/internal/auth/repository"
	"mailpilot-backend/internal/ingest"
	ruledomain "mailpilot-backend/internal/rule/domain"
	"mailpilot-backend/internal/rule/engine"
	ruleRepo "mailpilot-backend/internal/rule/repository"
	ruleUsecase "mailpilot-backend/internal/rule/usecase"
	"mailpilot-backend/internal/rule/worker"
	"mailpilot-backend/pkg/config"
	"mailpilot-backend/pkg/database"
	"mailpilot-backend/pkg/gmail"

	"golang.org/x/oauth2"
)

// mailAccountAdapter exposes a user's stored Gmail tokens as engine
// credentials; refreshed tokens flow back into the user row
type mailAccountAdapter struct {
	users authRepo.UserRepository
}

func (a *mailAccountAdapter) CredentialsForUser(userID string) (engine.MailCredentials, error) {
	user, err := a.users.FindByID(userID)
	if err != nil {
		return engine.MailCredentials{}, err
	}
	if user == nil {
		return engine.MailCredentials{}, errors.New("user not found")
	}
	return engine.MailCredentials{
		Email:        user.Email,
		AccessToken:  user.AccessToken,
		RefreshToken: user.RefreshToken,
		OnTokenRefresh: func(token *oauth2.Token) error {
			return a.users.UpdateTokens(user.ID, token.AccessToken, token.RefreshToken)
		},
	}, nil
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{},
		&ruledomain.Rule{},
		&ruledomain.RuleCondition{},
		&ruledomain.RuleAction{},
		&ruledomain.ExecutionRecord{},
		&ruledomain.QueuedAction{},
		&ruledomain.RuleHistory{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	userRepository := authRepo.NewUserRepository(db)
	ruleRepository := ruleRepo.NewGormRuleRepository(db)
	executionRepository := ruleRepo.NewGormExecutionRepository(db)
	queueRepository := ruleRepo.NewGormQueuedActionRepository(db)

	// Initialize Gmail provider client
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)

	// Rate limiter windows come from config
	limiterCfg := engine.DefaultRateLimiterConfig()
	limiterCfg.ExecutionLimit = cfg.ExecutionRateLimit
	limiterCfg.ExecutionWindow = cfg.ExecutionWindow
	limiterCfg.ForwardLimit = cfg.ForwardRateLimit
	limiterCfg.ReplyLimit = cfg.ReplyRateLimit
	limiter := engine.NewRateLimiter(limiterCfg, executionRepository, queueRepository)

	accounts := &mailAccountAdapter{users: userRepository}

	// Initialize rule engine use case
	ruleUsecaseInstance := ruleUsecase.NewRuleUsecase(
		ruleRepository,
		executionRepository,
		queueRepository,
		limiter,
		gmailService,
		accounts,
	)

	// Start the async action worker (queue consumer)
	actionWorker := worker.NewAsyncActionWorker(queueRepository, gmailService, accounts, cfg.WorkerInterval)
	actionWorker.Start()
	defer actionWorker.Stop()

	// Initialize ingestion (Pub/Sub) if a project is configured
	if cfg.GoogleProjectID != "" {
		ingestService, err := ingest.NewService(cfg.GoogleProjectID, cfg.GooglePubSubTopic, userRepository, gmailService, ruleUsecaseInstance, cfg.GoogleCredentials)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize ingest service: %v", err)
		} else {
			go ingestService.Start(context.Background())
		}
	} else {
		log.Printf("[WARN] GoogleProjectID not configured, Pub/Sub ingestion disabled")
	}

	// Initialize HTTP handler
	handler := api.NewHandler(ruleUsecaseInstance, cfg)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
