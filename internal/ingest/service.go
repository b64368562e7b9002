package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/pubsub"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	authdomain "mailpilot-backend/internal/auth/domain"
	authrepo "mailpilot-backend/internal/auth/repository"
	"mailpilot-backend/internal/rule/domain"
	"mailpilot-backend/internal/rule/usecase"
	"mailpilot-backend/pkg/gmail"
)

// GmailNotification is the payload Gmail publishes on the watch topic
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Service consumes Gmail watch notifications from Pub/Sub and feeds each new
// message through the rule engine. It is the engine's event source boundary:
// the engine itself has no opinion on how events arrive
type Service struct {
	pubsubClient *pubsub.Client
	userRepo     authrepo.UserRepository
	gmailService *gmail.Service
	ruleUsecase  usecase.RuleUsecase
	projectID    string
	topicName    string
	subName      string
}

// NewService creates the ingestion consumer
func NewService(projectID, topicName string, userRepo authrepo.UserRepository, gmailService *gmail.Service, ruleUsecase usecase.RuleUsecase, credentialsFile string) (*Service, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %v", err)
	}

	return &Service{
		pubsubClient: client,
		userRepo:     userRepo,
		gmailService: gmailService,
		ruleUsecase:  ruleUsecase,
		projectID:    projectID,
		topicName:    topicName,
		subName:      topicName + "-sub", // Convention: topic-sub
	}, nil
}

// Start blocks receiving notifications until the context is cancelled
func (s *Service) Start(ctx context.Context) {
	log.Printf("[Ingest] starting with topic: %s, subscription: %s", s.topicName, s.subName)

	// Gmail watch registrations expire after 7 days; renew them daily
	go s.renewWatchesLoop(ctx)

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[Ingest] error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil || !topicExists {
			log.Printf("[Ingest] topic %s not available (err=%v), ingestion disabled", s.topicName, err)
			return
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[Ingest] failed to create subscription: %v", err)
			return
		}
		log.Printf("[Ingest] created subscription %s", s.subName)
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleNotification(ctx, msg.Data)
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		log.Printf("[Ingest] receive loop ended: %v", err)
	}
}

func (s *Service) handleNotification(ctx context.Context, data []byte) {
	var notif GmailNotification
	if err := json.Unmarshal(data, &notif); err != nil {
		log.Printf("[Ingest] malformed notification: %v", err)
		return
	}

	user, err := s.userRepo.FindByEmail(notif.EmailAddress)
	if err != nil || user == nil {
		log.Printf("[Ingest] no user for address %s", notif.EmailAddress)
		return
	}

	// Stale or duplicate notification: the cursor already passed this point
	if user.LastHistoryID >= notif.HistoryID {
		return
	}

	startID := user.LastHistoryID
	if startID == 0 {
		// First notification for this user: start from its history id and
		// only pick up what comes after
		if err := s.userRepo.UpdateLastHistoryID(user.ID, notif.HistoryID); err != nil {
			log.Printf("[Ingest] failed to init history cursor for user %s: %v", user.ID, err)
		}
		return
	}

	onRefresh := s.tokenRefreshCallback(user)

	messageIDs, latest, err := s.gmailService.ListNewMessageIDs(ctx, user.AccessToken, user.RefreshToken, startID, onRefresh)
	if err != nil {
		log.Printf("[Ingest] failed to list history for user %s: %v", user.ID, err)
		return
	}

	for _, messageID := range messageIDs {
		event, err := s.gmailService.GetEmailByID(ctx, user.AccessToken, user.RefreshToken, messageID, onRefresh)
		if err != nil {
			log.Printf("[Ingest] failed to load message %s: %v", messageID, err)
			continue
		}

		result, err := s.ruleUsecase.ProcessEmail(ctx, user.ID, event, domain.TriggerSync)
		if err != nil {
			log.Printf("[Ingest] rule pass failed for message %s: %v", messageID, err)
			continue
		}
		if result.RulesExecuted > 0 {
			log.Printf("[Ingest] message %s: %d rule(s) fired, %d action(s) in %dms",
				messageID, result.RulesExecuted, result.ActionsExecuted, result.ExecutionTimeMs)
		}
	}

	if latest > user.LastHistoryID {
		if err := s.userRepo.UpdateLastHistoryID(user.ID, latest); err != nil {
			log.Printf("[Ingest] failed to advance history cursor for user %s: %v", user.ID, err)
		}
	}
}

func (s *Service) renewWatchesLoop(ctx context.Context) {
	s.renewWatches(ctx)

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.renewWatches(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) renewWatches(ctx context.Context) {
	users, err := s.userRepo.FindAll()
	if err != nil {
		log.Printf("[Ingest] failed to list users for watch renewal: %v", err)
		return
	}

	fullTopic := fmt.Sprintf("projects/%s/topics/%s", s.projectID, s.topicName)
	for _, user := range users {
		if user.RefreshToken == "" {
			continue
		}
		err := s.gmailService.Watch(ctx, user.AccessToken, user.RefreshToken, fullTopic, s.tokenRefreshCallback(user))
		if err != nil {
			log.Printf("[Ingest] failed to renew watch for user %s: %v", user.ID, err)
		}
	}
}

func (s *Service) tokenRefreshCallback(user *authdomain.User) gmail.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		return s.userRepo.UpdateTokens(user.ID, token.AccessToken, token.RefreshToken)
	}
}
