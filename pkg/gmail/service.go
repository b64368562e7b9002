package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	emaildomain "mailpilot-backend/internal/email/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc = emaildomain.TokenUpdateFunc

// Service wraps the Gmail API for per-user calls. Each method builds an
// authenticated client from the caller's tokens; refreshed tokens are
// reported through the callback so they can be persisted
type Service struct {
	clientID     string
	clientSecret string
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			fmt.Printf("Failed to update token: %v\n", err)
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// getGmailService creates a Gmail service with the user's access token
func (s *Service) getGmailService(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	}

	// Only force refresh if we have a refresh token
	if refreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	tokenSource := config.TokenSource(ctx, token)

	// Wrap token source to detect refreshes
	wrappedSource := &notifyTokenSource{
		src:      tokenSource,
		current:  token,
		callback: onTokenRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}

	return srv, nil
}

// MarkAsRead removes the UNREAD label from a message
func (s *Service) MarkAsRead(ctx context.Context, accessToken, refreshToken, messageID string, onTokenRefresh TokenUpdateFunc) error {
	return s.ModifyMessageLabels(ctx, accessToken, refreshToken, messageID, nil, []string{"UNREAD"}, onTokenRefresh)
}

// MarkAsUnread adds the UNREAD label to a message
func (s *Service) MarkAsUnread(ctx context.Context, accessToken, refreshToken, messageID string, onTokenRefresh TokenUpdateFunc) error {
	return s.ModifyMessageLabels(ctx, accessToken, refreshToken, messageID, []string{"UNREAD"}, nil, onTokenRefresh)
}

// ArchiveEmail removes the message from the inbox without deleting it
func (s *Service) ArchiveEmail(ctx context.Context, accessToken, refreshToken, messageID string, onTokenRefresh TokenUpdateFunc) error {
	return s.ModifyMessageLabels(ctx, accessToken, refreshToken, messageID, nil, []string{"INBOX"}, onTokenRefresh)
}

// TrashEmail moves the message to the trash
func (s *Service) TrashEmail(ctx context.Context, accessToken, refreshToken, messageID string, onTokenRefresh TokenUpdateFunc) error {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return err
	}

	_, err = srv.Users.Messages.Trash("me", messageID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to trash message: %v", err)
	}
	return nil
}

// ModifyMessageLabels adds and removes labels on a message
func (s *Service) ModifyMessageLabels(ctx context.Context, accessToken, refreshToken, messageID string, addLabelIDs, removeLabelIDs []string, onTokenRefresh TokenUpdateFunc) error {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return err
	}

	req := &gmail.ModifyMessageRequest{
		AddLabelIds:    addLabelIDs,
		RemoveLabelIds: removeLabelIDs,
	}
	_, err = srv.Users.Messages.Modify("me", messageID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to modify message labels: %v", err)
	}
	return nil
}

// ResolveLabelID finds a user label by name, optionally creating it when missing
func (s *Service) ResolveLabelID(ctx context.Context, accessToken, refreshToken, labelName string, createMissing bool, onTokenRefresh TokenUpdateFunc) (string, error) {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return "", err
	}

	labelsResp, err := srv.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to retrieve labels: %v", err)
	}

	for _, label := range labelsResp.Labels {
		if strings.EqualFold(label.Name, labelName) {
			return label.Id, nil
		}
	}

	if !createMissing {
		return "", fmt.Errorf("label %q not found", labelName)
	}

	created, err := srv.Users.Labels.Create("me", &gmail.Label{
		Name:                  labelName,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create label %q: %v", labelName, err)
	}
	return created.Id, nil
}

// GetEmailByID loads one message as an evaluation snapshot
func (s *Service) GetEmailByID(ctx context.Context, accessToken, refreshToken, messageID string, onTokenRefresh TokenUpdateFunc) (*emaildomain.EmailEvent, error) {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	msg, err := srv.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve message: %v", err)
	}

	return convertMessageToEvent(msg), nil
}

// SendRawEmail sends a raw RFC822 message; a non-empty threadID keeps it in
// an existing conversation
func (s *Service) SendRawEmail(ctx context.Context, accessToken, refreshToken string, raw []byte, threadID string, onTokenRefresh TokenUpdateFunc) error {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return err
	}

	msg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: threadID,
	}
	_, err = srv.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to send message: %v", err)
	}
	return nil
}

// ListNewMessageIDs returns message ids added since startHistoryID and the
// latest history id to resume from
func (s *Service) ListNewMessageIDs(ctx context.Context, accessToken, refreshToken string, startHistoryID uint64, onTokenRefresh TokenUpdateFunc) ([]string, uint64, error) {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return nil, 0, err
	}

	var ids []string
	latest := startHistoryID
	pageToken := ""

	for {
		call := srv.Users.History.List("me").
			StartHistoryId(startHistoryID).
			HistoryTypes("messageAdded").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, 0, fmt.Errorf("unable to list history: %v", err)
		}
		if resp.HistoryId > latest {
			latest = resp.HistoryId
		}
		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message != nil {
					ids = append(ids, added.Message.Id)
				}
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return ids, latest, nil
}

// Watch registers the user's mailbox for Pub/Sub push notifications
func (s *Service) Watch(ctx context.Context, accessToken, refreshToken string, topicName string, onTokenRefresh TokenUpdateFunc) error {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return err
	}

	req := &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}
	_, err = srv.Users.Watch("me", req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to watch mailbox: %v", err)
	}
	return nil
}

// Helper functions

func convertMessageToEvent(msg *gmail.Message) *emaildomain.EmailEvent {
	from := getHeader(msg.Payload.Headers, "From")

	toHeader := getHeader(msg.Payload.Headers, "To")
	toArray := []string{}
	if toHeader != "" {
		for _, addr := range strings.Split(toHeader, ",") {
			toArray = append(toArray, strings.TrimSpace(addr))
		}
	}

	body := getEmailBody(msg.Payload)

	return &emaildomain.EmailEvent{
		MessageID:     msg.Id,
		ThreadID:      msg.ThreadId,
		Subject:       getHeader(msg.Payload.Headers, "Subject"),
		Snippet:       msg.Snippet,
		Body:          body,
		From:          from,
		To:            toArray,
		ReceivedAt:    time.Unix(msg.InternalDate/1000, 0),
		IsRead:        !hasLabel(msg.LabelIds, "UNREAD"),
		HasAttachment: hasAttachment(msg.Payload),
		Labels:        msg.LabelIds,
	}
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if header.Name == name {
			return header.Value
		}
	}
	return ""
}

func getEmailBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	if payload.Body != nil && payload.Body.Data != "" {
		if data, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
			return string(data)
		}
	}

	var htmlBody string
	var plainBody string

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.MimeType == "text/html" && part.Body != nil && part.Body.Data != "" {
				if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					htmlBody = string(data)
				}
			} else if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
				if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					plainBody = string(data)
				}
			}

			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}

	findBody(payload.Parts)

	if plainBody != "" {
		return plainBody
	}
	return htmlBody
}

func hasAttachment(payload *gmail.MessagePart) bool {
	if payload == nil {
		return false
	}

	found := false
	var walk func(parts []*gmail.MessagePart)
	walk = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
				found = true
				return
			}
			if len(part.Parts) > 0 {
				walk(part.Parts)
			}
		}
	}

	walk(payload.Parts)
	return found
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}
