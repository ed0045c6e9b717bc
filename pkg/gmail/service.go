package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"mime"
	"net/mail"
	"os"
	"sync"
	"unicode/utf8"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mailwatch-bot/internal/notifier/domain"
)

// Service is the Gmail-backed mailbox collaborator. Credentials live in a
// token file written by the authorization flow; API clients are built
// per-call from a refreshing token source, and refreshed tokens are
// persisted back to the file.
type Service struct {
	config    *oauth2.Config
	tokenPath string

	mu sync.Mutex
}

// NewService creates a Gmail service with the OAuth client credentials.
func NewService(clientID, clientSecret, tokenPath string) *Service {
	return &Service{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{gmail.GmailModifyScope},
		},
		tokenPath: tokenPath,
	}
}

// notifyTokenSource wraps a token source and persists refreshed tokens so
// a restart does not lose the current access token.
type notifyTokenSource struct {
	src     oauth2.TokenSource
	current *oauth2.Token
	service *Service
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.service.saveToken(t); err != nil {
			log.Printf("[Gmail] Persisting refreshed token failed: %v", err)
		}
	}
	return t, nil
}

// Authorized reports whether a stored credential exists.
func (s *Service) Authorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := os.Stat(s.tokenPath)
	return err == nil
}

// AuthCodeURL returns the consent URL for the installed-app flow.
func (s *Service) AuthCodeURL() string {
	return s.config.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a token and persists it.
func (s *Service) Exchange(ctx context.Context, code string) error {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}
	return s.saveToken(token)
}

// ResetCredentials deletes the stored token.
func (s *Service) ResetCredentials() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset credentials: %w", err)
	}
	return nil
}

// ListUnread returns the identifiers of unread messages in folder.
func (s *Service) ListUnread(ctx context.Context, folder string) ([]string, error) {
	srv, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := srv.Users.Messages.List("me").LabelIds(folder).Q("is:unread").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to list unread messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// GetMetadata fetches sender address, subject and internal timestamp.
func (s *Service) GetMetadata(ctx context.Context, messageID string) (*domain.MessageMeta, error) {
	srv, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	msg, err := srv.Users.Messages.Get("me", messageID).
		Format("metadata").
		MetadataHeaders("From", "Subject", "Date").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve message metadata: %w", err)
	}

	return &domain.MessageMeta{
		ID:         msg.Id,
		Sender:     senderAddress(getHeader(msg.Payload.Headers, "From")),
		Subject:    decodeSubject(getHeader(msg.Payload.Headers, "Subject")),
		InternalTS: msg.InternalDate,
	}, nil
}

// GetBody returns the first text/plain part found by depth-first traversal
// of the message payload, falling back to the provider snippet.
func (s *Service) GetBody(ctx context.Context, messageID string) (string, error) {
	srv, err := s.client(ctx)
	if err != nil {
		return "", err
	}

	msg, err := srv.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to retrieve message body: %w", err)
	}

	var plain string
	var findPlain func(parts []*gmail.MessagePart) bool
	findPlain = func(parts []*gmail.MessagePart) bool {
		for _, part := range parts {
			if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
				if data, err := decodeBase64(part.Body.Data); err == nil {
					plain = string(data)
					return true
				}
			}
			if len(part.Parts) > 0 && findPlain(part.Parts) {
				return true
			}
		}
		return false
	}

	if msg.Payload != nil {
		// Single-part messages carry the body on the payload itself.
		if msg.Payload.MimeType == "text/plain" && msg.Payload.Body != nil && msg.Payload.Body.Data != "" {
			if data, err := decodeBase64(msg.Payload.Body.Data); err == nil {
				plain = string(data)
			}
		}
		if plain == "" {
			findPlain(msg.Payload.Parts)
		}
	}

	if plain == "" {
		plain = msg.Snippet
	}
	return trimBody(plain), nil
}

// ClearUnread removes the UNREAD label from a message.
func (s *Service) ClearUnread(ctx context.Context, messageID string) error {
	srv, err := s.client(ctx)
	if err != nil {
		return err
	}

	modifyReq := &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}
	if _, err := srv.Users.Messages.Modify("me", messageID, modifyReq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to clear unread flag: %w", err)
	}
	return nil
}

// client builds a Gmail API client from the stored credential.
func (s *Service) client(ctx context.Context) (*gmail.Service, error) {
	token, err := s.loadToken()
	if err != nil {
		return nil, err
	}

	wrapped := &notifyTokenSource{
		src:     s.config.TokenSource(ctx, token),
		current: token,
		service: s,
	}
	httpClient := oauth2.NewClient(ctx, wrapped)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

func (s *Service) loadToken() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotAuthorized
		}
		return nil, fmt.Errorf("read token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return &token, nil
}

func (s *Service) saveToken(token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return os.WriteFile(s.tokenPath, data, 0600)
}

// Helper functions

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if header.Name == name {
			return header.Value
		}
	}
	return ""
}

// senderAddress extracts the bare address from a "Name <addr>" header.
func senderAddress(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	return from
}

// decodeSubject handles RFC 2047 encoded-word subjects.
func decodeSubject(raw string) string {
	if raw == "" {
		return "(no subject)"
	}
	dec := new(mime.WordDecoder)
	if decoded, err := dec.DecodeHeader(raw); err == nil {
		return decoded
	}
	return raw
}

// decodeBase64 accepts both padded and unpadded URL-safe base64, which the
// Gmail API emits interchangeably.
func decodeBase64(data string) ([]byte, error) {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}

func trimBody(body string) string {
	const maxBody = 3500 // stay under the Telegram message size limit
	if len(body) <= maxBody {
		return body
	}
	// Never cut inside a multi-byte rune: the transport rejects
	// invalid UTF-8 outright.
	cut := maxBody
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "…"
}
