package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	sendMessagePath = "sendMessage"
	contentType     = "application/json"
	// MaxMessageLen is the Telegram limit for a message text, in characters
	MaxMessageLen = 4096

	defaultTimeout = 30 * time.Second
)

// Telegram sends messages to a single chat through the Bot API.
type Telegram struct {
	requestURL *url.URL
	token      string
	chatID     string
	client     *http.Client
}

func NewTelegram(apiURL, token, chatID string) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	if chatID == "" {
		return nil, errors.New("telegram chat id is empty")
	}
	parsedURL, err := url.Parse(apiURL)
	if err != nil {
		return nil, err
	}
	parsedURL.Path = strings.TrimRight(parsedURL.Path, "/")

	if parsedURL.Scheme == "" || parsedURL.Host == "" || parsedURL.Path != "" {
		return nil, errors.New("please define the api url with a scheme and without path, e.g. `https://api.telegram.org`")
	}

	parsedURL.Path = "/bot" + token + "/" + sendMessagePath

	return &Telegram{
		requestURL: parsedURL,
		token:      token,
		chatID:     chatID,
		client:     &http.Client{Timeout: defaultTimeout},
	}, nil
}

// WithClient replaces the http client, it exists for a unit testing.
func (t *Telegram) WithClient(client *http.Client) *Telegram {
	t.client = client
	return t
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

// Send posts exactly one message, there is no retry.
func (t *Telegram) Send(ctx context.Context, text string) error {
	raw, err := json.Marshal(sendMessageRequest{
		ChatID: t.chatID,
		Text:   Truncate(text, MaxMessageLen),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.requestURL.String(), bytes.NewReader(raw))
	if err != nil {
		return t.redact(err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return t.redact(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return decodeResponse(resp)
}

// Notify implements model.Notifier, errors are logged only.
func (t *Telegram) Notify(ctx context.Context, text string) {
	if err := t.Send(ctx, text); err != nil {
		slog.ErrorContext(ctx, "failed to send telegram message", "error", err)
		return
	}
	slog.DebugContext(ctx, "telegram notification sent", "chat_id", t.chatID)
}

func (t *Telegram) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func decodeResponse(resp *http.Response) error {
	ct, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return fmt.Errorf("failed to parse response content type header: %w", err)
	}
	if ct != contentType {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected response, status: %d, content type: %s, body: %s", resp.StatusCode, ct, string(body))
	}

	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return fmt.Errorf("decoding json response failed: %w", err)
	}
	if !ar.OK {
		if ar.Description == "" {
			ar.Description = "unknown error"
		}
		return fmt.Errorf("telegram error: status code: %d, description: %s", resp.StatusCode, ar.Description)
	}
	return nil
}

// redact removes the bot token from url errors
func (t *Telegram) redact(err error) error {
	if err == nil || !strings.Contains(err.Error(), t.token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), t.token, "<token>"))
}

// Truncate shortens text to at most limit runes, the last one being an ellipsis.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit-1]) + "…"
}
