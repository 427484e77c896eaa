package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://api.telegram.org"
	responseReadLimit     int64 = 4096
	defaultRequestTimeout       = 10 * time.Second
)

var errBotTokenRequired = errors.New("telegram bot token is required")

// Client calls the Telegram Bot API sendMessage method.
type Client struct {
	httpClient *http.Client
	baseURL    string
	botToken   string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

func NewClient(botToken string, opts ...Option) (*Client, error) {
	token := strings.TrimSpace(botToken)
	if token == "" {
		return nil, errBotTokenRequired
	}
	c := &Client{
		botToken:   token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// SendChatMessage posts Markdown text to a chat and returns the message id.
func (c *Client) SendChatMessage(ctx context.Context, chatID, text string) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "telegram client not configured")
	}
	if strings.TrimSpace(chatID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "chat id is required")
	}

	payload, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text, ParseMode: "Markdown"})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal telegram message")
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(c.baseURL, "/"), c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the URL carries the bot token; never surface it
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New(redact(err.Error(), c.botToken)), "execute telegram request")
	}
	defer func() { _ = resp.Body.Close() }()

	var body apiResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), "decode telegram response")
	}
	if resp.StatusCode != http.StatusOK || !body.OK {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("telegram error %d: %s", body.ErrorCode, body.Description), "telegram sendMessage failed")
	}
	return strconv.FormatInt(body.Result.MessageID, 10), nil
}

func redact(msg, token string) string {
	return strings.ReplaceAll(msg, token, "[REDACTED]")
}
