package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pfrederiksen/bid-scout/internal/telemetry"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	timeout        = 10 * time.Second
)

// Client represents a Telegram Bot API client
type Client struct {
	botToken string
	http     *resty.Client
}

// NewClient creates a new Telegram client. An empty baseURL selects the
// public Bot API.
func NewClient(botToken, baseURL string) (*Client, error) {
	if botToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	telemetry.InstrumentResty(client, "bid-scout/telegram")

	return &Client{botToken: botToken, http: client}, nil
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage sends an HTML text message to a chat
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	if chatID == "" {
		return fmt.Errorf("chat ID is required")
	}
	if text == "" {
		return fmt.Errorf("message text is required")
	}

	var result apiResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"chat_id":                  chatID,
			"text":                     text,
			"parse_mode":               "HTML",
			"disable_web_page_preview": true,
		}).
		SetResult(&result).
		SetError(&result).
		Post(fmt.Sprintf("/bot%s/sendMessage", c.botToken))
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	if res.IsError() {
		detail := result.Description
		if detail == "" {
			detail = strings.TrimSpace(res.String())
		}
		return fmt.Errorf("telegram API error (status %d): %s", res.StatusCode(), detail)
	}
	if !result.OK {
		return fmt.Errorf("telegram API error: %s", result.Description)
	}

	return nil
}
