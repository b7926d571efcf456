// Package notify delivers alert messages through the LINE Messaging API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultPushURL is the LINE Messaging API push endpoint.
const DefaultPushURL = "https://api.line.me/v2/bot/message/push"

// LineNotifier sends push messages to a single LINE user.
type LineNotifier struct {
	channelAccessToken string
	targetUserID       string
	pushURL            string
	client             *http.Client
}

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type linePushRequest struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

// NewLineNotifier validates the credentials and returns a notifier.
func NewLineNotifier(channelAccessToken, targetUserID string) (*LineNotifier, error) {
	channelAccessToken = strings.TrimSpace(channelAccessToken)
	targetUserID = strings.TrimSpace(targetUserID)
	if channelAccessToken == "" {
		return nil, fmt.Errorf("channel access token is required")
	}
	if targetUserID == "" {
		return nil, fmt.Errorf("target user id is required")
	}
	return &LineNotifier{
		channelAccessToken: channelAccessToken,
		targetUserID:       targetUserID,
		pushURL:            DefaultPushURL,
		client:             &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Send pushes a single text message to the configured user.
func (n *LineNotifier) Send(ctx context.Context, message string) error {
	payload := linePushRequest{
		To:       n.targetUserID,
		Messages: []lineMessage{{Type: "text", Text: message}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.pushURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.channelAccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("line push failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
