package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/zhouzirui/messenger-relay/backend/internal/model/apperr"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/messenger"
)

// Provider names the Graph API in UpstreamErrors.
const Provider = "messenger"

// Sender delivers messages and sender actions to a Messenger user.
type Sender interface {
	SendText(ctx context.Context, recipient, text string, quickReplies []messenger.QuickReply) error
	SendAction(ctx context.Context, recipient string, action messenger.SenderAction) error
}

// Client posts to the Graph API send endpoint.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
}

// NewClient creates a Graph API client.
func NewClient(httpClient *http.Client, baseURL, accessToken string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
	}
}

// SendText sends one text message, optionally with quick replies.
func (c *Client) SendText(ctx context.Context, recipient, text string, quickReplies []messenger.QuickReply) error {
	return c.send(ctx, messenger.SendRequest{
		Recipient: messenger.Participant{ID: recipient},
		Message:   &messenger.OutboundText{Text: text, QuickReplies: quickReplies},
	})
}

// SendAction sends typing_on, typing_off or mark_seen.
func (c *Client) SendAction(ctx context.Context, recipient string, action messenger.SenderAction) error {
	return c.send(ctx, messenger.SendRequest{
		Recipient:    messenger.Participant{ID: recipient},
		SenderAction: action,
	})
}

func (c *Client) send(ctx context.Context, payload messenger.SendRequest) error {
	if c.accessToken == "" {
		return &apperr.UpstreamError{Provider: Provider, Err: fmt.Errorf("page access token is not configured")}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	endpoint := c.baseURL + "/me/messages?access_token=" + url.QueryEscape(c.accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apperr.UpstreamError{Provider: Provider, Err: redact(err, c.accessToken)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apperr.UpstreamError{
			Provider:   Provider,
			StatusCode: resp.StatusCode,
			Body:       apperr.Truncate(strings.TrimSpace(string(respBody)), 500),
		}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// redact strips the access token from transport errors, which quote the URL.
func redact(err error, token string) error {
	msg := err.Error()
	if token == "" || !strings.Contains(msg, url.QueryEscape(token)) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(msg, url.QueryEscape(token), "REDACTED"))
}
