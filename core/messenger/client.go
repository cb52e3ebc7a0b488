package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/m3rciful/formrelay/core/logger"
)

const maxErrorBody = 64 << 10

// Client calls the Send API.
type Client struct {
	graphURL string
	token    string
	http     *http.Client
}

// NewClient builds a Send API client. graphURL is the versioned Graph base,
// e.g. https://graph.facebook.com/v19.0.
func NewClient(graphURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{graphURL: graphURL, token: token, http: httpClient}
}

// Endpoint is the Send API path, used for logging.
func (c *Client) Endpoint() string {
	return c.graphURL + "/me/messages"
}

// Send delivers msg to the user with the given page-scoped id.
func (c *Client) Send(ctx context.Context, recipientID string, msg OutboundMessage) (*SendResponse, error) {
	start := time.Now()
	body, err := json.Marshal(SendRequest{Recipient: Party{ID: recipientID}, Message: msg})
	if err != nil {
		return nil, fmt.Errorf("messenger: encode message: %w", err)
	}

	u := c.Endpoint() + "?" + url.Values{"access_token": {c.token}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("messenger: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(resp)
		logger.MSG.LogAttrs(ctx, slog.LevelDebug, "send api rejected message",
			slog.String("event", "messenger.send"),
			slog.String("status", "fail"),
			slog.Int("http_code", resp.StatusCode),
			slog.Int("code", apiErr.Code),
			slog.Duration("duration", logger.Took(start)),
		)
		return nil, apiErr
	}

	var out SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		return nil, fmt.Errorf("messenger: decode response: %w", err)
	}
	return &out, nil
}

func decodeAPIError(resp *http.Response) *APIError {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error == nil {
		return &APIError{Message: http.StatusText(resp.StatusCode), HTTPStatus: resp.StatusCode}
	}
	envelope.Error.HTTPStatus = resp.StatusCode
	return envelope.Error
}
