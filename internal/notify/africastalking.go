package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"storefront/internal/util"
)

const (
	// AfricasTalkingBaseURL is the production API host.
	AfricasTalkingBaseURL = "https://api.africastalking.com"
	// AfricasTalkingSandboxURL is used when the username is "sandbox".
	AfricasTalkingSandboxURL = "https://api.sandbox.africastalking.com"
)

// AfricasTalkingClient sends SMS through the Africa's Talking messaging API.
type AfricasTalkingClient struct {
	httpClient *http.Client
	baseURL    string
	username   string
	apiKey     string
	senderID   string
	logger     *zap.Logger
}

// NewAfricasTalkingClient creates an SMS client. An empty baseURL selects
// the sandbox or production host from the username.
func NewAfricasTalkingClient(baseURL, username, apiKey, senderID string) *AfricasTalkingClient {
	if baseURL == "" {
		baseURL = AfricasTalkingBaseURL
		if username == "sandbox" {
			baseURL = AfricasTalkingSandboxURL
		}
	}
	return &AfricasTalkingClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		apiKey:     apiKey,
		senderID:   senderID,
		logger:     util.GetLogger(),
	}
}

type messagingResponse struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			StatusCode int    `json:"statusCode"`
			Number     string `json:"number"`
			Status     string `json:"status"`
			Cost       string `json:"cost"`
			MessageID  string `json:"messageId"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

// SendSMS sends message to phone and fails unless the recipient is accepted.
func (c *AfricasTalkingClient) SendSMS(ctx context.Context, phone, message string) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("to", phone)
	form.Set("message", message)
	if c.senderID != "" {
		form.Set("from", c.senderID)
	}

	var resp messagingResponse
	if err := c.doRequest(ctx, "/version1/messaging", form, &resp); err != nil {
		return err
	}

	recipients := resp.SMSMessageData.Recipients
	if len(recipients) == 0 {
		return fmt.Errorf("sms rejected: %s", resp.SMSMessageData.Message)
	}
	for _, r := range recipients {
		if r.Status != "Success" {
			return fmt.Errorf("sms to %s failed: %s (code %d)", r.Number, r.Status, r.StatusCode)
		}
	}

	c.logger.Debug("SMS sent",
		zap.String("phone", phone),
		zap.String("message_id", recipients[0].MessageID),
		zap.String("cost", recipients[0].Cost))
	return nil
}

// doRequest posts a form to the API and decodes the JSON response into result.
func (c *AfricasTalkingClient) doRequest(ctx context.Context, path string, form url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("africa's talking returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
