package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tourdesk/ledger-backend/pkg/validator"
)

// HTTPGateway sends SMS through a token-authenticated JSON API
type HTTPGateway struct {
	apiURL   string
	username string
	password string
	senderID string
	client   *http.Client
	phones   *validator.PhoneValidator
	logger   *logrus.Logger

	// Token management
	token       string
	tokenMutex  sync.RWMutex
	tokenExpiry time.Time
}

// HTTPConfig holds configuration for the HTTP SMS gateway
type HTTPConfig struct {
	APIURL   string
	Username string
	Password string
	SenderID string
	Timeout  time.Duration
}

// NewHTTPGateway creates a new HTTP SMS gateway client
func NewHTTPGateway(config HTTPConfig, logger *logrus.Logger) *HTTPGateway {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGateway{
		apiURL:   strings.TrimRight(config.APIURL, "/"),
		username: config.Username,
		password: config.Password,
		senderID: config.SenderID,
		client:   &http.Client{Timeout: timeout},
		phones:   validator.NewPhoneValidator(),
		logger:   logger,
	}
}

// LoginRequest represents the login request structure
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents the login response structure
type LoginResponse struct {
	Status     string `json:"status"`
	Comment    string `json:"comment"`
	Token      string `json:"token"`
	Expiration int    `json:"expiration"` // Token expiry in seconds
	ErrCode    string `json:"errCode"`
}

// SMSRecipient represents a single SMS recipient
type SMSRecipient struct {
	Mobile string `json:"mobile"`
}

// SendSMSRequest represents the SMS sending request structure
type SendSMSRequest struct {
	MSISDN        []SMSRecipient `json:"msisdn"`
	Message       string         `json:"message"`
	SourceAddress string         `json:"sourceAddress,omitempty"`
	TransactionID int64          `json:"transaction_id"`
}

// SendSMSResponse represents the SMS sending response structure
type SendSMSResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Data    struct {
		CampaignID     int `json:"campaignId"`
		InvalidNumbers int `json:"invalidNumbers"`
	} `json:"data"`
	ErrCode string `json:"errCode"`
}

// Name returns the name of this SMS gateway
func (g *HTTPGateway) Name() string {
	return "http"
}

// Send delivers message to contact. Rate limiting, 5xx and network failures
// are transient; other rejections are permanent. A 401 forces one re-login.
func (g *HTTPGateway) Send(ctx context.Context, contact, message string) (DeliveryResult, error) {
	national, err := g.phones.Validate(contact)
	if err != nil {
		return DeliveryResult{}, NewPermanentError("invalid_number", err)
	}

	transactionID := time.Now().UnixMicro()
	payload, err := json.Marshal(SendSMSRequest{
		MSISDN:        []SMSRecipient{{Mobile: "91" + national}},
		Message:       message,
		SourceAddress: g.senderID,
		TransactionID: transactionID,
	})
	if err != nil {
		return DeliveryResult{}, NewPermanentError("encode", fmt.Errorf("failed to marshal SMS request: %w", err))
	}

	for attempt := 0; ; attempt++ {
		token, err := g.ensureValidToken(ctx)
		if err != nil {
			return DeliveryResult{}, err
		}

		status, body, err := g.post(ctx, "/sms", token, payload)
		if err != nil {
			return DeliveryResult{}, err
		}

		if status == http.StatusUnauthorized && attempt == 0 {
			g.logger.Warn("SMS gateway rejected token, logging in again")
			g.invalidateToken(token)
			continue
		}
		if err := classifyStatus(status, body); err != nil {
			return DeliveryResult{}, err
		}

		var resp SendSMSResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return DeliveryResult{}, NewTransientError("bad_response", fmt.Errorf("failed to parse SMS response: %w", err))
		}
		if resp.Data.InvalidNumbers > 0 {
			return DeliveryResult{}, NewPermanentError("invalid_number", errors.New("gateway rejected the recipient"))
		}
		if resp.Status != "success" {
			return DeliveryResult{}, NewPermanentError(resp.ErrCode, fmt.Errorf("SMS sending failed: %s", resp.Comment))
		}

		messageID := strconv.FormatInt(transactionID, 10)
		if resp.Data.CampaignID != 0 {
			messageID = strconv.Itoa(resp.Data.CampaignID)
		}
		return DeliveryResult{MessageID: messageID, Gateway: g.Name(), AcceptedAt: time.Now().UTC()}, nil
	}
}

// ensureValidToken returns a cached token or logs in. Only one caller logs in at a time.
func (g *HTTPGateway) ensureValidToken(ctx context.Context) (string, error) {
	g.tokenMutex.RLock()
	token, valid := g.token, g.tokenValidLocked()
	g.tokenMutex.RUnlock()
	if valid {
		return token, nil
	}

	g.tokenMutex.Lock()
	defer g.tokenMutex.Unlock()
	if g.tokenValidLocked() {
		return g.token, nil
	}

	token, expiry, err := g.login(ctx)
	if err != nil {
		return "", err
	}
	g.token = token
	g.tokenExpiry = expiry
	return token, nil
}

// tokenValidLocked treats a token as expired one minute early
func (g *HTTPGateway) tokenValidLocked() bool {
	return g.token != "" && time.Now().Before(g.tokenExpiry.Add(-time.Minute))
}

func (g *HTTPGateway) invalidateToken(stale string) {
	g.tokenMutex.Lock()
	defer g.tokenMutex.Unlock()
	if g.token == stale {
		g.token = ""
	}
}

func (g *HTTPGateway) login(ctx context.Context) (string, time.Time, error) {
	payload, err := json.Marshal(LoginRequest{Username: g.username, Password: g.password})
	if err != nil {
		return "", time.Time{}, NewPermanentError("encode", fmt.Errorf("failed to marshal login request: %w", err))
	}

	status, body, err := g.post(ctx, "/login", "", payload)
	if err != nil {
		return "", time.Time{}, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return "", time.Time{}, &GatewayError{Kind: Permanent, Code: "login_rejected", StatusCode: status, Err: errors.New("gateway credentials rejected")}
	}
	if err := classifyStatus(status, body); err != nil {
		return "", time.Time{}, err
	}

	var resp LoginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", time.Time{}, NewTransientError("bad_response", fmt.Errorf("failed to parse login response: %w", err))
	}
	if resp.Status != "success" || resp.Token == "" {
		return "", time.Time{}, NewPermanentError("login_rejected", fmt.Errorf("login failed: %s (error code: %s)", resp.Comment, resp.ErrCode))
	}

	g.logger.Debug("SMS gateway login succeeded")
	return resp.Token, time.Now().Add(time.Duration(resp.Expiration) * time.Second), nil
}

// post sends a JSON body and returns the status and raw response. Transport
// failures come back as transient GatewayErrors.
func (g *HTTPGateway) post(ctx context.Context, path, token string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, NewPermanentError("request", fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		code := "network"
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			code = "timeout"
		}
		return 0, nil, NewTransientError(code, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, NewTransientError("network", fmt.Errorf("failed to read response: %w", err))
	}
	return resp.StatusCode, body, nil
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return &GatewayError{Kind: Transient, Code: "rate_limited", StatusCode: status, Err: errors.New("gateway rate limit exceeded")}
	case status >= 500, status == http.StatusRequestTimeout:
		return &GatewayError{Kind: Transient, Code: "upstream_unavailable", StatusCode: status, Err: fmt.Errorf("gateway returned %d", status)}
	}

	detail := strings.TrimSpace(string(body))
	var resp SendSMSResponse
	if json.Unmarshal(body, &resp) == nil && resp.Comment != "" {
		detail = resp.Comment
	}
	return &GatewayError{Kind: Permanent, Code: "rejected", StatusCode: status, Err: fmt.Errorf("gateway returned %d: %s", status, detail)}
}
