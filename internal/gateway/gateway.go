// Package gateway implements the §6 "Egress — Notification Gateway"
// external interface: an HTTPS JSON sender signing every request with
// HMAC-SHA256, the same transport shape the teacher's
// agent_communication.go uses for its AgentCommunicationService dispatch
// calls (HTTP client with per-call timeout, JSON body, typed response
// envelope) but adapted to the notification gateway's documented
// contract rather than the teacher's inter-agent message bus.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// Notification is the §6 payload shape posted to
// <base>/api/v2/notifications/send.
type Notification struct {
	Template   string                 `json:"template"`
	Priority   int                    `json:"priority"`
	RegionCode string                 `json:"region_code"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Tracking carries request-correlation fields expected by the gateway.
type Tracking struct {
	SourceSystem string `json:"source_system"`
	RequestID    string `json:"request_id"`
}

// SendRequest is one gateway dispatch: channel, recipient, the
// notification body, and tracking metadata. Signature/timestamp headers
// are computed by the Sender, not supplied by the caller.
type SendRequest struct {
	Channel      string `json:"channel"` // "push", "email", "sms"
	Recipient    string `json:"recipient"`
	Notification Notification `json:"notification"`
	Tracking     Tracking     `json:"tracking"`
}

// SendResponse is the gateway's 200 response envelope.
type SendResponse struct {
	Success        bool   `json:"success"`
	NotificationID string `json:"notification_id"`
	DeliveryStatus string `json:"delivery_status"`
	Reason         string `json:"reason,omitempty"`
}

// Sender is the external notification-gateway contract (§6,
// "external connectors (interface-only)"). internal/alert depends only
// on this interface; HTTPSender is the one concrete, real-network
// implementation, and tests substitute a stub.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResponse, error)
}

// Config configures an HTTPSender.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	TenantID  string
	Timeout   time.Duration // per-call deadline, default 10s per §5
}

// HTTPSender is the real Sender: HTTPS JSON POST with the documented
// X-API-Key/X-Tenant-ID/X-Timestamp/X-Signature headers.
type HTTPSender struct {
	cfg    Config
	client *http.Client
}

// NewHTTPSender builds an HTTPSender with the §5 default 10s per-call
// deadline when Config.Timeout is unset.
func NewHTTPSender(cfg Config) *HTTPSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Send signs and POSTs req, per §6's documented header scheme:
// X-Signature = base64(HMAC-SHA256(api_secret, json "." ts "." tenant_id)).
func (h *HTTPSender) Send(ctx context.Context, req SendRequest) (SendResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return SendResponse{}, fmt.Errorf("marshal notification request: %w", err)
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature := sign(h.cfg.APISecret, body, ts, h.cfg.TenantID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.BaseURL+"/api/v2/notifications/send", bytes.NewReader(body))
	if err != nil {
		return SendResponse{}, fmt.Errorf("build notification request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", h.cfg.APIKey)
	httpReq.Header.Set("X-Tenant-ID", h.cfg.TenantID)
	httpReq.Header.Set("X-Timestamp", ts)
	httpReq.Header.Set("X-Signature", signature)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return SendResponse{}, fmt.Errorf("%w: notification gateway request failed: %v", domain.ErrTransientExternal, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendResponse{}, fmt.Errorf("read notification gateway response: %w", err)
	}

	var out SendResponse
	if resp.StatusCode != http.StatusOK {
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &out)
		}
		if out.Reason == "" {
			out.Reason = fmt.Sprintf("gateway returned status %d", resp.StatusCode)
		}
		return out, fmt.Errorf("%w: notification gateway status %d", domain.ErrTransientExternal, resp.StatusCode)
	}

	if err := json.Unmarshal(payload, &out); err != nil {
		return SendResponse{}, fmt.Errorf("decode notification gateway response: %w", err)
	}
	return out, nil
}

// sign computes the §6 signature over json "." ts "." tenant_id.
func sign(secret string, jsonBody []byte, ts, tenantID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(jsonBody)
	mac.Write([]byte("."))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write([]byte(tenantID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
