// Package whatsapp delivers membership reminders over WhatsApp, either through
// the WhatsApp Cloud API or as click-to-chat links the operator sends by hand.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CloudConfig configures a CloudSender.
type CloudConfig struct {
	APIURL        string
	PhoneNumberID string
	Token         string
	Timeout       time.Duration
	PerMinute     int
}

// CloudSender posts text messages to the WhatsApp Cloud API, paced so a
// large batch does not trip the provider's limits.
type CloudSender struct {
	apiURL  string
	phoneID string
	token   string

	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

// APIError is a non-2xx answer from the Cloud API.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("whatsapp api: status %d", e.Status)
	}
	return fmt.Sprintf("whatsapp api: status %d: %s (code %d)", e.Status, e.Message, e.Code)
}

func NewCloudSender(cfg CloudConfig, log *zap.Logger) *CloudSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CloudSender{
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		phoneID:    cfg.PhoneNumberID,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), 1),
		log:        log,
	}
}

type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send delivers text to phone. It blocks until the pacing limiter admits the
// message or ctx is done.
func (s *CloudSender) Send(ctx context.Context, phone, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := textMessage{MessagingProduct: "whatsapp", To: digits(phone), Type: "text"}
	msg.Text.Body = text
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(msg); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/"+s.phoneID+"/messages", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var env errorEnvelope
		if body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil && json.Unmarshal(body, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		s.log.Warn("whatsapp send rejected", zap.Int("status", resp.StatusCode), zap.String("message", apiErr.Message))
		return apiErr
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	s.log.Debug("whatsapp message accepted", zap.String("to", maskPhone(phone)))
	return nil
}

// digits keeps only the digits of phone, the form wa.me and the Cloud API expect.
func digits(phone string) string {
	var sb strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func maskPhone(phone string) string {
	d := digits(phone)
	if len(d) <= 4 {
		return d
	}
	return strings.Repeat("*", len(d)-4) + d[len(d)-4:]
}
