// Package notify delivers offer notifications to customers.
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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/unclebandit/offerhub/internal/model"
)

// Notification is what the activation notifier hands to a sender.
type Notification struct {
	RecipientAddress    string
	CampaignName        string
	CustomerDisplayName string           // optional
	OfferAttributes     model.Attributes // optional
}

// Sender delivers one notification. Errors are per recipient.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Email is a rendered message ready for the wire.
type Email struct {
	Subject string
	HTML    string
	Text    string
}

// Composer renders a notification into an email.
type Composer func(n Notification) (Email, error)

// EmailSender posts to a Resend-compatible HTTP API (POST {base}/emails).
type EmailSender struct {
	BaseURL string
	APIKey  string
	From    string
	Compose Composer
	Client  *http.Client
	Limiter *rate.Limiter
}

// NewEmailSender builds a sender limited to ratePerSec requests per second.
// A non-positive rate disables limiting.
func NewEmailSender(baseURL, apiKey, from string, ratePerSec float64, compose Composer) *EmailSender {
	limit := rate.Inf
	burst := 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = max(1, int(ratePerSec))
	}
	return &EmailSender{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		From:    from,
		Compose: compose,
		Client:  &http.Client{Timeout: 15 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Limiter: rate.NewLimiter(limit, burst),
	}
}

type sendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type apiError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Name       string `json:"name"`
}

func (s *EmailSender) Send(ctx context.Context, n Notification) error {
	if strings.TrimSpace(n.RecipientAddress) == "" {
		return fmt.Errorf("empty recipient address")
	}
	email, err := s.Compose(n)
	if err != nil {
		return fmt.Errorf("compose email: %w", err)
	}

	body, err := json.Marshal(sendEmailRequest{
		From:    s.From,
		To:      []string{n.RecipientAddress},
		Subject: email.Subject,
		HTML:    email.HTML,
		Text:    email.Text,
	})
	if err != nil {
		return err
	}

	if err := s.Limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("email api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.Message != "" {
			return fmt.Errorf("email api returned %d: %s", resp.StatusCode, ae.Message)
		}
		return fmt.Errorf("email api returned %d", resp.StatusCode)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

var _ Sender = (*EmailSender)(nil)
