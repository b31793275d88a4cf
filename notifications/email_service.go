package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anjiri1684/tutor_live/models"
)

const brevoURL = "https://api.brevo.com/v3/smtp/email"

type BrevoConfig struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	// BaseURL overrides the Brevo endpoint.
	BaseURL string
}

type BrevoService struct {
	cfg    BrevoConfig
	client *http.Client
	logger *slog.Logger
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

// NewBrevoService returns nil when the sender is not fully configured.
func NewBrevoService(cfg BrevoConfig, logger *slog.Logger) *BrevoService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" || cfg.SenderEmail == "" || cfg.SenderName == "" {
		logger.Warn("email service not configured, notifications disabled")
		return nil
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = brevoURL
	}
	return &BrevoService{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (s *BrevoService) PaymentConfirmed(ctx context.Context, payer *models.User, booking *models.Booking, payment *models.Payment) error {
	subject := "Payment received: your lesson is confirmed"
	body := fmt.Sprintf(
		"<h1>Payment confirmed</h1><p>Hi %s,</p><p>We received your payment of <b>%s %s</b> for the lesson on %s.</p><p>You can join the session from your dashboard when it starts.</p>",
		payer.FullName,
		payment.Amount.StringFixed(2),
		strings.ToUpper(payment.Currency),
		booking.StartTime.UTC().Format("Mon, 02 Jan 2006 15:04 MST"),
	)
	return s.Send(ctx, payer.Email, payer.FullName, subject, body)
}

func (s *BrevoService) Send(ctx context.Context, toEmail, toName, subject, htmlContent string) error {
	if toEmail == "" || !strings.Contains(toEmail, "@") {
		return fmt.Errorf("invalid recipient email: %s", toEmail)
	}

	recipientName := toName
	if recipientName == "" {
		recipientName = toEmail[:strings.Index(toEmail, "@")]
	}

	payload := brevoPayload{
		Sender:      map[string]string{"name": s.cfg.SenderName, "email": s.cfg.SenderEmail},
		To:          []map[string]string{{"email": toEmail, "name": recipientName}},
		Subject:     subject,
		HTMLContent: htmlContent,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", s.cfg.APIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("brevo returned %d: %s", resp.StatusCode, string(respBody))
	}

	s.logger.InfoContext(ctx, "email sent", "to", toEmail, "subject", subject)
	return nil
}
