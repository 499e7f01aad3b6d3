package emails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const brevoAPI = "https://api.brevo.com/v3/smtp/email"

// BrevoSendRequest matches Brevo API v3 send transactional email body.
type BrevoSendRequest struct {
	Sender      BrevoSender   `json:"sender"`
	To          []BrevoTo     `json:"to"`
	Subject     string        `json:"subject"`
	HTMLContent string        `json:"htmlContent"`
	ReplyTo     *BrevoReplyTo `json:"replyTo,omitempty"`
}

type BrevoSender struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type BrevoTo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type BrevoReplyTo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// HandoffEmail is what the buyer needs to complete a pickup.
type HandoffEmail struct {
	To           string
	ListingTitle string
	Code         string
	Link         string
	QRImageURL   string
	ExpiresAt    time.Time
}

// Sender sends transactional emails. Nil = no-op.
type Sender interface {
	SendHandoffCode(ctx context.Context, m HandoffEmail) error
	SendVerification(ctx context.Context, toEmail, name, link string) error
}

// BrevoClient sends emails via Brevo (Sendinblue) API. Env: SENDINBLUE_API_KEY, MAIL_FROM.
type BrevoClient struct {
	APIKey   string
	MailFrom string
	Endpoint string
	Client   *http.Client
}

func (c *BrevoClient) from() string {
	if c.MailFrom != "" {
		return c.MailFrom
	}
	return "noreply@unimarket.app"
}

func (c *BrevoClient) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return brevoAPI
}

// send sends one email via Brevo API. Without an API key nothing is sent.
func (c *BrevoClient) send(ctx context.Context, toEmail, subject, html string) error {
	if c.APIKey == "" {
		return nil
	}
	body := BrevoSendRequest{
		Sender:      BrevoSender{Email: c.from(), Name: "UniMarket"},
		To:          []BrevoTo{{Email: toEmail}},
		Subject:     subject,
		HTMLContent: html,
		ReplyTo:     &BrevoReplyTo{Email: "support@unimarket.app", Name: "UniMarket Support"},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("brevo send failed: status %d", resp.StatusCode)
	}
	return nil
}

// SendHandoffCode delivers the pickup code, deep link and QR image to the buyer.
func (c *BrevoClient) SendHandoffCode(ctx context.Context, m HandoffEmail) error {
	if c.APIKey == "" {
		return nil
	}
	return c.send(ctx, m.To, "Pickup code for "+m.ListingTitle, EmailLayout(handoffContent(m)))
}

// SendVerification sends the email verification link.
func (c *BrevoClient) SendVerification(ctx context.Context, toEmail, name, link string) error {
	if c.APIKey == "" {
		return nil
	}
	if name == "" {
		name = "there"
	}
	return c.send(ctx, toEmail, "Verify your UniMarket email", EmailLayout(verificationContent(name, link)))
}

func handoffContent(m HandoffEmail) string {
	return fmt.Sprintf(`
    <h1>Your pickup code for %s</h1>
    <p>Give this code to the seller when you collect the item, or open the link below.</p>
    <p class="code">%s</p>
    <center>
      <a href="%s" class="um-button">Confirm pickup</a>
    </center>
    <p><img src="%s" alt="QR code" width="200" height="200" /></p>
    <p style="font-size: 14px; color: #666;">This code expires at %s. Only confirm once you have the item in hand.</p>
`, EscapeHTML(m.ListingTitle), EscapeHTML(m.Code), m.Link, m.QRImageURL, m.ExpiresAt.UTC().Format("15:04 MST, 2 Jan 2006"))
}

func verificationContent(name, link string) string {
	return fmt.Sprintf(`
    <h1>Hi %s, confirm your email</h1>
    <p>Verified students can list items, check out and rate trades. Click below to verify your address.</p>
    <center>
      <a href="%s" class="um-button">Verify email</a>
    </center>
    <p style="font-size: 14px; color: #666;">The link expires in 24 hours. If you did not sign up, ignore this email.</p>
`, EscapeHTML(name), link)
}
