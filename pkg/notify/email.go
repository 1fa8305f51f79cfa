package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// email request payload for the ZeptoMail HTTP API
type emailRequest struct {
	From     emailAddress  `json:"from"`
	To       []toRecipient `json:"to"`
	Subject  string        `json:"subject"`
	HtmlBody string        `json:"htmlbody"`
}

type emailAddress struct {
	Address string `json:"address"`
}

type toRecipient struct {
	Email emailWithName `json:"email_address"`
}

type emailWithName struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// EmailSender delivers notification emails through the ZeptoMail HTTP API.
// When the API environment variables are unset it is disabled and Send
// becomes a no-op, which keeps local development quiet.
type EmailSender struct {
	apiURL string
	apiKey string
	from   string
	client *http.Client
}

// NewEmailSenderFromEnv reads ZEPTO_API_URL, ZEPTO_API_KEY and EMAIL_FROM.
func NewEmailSenderFromEnv() *EmailSender {
	return &EmailSender{
		apiURL: os.Getenv("ZEPTO_API_URL"),
		apiKey: os.Getenv("ZEPTO_API_KEY"),
		from:   os.Getenv("EMAIL_FROM"),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether the sender is configured.
func (e *EmailSender) Enabled() bool {
	return e.apiURL != "" && e.apiKey != "" && e.from != ""
}

// Send delivers one HTML email.
func (e *EmailSender) Send(toAddress, toName, subject, body string) error {
	if !e.Enabled() {
		return nil
	}

	payload := emailRequest{
		From:     emailAddress{Address: e.from},
		To:       []toRecipient{{Email: emailWithName{Address: toAddress, Name: toName}}},
		Subject:  subject,
		HtmlBody: body,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, e.apiURL, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("email API returned status %d", resp.StatusCode)
	}
	return nil
}
