package sms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	Endpoint string
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// HTTPProvider posts messages to a Twilio-compatible form endpoint.
type HTTPProvider struct {
	cfg    Config
	client *http.Client
}

func NewHTTP(cfg Config, client *http.Client) *HTTPProvider {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPProvider{cfg: cfg, client: client}
}

func (p *HTTPProvider) Send(ctx context.Context, to string, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("sms: empty recipient")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("Body", body)
	if p.cfg.From != "" {
		form.Set("From", p.cfg.From)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.cfg.Username != "" {
		req.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms: send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms: provider returned status %d", resp.StatusCode)
	}
	return nil
}
