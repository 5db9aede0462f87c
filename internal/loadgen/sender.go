package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"calllog-dashboard/internal/webhook"

	"github.com/cenkalti/backoff/v4"
)

// Sender posts signed webhook bodies to the ingest endpoint.
type Sender struct {
	URL    string
	Secret string
	Client *http.Client

	// MaxRetries bounds retries of transport errors and 5xx responses.
	MaxRetries uint64
	// InitialInterval seeds the exponential backoff between retries.
	InitialInterval time.Duration
}

// Send delivers body, retrying transient failures. 4xx responses are permanent.
func (s Sender) Send(ctx context.Context, body []byte) error {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.Secret != "" {
			req.Header.Set(webhook.SignatureHeader, webhook.Sign(body, s.Secret))
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("ingest returned %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("ingest rejected delivery: %d", resp.StatusCode))
		}
		return nil
	}

	return backoff.Retry(op, s.backOff(ctx))
}

func (s Sender) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if s.InitialInterval > 0 {
		b.InitialInterval = s.InitialInterval
	}
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, s.MaxRetries), ctx)
}
