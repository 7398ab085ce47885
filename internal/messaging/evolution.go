package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/darkking4096/odonto/pkg/logging"
)

// EvolutionSender delivers WhatsApp replies through an Evolution API
// instance's sendText endpoint.
type EvolutionSender struct {
	baseURL    string
	apiKey     string
	instance   string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewEvolutionSender builds a sender for one Evolution API instance.
func NewEvolutionSender(baseURL, apiKey, instance string, timeout time.Duration, logger *logging.Logger) *EvolutionSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EvolutionSender{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		instance: instance,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SendText dispatches one reply, retrying transient failures.
func (s *EvolutionSender) SendText(ctx context.Context, number, text string) error {
	if s.baseURL == "" {
		return errors.New("messaging: evolution api url missing")
	}
	if number == "" {
		return errors.New("messaging: number required")
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("messaging: text required")
	}

	payload, err := json.Marshal(map[string]any{
		"number": number,
		"text":   text,
		"delay":  1000,
	})
	if err != nil {
		return fmt.Errorf("messaging: marshal sendText payload: %w", err)
	}
	url := fmt.Sprintf("%s/message/sendText/%s", s.baseURL, s.instance)

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("messaging: build sendText request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("apikey", s.apiKey)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				s.logger.Info("evolution message sent", "to", number, "instance", s.instance)
				return nil
			}
			lastErr = fmt.Errorf("messaging: sendText failed: status %d, body: %s", resp.StatusCode, string(body))
		}

		if attempt < 3 {
			time.Sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
		}
	}

	s.logger.Error("failed to send evolution message", "error", lastErr.Error(), "to", number)
	return lastErr
}
