// Package agent calls RPC methods registered by the translation agent.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"voice-translation-viewer/internal/models"
	"voice-translation-viewer/internal/observability/logging"
	"voice-translation-viewer/internal/observability/metrics"
)

// RPC method names registered by the agent.
const (
	MethodGetLanguages        = "get/languages"
	MethodToggleTranscription = "toggle_transcription"
)

// ErrLanguagesUnavailable is returned once every language fetch attempt failed.
var ErrLanguagesUnavailable = errors.New("agent: languages unavailable")

// Invoker performs one RPC call against a participant in the room.
type Invoker interface {
	PerformRPC(ctx context.Context, destination, method, payload string, timeout time.Duration) (string, error)
}

// RetryPolicy bounds the language fetch.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
}

// DefaultRetryPolicy is 5 attempts, 1s apart, 5s each.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 5, Delay: time.Second, Timeout: 5 * time.Second}
}

// Client talks to the agent participant.
type Client struct {
	invoker       Invoker
	agentIdentity string
	retry         RetryPolicy
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

// NewClient creates a client that addresses agentIdentity.
func NewClient(invoker Invoker, agentIdentity string, retry RetryPolicy) *Client {
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	return &Client{
		invoker:       invoker,
		agentIdentity: agentIdentity,
		retry:         retry,
		metrics:       metrics.DefaultMetrics,
		logger:        logging.WithComponent("agent-rpc"),
	}
}

// FetchLanguages asks the agent for its supported languages. Failures are
// retried with a fixed delay; after the last attempt it returns an empty,
// non-nil list together with ErrLanguagesUnavailable.
func (c *Client) FetchLanguages(ctx context.Context) ([]models.Language, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retry.Attempts; attempt++ {
		langs, err := c.fetchOnce(ctx)
		if err == nil {
			c.logger.Info().
				Int("attempt", attempt).
				Int("languages", len(langs)).
				Msg("Fetched languages from agent")
			return langs, nil
		}
		lastErr = err
		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("maxAttempts", c.retry.Attempts).
			Msg("Language fetch failed")

		if attempt == c.retry.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return []models.Language{}, fmt.Errorf("%w: %w", ErrLanguagesUnavailable, ctx.Err())
		case <-time.After(c.retry.Delay):
		}
	}

	c.logger.Error().Err(lastErr).Msg("Giving up on language fetch")
	return []models.Language{}, fmt.Errorf("%w: %w", ErrLanguagesUnavailable, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context) ([]models.Language, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.retry.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.invoker.PerformRPC(callCtx, c.agentIdentity, MethodGetLanguages, "", c.retry.Timeout)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	c.metrics.RecordRPC(MethodGetLanguages, err, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	var langs []models.Language
	if err := json.Unmarshal([]byte(resp), &langs); err != nil {
		return nil, fmt.Errorf("decode languages: %w", err)
	}
	if langs == nil {
		langs = []models.Language{}
	}
	return langs, nil
}

// ToggleTranscription tells the agent whether to keep forwarding
// transcriptions to this participant. It is best-effort: the error is
// returned for logging only.
func (c *Client) ToggleTranscription(ctx context.Context, enabled bool) error {
	callCtx, cancel := context.WithTimeout(ctx, c.retry.Timeout)
	defer cancel()

	start := time.Now()
	_, err := c.invoker.PerformRPC(callCtx, c.agentIdentity, MethodToggleTranscription, strconv.FormatBool(enabled), c.retry.Timeout)
	c.metrics.RecordRPC(MethodToggleTranscription, err, time.Since(start).Seconds())
	if err != nil {
		c.logger.Warn().Err(err).Bool("enabled", enabled).Msg("Toggle transcription failed")
		return fmt.Errorf("toggle transcription: %w", err)
	}
	return nil
}
