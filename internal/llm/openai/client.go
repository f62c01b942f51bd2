package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/certiflow/certiflow/internal/common"
	"github.com/certiflow/certiflow/internal/extract"
	"github.com/certiflow/certiflow/internal/llm"
)

// Client implements llm.Structurer against an OpenAI-compatible
// chat/completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

// Structure sends the extracted text plus the schema contract upstream and
// decodes the completion into a validated record.
//
// Two retry regimes apply, deliberately kept apart:
//   - non-conformant generations are re-asked with the same input up to
//     MaxParseAttempts, then fail with STRUCTURING_FAILED;
//   - unreachable upstream (timeout, 429, 5xx) is retried with exponential
//     backoff up to MaxUpstreamAttempts per call, then fails with
//     UPSTREAM_UNAVAILABLE so callers can tell "garbled" from "unreachable".
func (c *Client) Structure(ctx context.Context, text extract.ExtractedText, schema llm.SchemaSpec) (llm.StructureResult, error) {
	rid := uuid.New().String()
	start := time.Now()

	if err := schema.Validate(); err != nil {
		return llm.StructureResult{}, common.NewStageError(common.StageStructure, common.KindStructuringFailed,
			"invalid schema spec", err)
	}

	bounded, truncated := llm.TruncateToBudget(text.Text, c.cfg.CharBudget)
	var warnings []string
	if truncated {
		warnings = append(warnings,
			fmt.Sprintf("input truncated to %d characters at a word boundary", c.cfg.CharBudget))
		c.log.Warn("llm.structure.truncated", "req_id", rid, "budget", c.cfg.CharBudget, "original_len", len(text.Text))
	}

	jsonSchema := llm.BuildJSONSchema(schema)
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt(schema)},
			{"role": "user", "content": llm.BuildUserPrompt(bounded, text.Pages, "") +
				"\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(jsonSchema)},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return llm.StructureResult{}, common.NewStageError(common.StageStructure, common.KindStructuringFailed,
			"encode request", err)
	}

	c.log.Info("llm.structure.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"text_len", len(bounded),
		"pages", text.Pages,
		"fields", len(schema.Fields),
	)

	var lastParseErr error
	for attempt := 1; attempt <= c.cfg.MaxParseAttempts; attempt++ {
		content, err := c.complete(ctx, payload)
		if err != nil {
			if errors.Is(err, errBadEnvelope) {
				lastParseErr = err
				c.log.Warn("llm.structure.malformed_envelope",
					"req_id", rid, "attempt", attempt, "error", err,
				)
				continue
			}
			c.log.Error("llm.structure.upstream_failed",
				"req_id", rid, "attempt", attempt, "error", err,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return llm.StructureResult{}, common.NewStageError(common.StageStructure, common.KindUpstreamUnavailable,
				fmt.Sprintf("completion service unreachable after %d attempts", c.cfg.MaxUpstreamAttempts), err)
		}

		record, recWarnings, decErr := llm.DecodeRecord(schema, content)
		if decErr == nil {
			c.log.Info("llm.structure.ok",
				"req_id", rid,
				"attempt", attempt,
				"fields", len(record),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return llm.StructureResult{
				Record:    record,
				Attempts:  attempt,
				Truncated: truncated,
				Warnings:  append(warnings, recWarnings...),
			}, nil
		}

		var pe *llm.ParseError
		if errors.As(decErr, &pe) {
			lastParseErr = pe
			c.log.Warn("llm.structure.malformed_completion",
				"req_id", rid, "attempt", attempt, "error", pe,
			)
			continue
		}

		// Incomplete extraction: the generation itself is well-formed, so
		// re-asking would only invite fabricated values.
		c.log.Error("llm.structure.incomplete",
			"req_id", rid, "attempt", attempt, "error", decErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.StructureResult{}, decErr
	}

	c.log.Error("llm.structure.failed",
		"req_id", rid,
		"attempts", c.cfg.MaxParseAttempts,
		"error", lastParseErr,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return llm.StructureResult{}, common.NewStageError(common.StageStructure, common.KindStructuringFailed,
		fmt.Sprintf("completion failed schema parse after %d attempts", c.cfg.MaxParseAttempts), lastParseErr)
}

// complete performs one completion call, retrying transient transport
// failures with exponential backoff, and returns the message content of the
// first choice.
func (c *Client) complete(ctx context.Context, payload []byte) ([]byte, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	var raw []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err // network error or timeout, retryable
		}
		defer func() {
			if cerr := resp.Body.Close(); cerr != nil {
				c.log.Warn("llm.http.body_close_error", "error", cerr)
			}
		}()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if retryableStatus(resp.StatusCode) {
			return fmt.Errorf("completion status %d: %s", resp.StatusCode, truncateForLog(body))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("completion status %d: %s", resp.StatusCode, truncateForLog(body)))
		}
		raw = body
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BackoffInitial
	bo.MaxInterval = c.cfg.BackoffMax
	bo.MaxElapsedTime = 0 // bounded by attempt count and ctx, not wall clock

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxUpstreamAttempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadEnvelope, err)
	}
	if len(envelope.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", errBadEnvelope)
	}
	return []byte(strings.TrimSpace(envelope.Choices[0].Message.Content)), nil
}

// errBadEnvelope marks a 2xx response whose body is not a usable
// chat/completions envelope. It counts against the parse-attempt budget,
// not the upstream one.
var errBadEnvelope = errors.New("malformed completion envelope")

// retryableStatus reports whether a completion should be retried with
// backoff: request timeout, rate limiting, or server-side failure.
func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

func truncateForLog(b []byte) string {
	const max = 512
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
