package graphite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"alert-autoconf/internal/config"
	"alert-autoconf/internal/domain"
	"alert-autoconf/internal/logging"
)

// ErrInvalidTargets reports that at least one target failed to render.
var ErrInvalidTargets = errors.New("invalid graphite targets")

// TargetResult is the render outcome of one trigger target.
type TargetResult struct {
	Trigger string
	Index   int
	Target  string
	Err     error
}

// Validator renders trigger targets through the Graphite render API.
type Validator struct {
	renderURL string
	client    *http.Client
	logger    *slog.Logger
}

// NewValidator creates render API validator.
// Params: graphite settings and logger.
// Returns: validator instance.
func NewValidator(cfg config.GraphiteConfig, logger *slog.Logger) *Validator {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Validator{
		renderURL: config.NormalizeBackendURL(cfg.RenderURL),
		client:    &http.Client{Timeout: timeout},
		logger:    logging.OrDiscard(logger),
	}
}

// ValidateDocument renders every target of every trigger.
// All targets are checked even after a failure.
// Params: context and normalized document.
// Returns: per-target results and ErrInvalidTargets when any target failed.
func (v *Validator) ValidateDocument(ctx context.Context, doc domain.Document) ([]TargetResult, error) {
	var (
		results []TargetResult
		failed  int
	)
	for _, trigger := range doc.Triggers {
		for i, target := range trigger.Targets {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			result := TargetResult{Trigger: trigger.Name, Index: i, Target: target}
			result.Err = v.ValidateTarget(ctx, target)
			if result.Err != nil {
				failed++
				v.logger.Error("target invalid", "trigger", trigger.Name, "index", i, "error", result.Err.Error())
			} else {
				v.logger.Info("target ok", "trigger", trigger.Name, "index", i)
			}
			results = append(results, result)
		}
	}
	if failed > 0 {
		return results, fmt.Errorf("%w: %d of %d failed", ErrInvalidTargets, failed, len(results))
	}
	return results, nil
}

// ValidateTarget requests the last minute of one target.
// Params: context and graphite target expression.
// Returns: transport error or error when the answer is not JSON.
func (v *Validator) ValidateTarget(ctx context.Context, target string) error {
	query := url.Values{}
	query.Set("format", "json")
	query.Set("target", target)
	query.Set("from", "-1min")
	query.Set("noNullPoints", "true")
	query.Set("maxDataPoints", "1")

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, v.renderURL+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build render request: %w", err)
	}
	response, err := v.client.Do(request)
	if err != nil {
		return fmt.Errorf("render request: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("read render response: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("render status=%d body=%s: not json", response.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
