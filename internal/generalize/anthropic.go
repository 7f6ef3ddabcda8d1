package generalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/contextwave/cwme/internal/audit"
	"github.com/contextwave/cwme/internal/telemetry"
	"github.com/contextwave/cwme/internal/types"
)

// ErrAPIKeyRequired is returned when an API key is needed but not provided.
var ErrAPIKeyRequired = errors.New("generalize: API key required")

// AnthropicConfig configures the Claude-backed Generalizer.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	MaxElapsed  time.Duration
	AuditActor  string
	AuditCalls  bool
}

// DefaultModel is the model used when AnthropicConfig.Model is empty.
const DefaultModel = "claude-3-5-haiku-20241022"

// AnthropicGeneralizer implements Generalizer by prompting Claude to
// propose a generalization draft from a cluster's descriptions and rules,
// grounded on the teacher's Haiku summarization client: a templated
// prompt, retried call, and best-effort audit log.
type AnthropicGeneralizer struct {
	client     anthropic.Client
	model      anthropic.Model
	tmpl       *template.Template
	maxElapsed time.Duration
	auditActor string
	auditCalls bool
}

// NewAnthropicGeneralizer builds a Generalizer. An empty APIKey is an
// error (ErrAPIKeyRequired); callers that want a dry-run mode should
// substitute a stub Generalizer instead of constructing this type.
func NewAnthropicGeneralizer(cfg AnthropicConfig) (*AnthropicGeneralizer, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxElapsed := cfg.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}

	tmpl, err := template.New("generalize").Parse(generalizePromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("generalize: parse prompt template: %w", err)
	}

	metricsOnce()

	return &AnthropicGeneralizer{
		client:     anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:      anthropic.Model(model),
		tmpl:       tmpl,
		maxElapsed: maxElapsed,
		auditActor: cfg.AuditActor,
		auditCalls: cfg.AuditCalls,
	}, nil
}

func (g *AnthropicGeneralizer) Generalize(ctx context.Context, in ClusterInput) (*Draft, error) {
	prompt, err := g.renderPrompt(in)
	if err != nil {
		return nil, fmt.Errorf("generalize: render prompt: %w", err)
	}

	text, callErr := g.callWithRetry(ctx, prompt)

	if g.auditCalls {
		e := &audit.Entry{
			Kind:   "generalizer_call",
			Actor:  g.auditActor,
			Model:  string(g.model),
			Prompt: prompt,
		}
		if callErr != nil {
			e.Error = callErr.Error()
		} else {
			e.Response = text
		}
		_, _ = audit.Append(e) // best-effort; never fails the consolidation
	}

	if callErr != nil {
		return nil, callErr
	}

	draft, err := parseDraft(text)
	if err != nil {
		return nil, fmt.Errorf("generalize: malformed generalizer output: %w", err)
	}
	return draft, nil
}

var genMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var genMetricsOnce sync.Once

func metricsOnce() {
	genMetricsOnce.Do(initGenMetrics)
}

func initGenMetrics() {
	m := telemetry.Meter("github.com/contextwave/cwme/generalize")
	genMetrics.inputTokens, _ = m.Int64Counter("cwme.generalize.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed by the generalizer"),
		metric.WithUnit("{token}"))
	genMetrics.outputTokens, _ = m.Int64Counter("cwme.generalize.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated by the generalizer"),
		metric.WithUnit("{token}"))
	genMetrics.duration, _ = m.Float64Histogram("cwme.generalize.request.duration",
		metric.WithDescription("Anthropic API request duration in milliseconds"),
		metric.WithUnit("ms"))
}

func (g *AnthropicGeneralizer) callWithRetry(ctx context.Context, prompt string) (string, error) {
	tracer := telemetry.Tracer("github.com/contextwave/cwme/generalize")
	ctx, span := tracer.Start(ctx, "anthropic.messages.new")
	defer span.End()
	span.SetAttributes(
		attribute.String("cwme.model", string(g.model)),
		attribute.String("cwme.operation", "generalize"),
	)

	params := anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = g.maxElapsed

	var result string
	attempts := 0

	op := func() error {
		attempts++
		t0 := time.Now()
		message, err := g.client.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(wrapTimeoutOrFailure(ctx, err))
			}
			return err
		}

		modelAttr := attribute.String("cwme.model", string(g.model))
		if genMetrics.inputTokens != nil {
			genMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
			genMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
			genMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
		}

		if len(message.Content) == 0 {
			return backoff.Permanent(fmt.Errorf("generalize: empty response"))
		}
		content := message.Content[0]
		if content.Type != "text" {
			return backoff.Permanent(fmt.Errorf("generalize: unexpected response block type %q", content.Type))
		}
		result = content.Text
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(bo, ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("cwme.attempts", attempts))
	return result, nil
}

// wrapTimeoutOrFailure maps a non-retryable error onto the engine's
// collaborator error taxonomy (§7). It wraps the underlying error with
// the matching sentinel via %w so callers up the stack (consolidate.go's
// errors.Is check) can still distinguish a timeout from any other failure.
func wrapTimeoutOrFailure(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("generalize: %w: %v", types.ErrCollaboratorTimeout, err)
	}
	return fmt.Errorf("generalize: %w: %v", types.ErrCollaboratorFailure, err)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

func (g *AnthropicGeneralizer) renderPrompt(in ClusterInput) (string, error) {
	var sb strings.Builder
	if err := g.tmpl.Execute(&sb, in); err != nil {
		return "", err
	}
	return sb.String(), nil
}

type draftJSON struct {
	Description string   `json:"description"`
	Rule        string   `json:"rule"`
	Nodes       []string `json:"nodes"`
	Emotion     string   `json:"emotion"`
	Intensity   float64  `json:"intensity"`
}

// parseDraft extracts the first JSON object found in text. Claude is
// instructed to respond with exactly one JSON object; this tolerates
// surrounding prose defensively.
func parseDraft(text string) (*Draft, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var dj draftJSON
	if err := json.Unmarshal([]byte(text[start:end+1]), &dj); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	d := &Draft{
		Description: dj.Description,
		Rule:        dj.Rule,
		RawEmotion:  dj.Emotion,
		Intensity:   dj.Intensity,
	}
	for _, n := range dj.Nodes {
		d.Nodes = append(d.Nodes, types.Node{Name: n})
	}
	return d, nil
}

const generalizePromptTemplate = `You are generalizing a cluster of related episodic memories into a single higher-level rule.

{{range $i, $d := .Descriptions}}Episode {{$i}}: {{$d}}
{{end}}
{{range .Rules}}Existing rule: {{.}}
{{end}}
Shared entities: {{range .NodeNames}}{{.}} {{end}}

Respond with exactly one JSON object with these fields: description (string, a generalized description of the pattern), rule (string, the teaching this pattern implies), nodes (array of strings, the entities the generalization is about), emotion (string, a single canonical emotion word), intensity (number 0-1).`
