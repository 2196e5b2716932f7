package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/streamform/agent/conversation"
	"github.com/BaSui01/streamform/agent/structured"
	"github.com/BaSui01/streamform/llm"
	"github.com/BaSui01/streamform/llm/tokenizer"
	"github.com/BaSui01/streamform/types"
)

// Turn outcomes reported to Metrics.
const (
	OutcomeCommitted         = "committed"
	OutcomeStreamError       = "stream_error"
	OutcomeCancelled         = "cancelled"
	OutcomeIncompatibleShape = "incompatible_shape"
	OutcomeError             = "error"
)

// Metrics receives turn telemetry. Implementations must be safe for concurrent use.
type Metrics interface {
	RecordTurn(mode, outcome string, duration time.Duration)
	RecordTurnTransition(mode, from, to string)
	RecordSnapshot(mode string)
	RecordPrune(mode string, unknownFields, scalarViolations int)
}

type noopMetrics struct{}

func (noopMetrics) RecordTurn(string, string, time.Duration) {}
func (noopMetrics) RecordTurnTransition(string, string, string) {}
func (noopMetrics) RecordSnapshot(string) {}
func (noopMetrics) RecordPrune(string, int, int) {}

// Config holds the model parameters of every turn.
type Config struct {
	Model       string  `json:"model" yaml:"model"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature float32 `json:"temperature" yaml:"temperature"`
	// MaxHistoryTokens bounds the history sent to the model; 0 sends everything.
	MaxHistoryTokens int `json:"max_history_tokens" yaml:"max_history_tokens"`
}

// Controller drives turns: it records the user message, streams the model
// reply through the reconciler to a Sink and commits the final value.
type Controller struct {
	opener    llm.Opener
	mode      Mode
	cfg       Config
	store     *conversation.Store
	tokenizer tokenizer.Tokenizer
	metrics   Metrics
	tracer    trace.Tracer
	logger    *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfig sets the model parameters.
func WithConfig(cfg Config) Option { return func(c *Controller) { c.cfg = cfg } }

// WithStore persists the conversation after every append.
func WithStore(s *conversation.Store) Option { return func(c *Controller) { c.store = s } }

// WithTokenizer overrides the tokenizer used for history trimming.
func WithTokenizer(t tokenizer.Tokenizer) Option { return func(c *Controller) { c.tokenizer = t } }

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option { return func(c *Controller) { c.tracer = t } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController creates a free-text controller; see WithMode.
func NewController(opener llm.Opener, opts ...Option) *Controller {
	c := &Controller{
		opener:  opener,
		mode:    FreeTextMode(),
		metrics: noopMetrics{},
		tracer:  otel.Tracer("github.com/BaSui01/streamform/agent/streaming"),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokenizer == nil {
		c.tokenizer = tokenizer.ForModel(c.cfg.Model)
	}
	c.logger = c.logger.With(zap.String("component", "turn_controller"))
	return c
}

// WithMode returns a controller sharing c's dependencies that runs turns in mode m.
func (c *Controller) WithMode(m Mode) *Controller {
	cp := *c
	cp.mode = m
	return &cp
}

// Mode returns the controller's response mode.
func (c *Controller) Mode() Mode { return c.mode }

// Result describes a finished turn.
type Result struct {
	TurnID string
	User   types.Message
	// Assistant is nil unless the turn committed.
	Assistant *types.Message
	// Final is the last reconciled value (structured) or the full text.
	Final     any
	Snapshots int
	Pruned    structured.PruneStats
}

// Submit runs one turn of conv for userText, publishing snapshots to sink.
//
// The user message is appended before the model is contacted and is kept
// whatever happens next. Once the turn lease is held, sink.Done is called
// exactly once: with the final snapshot on commit, with nil otherwise. When
// another turn is open the error is types.ErrAgentBusy and sink is not used.
// The Result is returned alongside any error raised after the user message
// was recorded.
func (c *Controller) Submit(ctx context.Context, conv *conversation.Conversation, userText string, sink Sink) (*Result, error) {
	start := time.Now()

	turn, err := conv.BeginTurn()
	if err != nil {
		return nil, err
	}
	defer turn.End()

	ctx, span := c.tracer.Start(ctx, "streaming.turn", trace.WithAttributes(
		attribute.String("chat.id", conv.ID()),
		attribute.String("turn.id", turn.ID()),
		attribute.String("turn.mode", c.mode.Name),
	))
	defer span.End()

	logger := c.logger.With(
		zap.String("chat_id", conv.ID()),
		zap.String("turn_id", turn.ID()),
		zap.String("mode", c.mode.Name),
	)
	machine := newTurnMachine(func(from, to TurnState) {
		c.metrics.RecordTurnTransition(c.mode.Name, string(from), string(to))
		logger.Debug("turn state changed", zap.String("from", string(from)), zap.String("to", string(to)))
	})

	if err := machine.Transition(StateAwaitingModel); err != nil {
		return nil, err
	}

	user := types.NewUserMessage(userText)
	if err := turn.AppendUser(user); err != nil {
		_ = machine.Transition(StateIdle)
		return nil, err
	}
	c.persist(ctx, conv, logger)
	logger.Info("turn started", zap.Int("history", conv.Len()))

	res := &Result{TurnID: turn.ID(), User: user}
	finish := func(outcome string, err error) (*Result, error) {
		if machine.State() != StateIdle {
			_ = machine.Transition(StateIdle)
		}
		c.metrics.RecordTurn(c.mode.Name, outcome, time.Since(start))
		span.SetAttributes(attribute.String("turn.outcome", outcome), attribute.Int("turn.snapshots", res.Snapshots))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(types.GetErrorCode(err)))
			if doneErr := sink.Done(context.WithoutCancel(ctx), nil); doneErr != nil && !errors.Is(doneErr, ErrSinkClosed) {
				logger.Warn("failed to close sink", zap.Error(doneErr))
			}
		}
		return res, err
	}

	req, err := c.buildRequest(ctx, turn.History())
	if err != nil {
		logger.Error("failed to build model request", zap.Error(err))
		return finish(OutcomeError, types.NewError(types.ErrInternalError, "build model request").WithCause(err))
	}

	final, err := c.stream(ctx, req, machine, sink, res)
	switch {
	case ctx.Err() != nil:
		logger.Info("turn cancelled", zap.Int("snapshots", res.Snapshots))
		return finish(OutcomeCancelled, types.NewError(types.ErrTurnCancelled, "turn cancelled").WithCause(ctx.Err()))
	case types.IsErrorCode(err, types.ErrIncompatibleShape):
		logger.Error("model output does not derive from schema", zap.Error(err))
		return finish(OutcomeIncompatibleShape, err)
	case types.IsErrorCode(err, types.ErrStreamError):
		logger.Warn("model stream failed", zap.Error(err), zap.Int("snapshots", res.Snapshots))
		return finish(OutcomeStreamError, err)
	case err != nil:
		logger.Error("turn failed", zap.Error(err))
		if _, ok := types.AsError(err); !ok {
			err = types.NewError(types.ErrInternalError, "turn failed").WithCause(err)
		}
		return finish(OutcomeError, err)
	case res.Snapshots == 0:
		logger.Warn("model stream ended without output")
		return finish(OutcomeStreamError, types.NewStreamError(errors.New("model stream ended without output")))
	}

	if err := machine.Transition(StateCommitting); err != nil {
		return finish(OutcomeError, err)
	}
	msg, err := c.assistantMessage(final)
	if err != nil {
		return finish(OutcomeError, types.NewError(types.ErrInternalError, "encode assistant message").WithCause(err))
	}
	if err := turn.AppendAssistant(msg); err != nil {
		return finish(OutcomeError, err)
	}
	c.persist(ctx, conv, logger)
	_ = machine.Transition(StateIdle)

	res.Final = final
	res.Assistant = &msg
	if err := sink.Done(ctx, c.mode.project(final)); err != nil {
		logger.Warn("failed to publish final snapshot", zap.Error(err))
	}

	c.metrics.RecordTurn(c.mode.Name, OutcomeCommitted, time.Since(start))
	span.SetAttributes(attribute.String("turn.outcome", OutcomeCommitted), attribute.Int("turn.snapshots", res.Snapshots))
	logger.Info("turn committed",
		zap.Int("snapshots", res.Snapshots),
		zap.Int("pruned_unknown_fields", res.Pruned.UnknownFields),
		zap.Int("pruned_scalar_violations", res.Pruned.ScalarViolations),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

// stream runs the producer and the single consumer. It returns the last
// reconciled value (or the full text).
func (c *Controller) stream(ctx context.Context, req *llm.ChatRequest, machine *turnMachine, sink Sink, res *Result) (any, error) {
	var reconciler *structured.Reconciler
	if c.mode.Structured() {
		reconciler = structured.NewReconciler(c.mode.Schema)
	}

	events := make(chan llm.StreamEvent)
	g, gctx := errgroup.WithContext(ctx)

	// producer
	g.Go(func() error {
		defer close(events)
		stream, err := c.opener.Open(gctx, req)
		if err != nil {
			return types.NewStreamError(err)
		}
		for ev := range stream {
			if ev.Err != nil {
				return types.NewStreamError(ev.Err)
			}
			select {
			case events <- ev:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	var (
		final any
		text  strings.Builder
	)
	// consumer
	g.Go(func() error {
		for ev := range events {
			var value any
			if reconciler != nil {
				reconciled, stats, err := reconciler.ReconcileWithStats(ev.Value)
				if err != nil {
					return err
				}
				if stats != (structured.PruneStats{}) {
					res.Pruned.Add(stats)
					c.metrics.RecordPrune(c.mode.Name, stats.UnknownFields, stats.ScalarViolations)
				}
				value = reconciled
			} else {
				text.WriteString(ev.Text)
				value = text.String()
			}

			if err := machine.Transition(StateStreaming); err != nil {
				return err
			}
			final = value
			res.Snapshots++
			if err := sink.Update(gctx, c.mode.project(value)); err != nil {
				return fmt.Errorf("publish snapshot: %w", err)
			}
			c.metrics.RecordSnapshot(c.mode.Name)
		}
		return nil
	})

	err := g.Wait()
	return final, err
}

// buildRequest assembles the model request from the turn history.
func (c *Controller) buildRequest(ctx context.Context, history []types.Message) (*llm.ChatRequest, error) {
	prompt, err := c.mode.systemPrompt()
	if err != nil {
		return nil, err
	}
	format, err := c.mode.responseFormat()
	if err != nil {
		return nil, err
	}

	msgs := make([]tokenizer.Message, 0, len(history)+1)
	if prompt != "" {
		msgs = append(msgs, tokenizer.Message{Role: string(types.RoleSystem), Content: prompt})
	}
	for _, m := range history {
		msgs = append(msgs, tokenizer.Message{Role: string(m.Role), Content: m.Content})
	}
	msgs, err = tokenizer.FitHistory(c.tokenizer, msgs, c.cfg.MaxHistoryTokens)
	if err != nil {
		return nil, fmt.Errorf("trim history: %w", err)
	}

	req := &llm.ChatRequest{
		Model:          c.cfg.Model,
		MaxTokens:      c.cfg.MaxTokens,
		Temperature:    c.cfg.Temperature,
		ResponseFormat: format,
		Messages:       make([]llm.Message, 0, len(msgs)),
		Metadata:       map[string]string{"mode": c.mode.Name},
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, llm.Message{Role: types.Role(m.Role), Content: m.Content})
	}
	if id, ok := types.TraceID(ctx); ok {
		req.TraceID = id
	}
	if id, ok := types.TenantID(ctx); ok {
		req.TenantID = id
	}
	if id, ok := types.UserID(ctx); ok {
		req.UserID = id
	}
	return req, nil
}

func (c *Controller) assistantMessage(final any) (types.Message, error) {
	if !c.mode.Structured() {
		text, _ := final.(string)
		return types.NewAssistantMessage(text), nil
	}
	payload, err := json.Marshal(final)
	if err != nil {
		return types.Message{}, err
	}
	msg := types.NewAssistantMessage(c.mode.render(final)).WithPayload(payload)
	if c.mode.Attribution != nil {
		if sources := c.mode.Attribution(final); len(sources) > 0 {
			msg = msg.WithAttribution(sources)
		}
	}
	return msg, nil
}

// persist failures are logged; the in-memory history stays authoritative.
func (c *Controller) persist(ctx context.Context, conv *conversation.Conversation, logger *zap.Logger) {
	if c.store == nil {
		return
	}
	if err := c.store.Persist(context.WithoutCancel(ctx), conv); err != nil {
		logger.Warn("failed to persist conversation", zap.Error(err))
	}
}
