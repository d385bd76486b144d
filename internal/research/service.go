package research

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/degradation"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/llm"
	ometrics "github.com/Kocoro-lab/Shannon/go/prosearch/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/search"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/streaming"
	"go.uber.org/zap"
)

// Request is one question to answer.
type Request struct {
	Query     string
	History   []Message
	ProSearch bool
	TimeRange search.TimeRange
}

// Result summarises a finished request for logging and callers that do not stream.
type Result struct {
	Mode       degradation.ExecutionMode
	Downgraded bool
	FellBack   bool
	Query      string
	Answer     string
	Steps      []AgentSearchStep
}

// ModeSelector may downgrade a requested mode before the run starts.
type ModeSelector interface {
	DetermineFinalMode(ctx context.Context, mode degradation.ExecutionMode) (degradation.ExecutionMode, *degradation.ModeDowngradeReason, error)
}

// Options configures a Service.
type Options struct {
	ProModeEnabled bool
	// BufferPlanEvents holds pro-mode events until the answer starts, so a fallback
	// leaves no partial plan in the stream.
	BufferPlanEvents bool
}

// Service answers requests in pro mode with a one-shot fallback to basic mode.
type Service struct {
	searcher Searcher
	modes    ModeSelector
	logger   *zap.Logger

	proEnabled       atomic.Bool
	bufferPlanEvents atomic.Bool
}

func NewService(searcher Searcher, modes ModeSelector, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{searcher: searcher, modes: modes, logger: logger}
	s.proEnabled.Store(opts.ProModeEnabled)
	s.bufferPlanEvents.Store(opts.BufferPlanEvents)
	return s
}

// SetProModeEnabled switches pro mode at runtime.
func (s *Service) SetProModeEnabled(enabled bool) { s.proEnabled.Store(enabled) }

// ProModeEnabled reports the current switch position.
func (s *Service) ProModeEnabled() bool { return s.proEnabled.Load() }

// Stream answers req, emitting protocol events to sink. It returns nil only after
// stream-end was emitted.
func (s *Service) Stream(ctx context.Context, req Request, caps Capabilities, sink streaming.Sink) (res Result, err error) {
	start := time.Now()
	requested := degradation.ModeBasic
	if req.ProSearch {
		requested = degradation.ModePro
	}
	res.Mode = requested
	ometrics.RequestsStarted.WithLabelValues(string(requested)).Inc()
	defer func() {
		status := "ok"
		switch {
		case err != nil && ctx.Err() != nil:
			status = "cancelled"
		case err != nil:
			status = "error"
		case res.FellBack:
			status = "fallback"
		}
		ometrics.RequestsCompleted.WithLabelValues(string(requested), status).Inc()
		ometrics.RequestDuration.WithLabelValues(string(requested)).Observe(time.Since(start).Seconds())
	}()

	if s.modes != nil && req.ProSearch {
		final, reason, merr := s.modes.DetermineFinalMode(ctx, requested)
		if merr != nil {
			s.logger.Warn("Mode selection failed, keeping requested mode", zap.Error(merr))
		} else if reason != nil {
			res.Mode = final
			res.Downgraded = true
		}
	}
	if res.Mode == degradation.ModePro && !s.proEnabled.Load() {
		return res, ErrProModeDisabled
	}
	if err := caps.check(res.Mode == degradation.ModePro); err != nil {
		return res, err
	}
	if len(req.History) > 0 && caps.Rephraser == nil {
		return res, &llm.ConfigurationError{Field: "llm.agents.rephrase", Reason: "capability not available"}
	}

	if err := sink.Emit(ctx, streaming.NewBeginStream(req.Query)); err != nil {
		return res, err
	}

	query, err := Rephrase(ctx, caps.Rephraser, req.Query, req.History)
	if err != nil {
		return res, err
	}
	res.Query = query

	if res.Mode == degradation.ModePro {
		err = s.runPro(ctx, req, query, caps, sink, &res)
	} else {
		err = s.runBasic(ctx, req, query, caps, sink, &res)
	}
	if err != nil {
		s.logger.Error("Request failed",
			zap.String("mode", string(res.Mode)),
			zap.Bool("fell_back", res.FellBack),
			zap.Error(err),
		)
	}
	return res, err
}

// runPro is the fallback boundary. Any failure other than cancellation or a
// configuration problem restarts the request in basic mode, once. With buffered plan
// events, a failure after the buffer committed (answer text sent) is terminal.
func (s *Service) runPro(ctx context.Context, req Request, query string, caps Capabilities, sink streaming.Sink, res *Result) error {
	hold := s.bufferPlanEvents.Load()
	buf := streaming.NewBuffer(sink, hold, streaming.TextChunk, streaming.RelatedQueries)

	answer, steps, err := s.pro(ctx, req, query, caps, buf)
	res.Steps = steps
	if err == nil {
		res.Answer = answer
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if llm.IsConfigurationError(err) {
		return err
	}
	if hold && buf.Committed() {
		// Answer text already reached the caller, so a restart would duplicate it. Such
		// failures are terminal instead of falling back.
		return err
	}

	dropped := buf.Discard()
	reason := fallbackReason(err)
	ometrics.Fallbacks.WithLabelValues(reason).Inc()
	s.logger.Warn("Pro search failed, falling back to basic mode",
		zap.String("reason", reason),
		zap.Int("dropped_events", dropped),
		zap.Int("completed_steps", len(steps)),
		zap.Error(err),
	)
	res.FellBack = true
	res.Mode = degradation.ModeBasic
	res.Steps = nil
	return s.runBasic(ctx, req, query, caps, sink, res)
}

func (s *Service) pro(ctx context.Context, req Request, query string, caps Capabilities, sink streaming.Sink) (string, []AgentSearchStep, error) {
	plan, err := NewStepPlanner(caps.Planner, s.logger).Plan(ctx, query)
	if err != nil {
		return "", nil, err
	}
	if err := sink.Emit(ctx, streaming.NewAgentQueryPlan(plan.Texts())); err != nil {
		return "", nil, err
	}

	exec, err := NewStepExecutor(caps.QueryWriter, s.searcher, s.logger).Run(ctx, plan, query, req.TimeRange, sink)
	if err != nil {
		return "", exec.Steps, err
	}
	if err := sink.Emit(ctx, streaming.NewAgentFinish()); err != nil {
		return "", exec.Steps, err
	}

	terminal := plan.Terminal()
	results, images := DistributeResults(terminal.Dependencies, exec.Results, exec.Images)
	answer, err := s.synthesizer(caps).Synthesize(ctx, query, results, images,
		func() string { return BuildCrossStepContext(exec.Contexts) }, sink)
	if err != nil {
		return "", exec.Steps, err
	}
	steps := append(exec.Steps, AgentSearchStep{
		StepNumber: terminal.ID,
		Step:       terminal.Step,
		Queries:    []string{},
		Results:    []search.SearchResult{},
		Status:     StepDone,
	})
	return answer, steps, nil
}

// runBasic answers from a single search of the query. Failures are terminal.
func (s *Service) runBasic(ctx context.Context, req Request, query string, caps Capabilities, sink streaming.Sink, res *Result) error {
	results, images := s.searcher.Search(ctx, []string{query}, req.TimeRange)
	answer, err := s.synthesizer(caps).Synthesize(ctx, query, results, images,
		func() string { return BuildBasicContext(results) }, sink)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	res.Answer = answer
	return nil
}

func (s *Service) synthesizer(caps Capabilities) *ResponseSynthesizer {
	return NewResponseSynthesizer(caps.Answerer, NewRelatedQuestions(caps.Related, s.logger), s.logger)
}
