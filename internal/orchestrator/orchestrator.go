// Package orchestrator implements the Lifecycle Orchestrator (spec.md C9,
// §4.6): a single-record-at-a-time consumer loop that runs the admission
// decision, enrichment, and archival state machine for every stopped
// pulse. Grounded on the teacher's ticker-driven background engine
// (pkg/escalation/engine.go), adapted from tenant-wide polling to
// per-record stream consumption.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/pulsekeeper/pulsekeeper/internal/budget"
	"github.com/pulsekeeper/pulsekeeper/internal/clock"
	"github.com/pulsekeeper/pulsekeeper/internal/domainerr"
	"github.com/pulsekeeper/pulsekeeper/internal/llm"
	"github.com/pulsekeeper/pulsekeeper/internal/pulse"
	"github.com/pulsekeeper/pulsekeeper/internal/rules"
	"github.com/pulsekeeper/pulsekeeper/internal/store"
	"github.com/pulsekeeper/pulsekeeper/internal/telemetry"
	"github.com/pulsekeeper/pulsekeeper/internal/usage"
	"github.com/pulsekeeper/pulsekeeper/internal/worthiness"
)

const stepDeadline = 30 * time.Second

// Repo is the subset of *pulse.Repository the orchestrator needs.
type Repo interface {
	GetStopped(ctx context.Context, pulseID string) (pulse.StoppedPulse, error)
	DeleteStopped(ctx context.Context, pulseID string) error
	Archive(ctx context.Context, a pulse.ArchivedPulse) error
	GetOrCreateUsageDay(ctx context.Context, userID, date, month string, tier pulse.Tier) (pulse.UsageDay, error)
	IncrementUserStats(ctx context.Context, userID string, aiEnhanced bool) error
}

// Stream is the subset of *store.Stream the orchestrator needs.
type Stream interface {
	EnsureGroup(ctx context.Context) error
	Read(ctx context.Context, count int64, blockFor time.Duration) ([]store.Record, error)
	Ack(ctx context.Context, messageID string) error
}

// Engine drives the stopped-pulse stream to completion, one record at a
// time (spec.md §5: "single-threaded cooperative per pulse").
type Engine struct {
	stream       Stream
	repo         Repo
	budget       *budget.Controller
	ruleEnricher *rules.Enricher
	llmEnricher  *llm.Enricher
	modelCaller  llm.ModelCaller
	usageWriter  *usage.Writer
	clk          clock.Clock
	ids          clock.IDGen
	logger       *slog.Logger

	aiModelID string

	readCount    int64
	readInterval time.Duration
}

// NewEngine builds a lifecycle Engine.
func NewEngine(
	stream Stream,
	repo Repo,
	budgetCtrl *budget.Controller,
	ruleEnricher *rules.Enricher,
	llmEnricher *llm.Enricher,
	modelCaller llm.ModelCaller,
	usageWriter *usage.Writer,
	clk clock.Clock,
	ids clock.IDGen,
	logger *slog.Logger,
	aiModelID string,
) *Engine {
	return &Engine{
		stream:       stream,
		repo:         repo,
		budget:       budgetCtrl,
		ruleEnricher: ruleEnricher,
		llmEnricher:  llmEnricher,
		modelCaller:  modelCaller,
		usageWriter:  usageWriter,
		clk:          clk,
		ids:          ids,
		logger:       logger,
		aiModelID:    aiModelID,
		readCount:    10,
		readInterval: 2 * time.Second,
	}
}

// Run blocks, polling the stream and processing records one at a time,
// until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.stream.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("ensuring consumer group: %w", err)
	}
	e.logger.Info("lifecycle orchestrator started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("lifecycle orchestrator stopped")
			return nil
		default:
		}

		records, err := e.stream.Read(ctx, e.readCount, e.readInterval)
		if err != nil {
			e.logger.Error("reading stopped-pulse stream", "error", err)
			continue
		}
		for _, rec := range records {
			e.processRecord(ctx, rec)
		}
	}
}

// processRecord runs one pulse through steps 1-8 of spec.md §4.6. It never
// returns an error: every failure is logged and, where the step allows,
// skipped so the stream can advance.
func (e *Engine) processRecord(ctx context.Context, rec store.Record) {
	if rec.PulseID == "" {
		e.logger.Warn("skipping stream record with no pulse_id", "message_id", rec.MessageID)
		_ = e.stream.Ack(ctx, rec.MessageID)
		return
	}

	stepCtx, cancel := context.WithTimeout(ctx, stepDeadline)
	defer cancel()

	start := e.clk.Now()
	outcome := "failed"
	defer func() {
		telemetry.OrchestratorDuration.WithLabelValues(outcome).Observe(e.clk.Now().Sub(start).Seconds())
	}()

	stopped, err := e.repo.GetStopped(stepCtx, rec.PulseID)
	if err != nil {
		if errors.Is(err, domainerr.ErrNotFound) {
			// Already archived and deleted by a prior (possibly redelivered)
			// attempt; nothing left to do.
			outcome = "archived"
			_ = e.stream.Ack(ctx, rec.MessageID)
			return
		}
		e.logger.Error("loading stopped pulse", "pulse_id", rec.PulseID, "error", err)
		return
	}

	decision, err := e.evaluate(stepCtx, stopped)
	if err != nil {
		e.logger.Error("evaluating admission decision", "pulse_id", rec.PulseID, "error", err)
		return
	}

	var genTitle, genBadge string
	var insights *pulse.AIInsights
	var aiEnhanced bool
	var actualCostCents float64
	var modelUsed string

	if decision.Accepted {
		genTitle, genBadge, insights, modelUsed, actualCostCents, err = e.enrichWithLLM(stepCtx, stopped)
		if err != nil {
			e.logger.Warn("LLM enrichment failed, demoting to rule path", "pulse_id", rec.PulseID, "error", err)
			decision.Reason = "model_error"
			genTitle, genBadge = e.enrichWithRules(stopped)
			outcome = "demoted"
		} else {
			aiEnhanced = true
		}
	} else {
		genTitle, genBadge = e.enrichWithRules(stopped)
	}

	archived := pulse.ArchivedPulse{
		PulseID:               stopped.PulseID,
		UserID:                stopped.UserID,
		Intent:                stopped.Intent,
		StartTime:             stopped.StartTime,
		DurationSeconds:       stopped.DurationSeconds,
		IntentEmotion:         stopped.IntentEmotion,
		Tags:                  stopped.Tags,
		IsPublic:              stopped.IsPublic,
		Reflection:            stopped.Reflection,
		ReflectionEmotion:     stopped.ReflectionEmotion,
		StoppedAt:             stopped.StoppedAt,
		ActualDurationSeconds: stopped.ActualDurationSeconds,
		ArchivedAt:            e.clk.Now(),
		GenTitle:              genTitle,
		GenBadge:              genBadge,
		AIEnhanced:            aiEnhanced,
		AICostCents:           actualCostCents,
		AIInsights:            insights,
		AISelectionInfo:       decision.toSelectionInfo(modelUsed),
	}

	var rewards []budget.Reward
	if aiEnhanced {
		profile, err := e.repo.GetOrCreateUsageDay(stepCtx, stopped.UserID,
			e.clk.Now().Format("2006-01-02"), e.clk.Now().Format("2006-01"), pulse.TierFree)
		if err == nil {
			rewards = budget.PreviewRewards(profile, stopped.ActualDurationSeconds, stopped.Reflection, stopped.Intent)
		}
		for _, rw := range rewards {
			archived.TriggeredRewards = append(archived.TriggeredRewards, pulse.TriggeredReward{
				Trigger: rw.Trigger, Credits: int64(rw.CreditCents), Achievement: rw.Achievement,
			})
		}
	}

	if err := e.repo.Archive(stepCtx, archived); err != nil && !errors.Is(err, domainerr.ErrAlreadyArchived) {
		e.logger.Error("archiving pulse", "pulse_id", rec.PulseID, "error", err)
		return
	}
	if outcome == "failed" {
		outcome = "archived"
	}
	if aiEnhanced {
		telemetry.PulsesArchivedTotal.WithLabelValues("llm").Inc()
	} else {
		telemetry.PulsesArchivedTotal.WithLabelValues("rule").Inc()
	}

	// Steps 6-8 are independent of the archive's success; a failure in any
	// of them must never cause a redelivery of an already-archived pulse.
	if err := e.repo.DeleteStopped(stepCtx, rec.PulseID); err != nil {
		e.logger.Error("deleting stopped pulse after archive", "pulse_id", rec.PulseID, "error", err)
	}

	// Only a genuine LLM enhancement debits the ledger and fires rewards
	// (spec.md §4.6 step 7); the rule path and LLM-failure demotions commit
	// actual_cost=0 by skipping the ledger entirely, recording only the
	// SelectionEvaluated usage event below.
	if aiEnhanced {
		if err := e.budget.CommitRewards(stepCtx, stopped.UserID, e.clk.Now(), actualCostCents, rewards); err != nil {
			e.logger.Error("committing AI cost and rewards", "pulse_id", rec.PulseID, "error", err)
		} else {
			telemetry.BudgetDebitedCentsTotal.WithLabelValues(string(pulse.TierFree)).Add(actualCostCents)
		}
	}

	e.recordSelectionEvent(stepCtx, stopped, decision)

	if err := e.repo.IncrementUserStats(stepCtx, stopped.UserID, aiEnhanced); err != nil {
		e.logger.Error("incrementing user stats", "pulse_id", rec.PulseID, "error", err)
	}

	if err := e.stream.Ack(ctx, rec.MessageID); err != nil {
		e.logger.Error("acking stream record", "pulse_id", rec.PulseID, "error", err)
	}
}

// decisionResult bundles the admission decision with the reason actually
// recorded after any LLM-failure demotion.
type decisionResult struct {
	budget.Decision
	Reason string
}

func (d decisionResult) toSelectionInfo(modelUsed string) pulse.SelectionInfo {
	reason := d.Reason
	if reason == "" {
		reason = d.Decision.Reason
	}
	status := d.BudgetStatus
	return pulse.SelectionInfo{
		DecisionReason:  reason,
		Score:           d.Score,
		EstCostCents:    d.EstCostCents,
		CouldBeEnhanced: d.CouldBeEnhanced,
		Probability:     d.Probability,
		Draw:            d.Draw,
		ModelUsed:       modelUsed,
		BudgetStatus:    &status,
	}
}

func (e *Engine) evaluate(ctx context.Context, stopped pulse.StoppedPulse) (decisionResult, error) {
	dailyCount, err := e.todayPulseCount(ctx, stopped.UserID)
	if err != nil {
		dailyCount = -1
	}
	w := worthiness.Input{
		Intent:                stopped.Intent,
		Reflection:            stopped.Reflection,
		IntentEmotion:         stopped.IntentEmotion,
		ReflectionEmotion:     stopped.ReflectionEmotion,
		ActualDurationSeconds: stopped.ActualDurationSeconds,
		DailyPulseCount:       dailyCount,
	}
	rng := rand.New(pulseSeed(stopped.PulseID))
	d, err := e.budget.Evaluate(ctx, stopped.UserID, w, stopped.Intent, stopped.Reflection, e.aiModelID, llm.EstimateCostCents, rng)
	if err != nil {
		return decisionResult{}, err
	}
	telemetry.AdmissionDecisionsTotal.WithLabelValues(d.Reason).Inc()
	return decisionResult{Decision: d}, nil
}

// todayPulseCount is a best-effort frequency signal for the worthiness
// scorer's F component; unknown (-1) degrades gracefully (spec.md §4.4).
func (e *Engine) todayPulseCount(ctx context.Context, userID string) (int, error) {
	day, err := e.repo.GetOrCreateUsageDay(ctx, userID, e.clk.Now().Format("2006-01-02"), e.clk.Now().Format("2006-01"), pulse.TierFree)
	if err != nil {
		return -1, err
	}
	return int(day.DailyPulsesEnhanced), nil
}

func (e *Engine) enrichWithRules(stopped pulse.StoppedPulse) (string, string) {
	rng := rand.New(pulseSeed(stopped.PulseID))
	result := e.ruleEnricher.Enrich(rules.Input{
		Intent:                stopped.Intent,
		IntentEmotion:         stopped.IntentEmotion,
		Reflection:            stopped.Reflection,
		ReflectionEmotion:     stopped.ReflectionEmotion,
		ActualDurationSeconds: stopped.ActualDurationSeconds,
	}, rng)
	return result.GenTitle, result.GenBadge
}

func (e *Engine) enrichWithLLM(ctx context.Context, stopped pulse.StoppedPulse) (title, badge string, insights *pulse.AIInsights, model string, costCents float64, err error) {
	model, err = llm.ResolveModel(ctx, e.modelCaller, e.aiModelID, e.logger)
	if err != nil {
		telemetry.LLMCallsTotal.WithLabelValues(e.aiModelID, "unavailable").Inc()
		return "", "", nil, "", 0, err
	}

	out, err := e.llmEnricher.Enrich(ctx, model, llm.Input{
		Intent:                stopped.Intent,
		IntentEmotion:         stopped.IntentEmotion,
		Reflection:            stopped.Reflection,
		ReflectionEmotion:     stopped.ReflectionEmotion,
		ActualDurationSeconds: stopped.ActualDurationSeconds,
	})
	if err != nil {
		telemetry.LLMCallsTotal.WithLabelValues(model, "unavailable").Inc()
		return "", "", nil, model, 0, err
	}
	telemetry.LLMCallsTotal.WithLabelValues(model, "success").Inc()

	cost := llm.ActualCostCents(out.InputTokens, out.OutputTokens, model)
	ins := out.Insights
	return out.GenTitle, out.GenBadge, &ins, model, cost, nil
}

// pulseSeed derives a stable RNG seed from pulse_id, so a redelivered
// record (at-least-once) reproduces the same probabilistic admission
// draw and the same rule-path title/badge pick (spec.md §4.6: "idempotent
// by pulse_id").
func pulseSeed(pulseID string) *rand.PCG {
	h := fnv.New64a()
	_, _ = h.Write([]byte(pulseID))
	sum := h.Sum64()
	return rand.NewPCG(sum, sum>>1|1)
}

func (e *Engine) recordSelectionEvent(ctx context.Context, stopped pulse.StoppedPulse, d decisionResult) {
	e.usageWriter.Record(pulse.UsageEvent{
		UserID:       stopped.UserID,
		Timestamp:    e.clk.Now(),
		EventID:      e.ids.NewID(),
		PulseID:      stopped.PulseID,
		Kind:         pulse.EventSelectionEvaluated,
		EstCostCents: d.EstCostCents,
	})
}
