package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pulsekeeper/pulsekeeper/internal/budget"
	"github.com/pulsekeeper/pulsekeeper/internal/clock"
	"github.com/pulsekeeper/pulsekeeper/internal/domainerr"
	"github.com/pulsekeeper/pulsekeeper/internal/llm"
	"github.com/pulsekeeper/pulsekeeper/internal/pulse"
	"github.com/pulsekeeper/pulsekeeper/internal/rules"
	"github.com/pulsekeeper/pulsekeeper/internal/store"
	"github.com/pulsekeeper/pulsekeeper/internal/usage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRepo backs orchestrator.Repo, budget.Repo, and usage.Repo with an
// in-memory map, so one fake exercises the whole processRecord pipeline.
type fakeRepo struct {
	mu         sync.Mutex
	stopped    map[string]pulse.StoppedPulse
	usageDay   pulse.UsageDay
	archived   []pulse.ArchivedPulse
	committed  []float64
	events     []pulse.UsageEvent
	statIncs   int
	deletes    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		stopped:  map[string]pulse.StoppedPulse{},
		usageDay: pulse.UsageDay{UserTier: pulse.TierFree},
	}
}

func (f *fakeRepo) GetStopped(ctx context.Context, pulseID string) (pulse.StoppedPulse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.stopped[pulseID]
	if !ok {
		return pulse.StoppedPulse{}, domainerr.ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) DeleteStopped(ctx context.Context, pulseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.stopped, pulseID)
	f.deletes++
	return nil
}

func (f *fakeRepo) Archive(ctx context.Context, a pulse.ArchivedPulse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, a)
	return nil
}

func (f *fakeRepo) GetOrCreateUsageDay(ctx context.Context, userID, date, month string, tier pulse.Tier) (pulse.UsageDay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usageDay, nil
}

func (f *fakeRepo) IncrementUserStats(ctx context.Context, userID string, aiEnhanced bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statIncs++
	return nil
}

func (f *fakeRepo) CommitUsage(ctx context.Context, userID, date string, actualCost, credits pulse.Cents, achievements []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, actualCost.Float())
	return nil
}

func (f *fakeRepo) AppendUsageEvent(ctx context.Context, e pulse.UsageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeRepo) put(p pulse.StoppedPulse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped[p.PulseID] = p
}

// fakeStream is an in-memory Stream exercising Ack/Read bookkeeping without
// a real Redis server.
type fakeStream struct {
	mu     sync.Mutex
	acked  []string
	pending []store.Record
}

func (s *fakeStream) EnsureGroup(ctx context.Context) error { return nil }

func (s *fakeStream) Read(ctx context.Context, count int64, blockFor time.Duration) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out, nil
}

func (s *fakeStream) Ack(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, messageID)
	return nil
}

// scriptedCaller is a minimal llm.ModelCaller returning canned responses in
// call order, or failing every call when invokeErr is set.
type scriptedCaller struct {
	responses []string
	call      int
	invokeErr error
}

func (c *scriptedCaller) Probe(ctx context.Context, model string) error { return nil }

func (c *scriptedCaller) Invoke(ctx context.Context, model, prompt string, maxTokens int) (string, int64, int64, error) {
	if c.invokeErr != nil {
		return "", 0, 0, c.invokeErr
	}
	if c.call >= len(c.responses) {
		return "", 0, 0, nil
	}
	r := c.responses[c.call]
	c.call++
	return r, 10, 5, nil
}

func newTestEngine(t *testing.T, repo *fakeRepo, stream *fakeStream, caller llm.ModelCaller) *Engine {
	t.Helper()
	ruleEnricher, err := rules.NewEnricher()
	if err != nil {
		t.Fatalf("rules.NewEnricher: %v", err)
	}
	llmEnricher := llm.NewEnricher(caller, discardLogger())
	budgetCtrl := budget.New(repo, clock.System{}, budget.NoopNotifier{}, discardLogger(), true, 0)
	usageWriter := usage.NewWriter(repo, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	usageWriter.Start(ctx)
	t.Cleanup(func() {
		cancel()
		usageWriter.Close()
	})

	return NewEngine(stream, repo, budgetCtrl, ruleEnricher, llmEnricher, caller, usageWriter,
		clock.System{}, clock.UUIDGen{}, discardLogger(), "nova-lite-us")
}

func exceptionalStoppedPulse(pulseID string) pulse.StoppedPulse {
	return pulse.StoppedPulse{
		PulseID: pulseID, UserID: "user-1",
		Intent: "finally had a breakthrough refactoring the algorithm's complexity, a major architecture win",
		Reflection: "I felt frustrated at the start but after a long session of debugging I finally figured it out and shipped the fix; " +
			"the whole system architecture clicked into place and I wrote a much cleaner module with a better pattern for the pipeline.",
		IntentEmotion: "frustrated", ReflectionEmotion: "accomplished",
		ActualDurationSeconds: 100 * 60,
	}
}

func lowWorthStoppedPulse(pulseID string) pulse.StoppedPulse {
	return pulse.StoppedPulse{
		PulseID: pulseID, UserID: "user-1",
		Intent: "quick task", Reflection: "done",
		ActualDurationSeconds: 5 * 60,
	}
}

func TestProcessRecord_AcceptedLLMSuccess(t *testing.T) {
	repo := newFakeRepo()
	stream := &fakeStream{}
	caller := &scriptedCaller{responses: []string{
		"✨ Deep Work Warrior",
		"🏆 Marathoner",
		`{"productivity_score":9,"key_insight":"strong focus","next_suggestion":"keep going","mood_assessment":"energized","emotion_pattern":"upward"}`,
	}}
	engine := newTestEngine(t, repo, stream, caller)

	p := exceptionalStoppedPulse("pulse-1")
	repo.put(p)

	engine.processRecord(context.Background(), store.Record{MessageID: "1-1", PulseID: "pulse-1", UserID: "user-1"})

	if len(repo.archived) != 1 {
		t.Fatalf("archived count = %d, want 1", len(repo.archived))
	}
	archived := repo.archived[0]
	if !archived.AIEnhanced {
		t.Errorf("expected AIEnhanced = true for an accepted, successful LLM call")
	}
	if archived.GenTitle != "✨ Deep Work Warrior" {
		t.Errorf("GenTitle = %q, want the LLM title", archived.GenTitle)
	}
	if len(repo.committed) != 1 {
		t.Errorf("expected exactly one ledger commit, got %d", len(repo.committed))
	}
	if repo.deletes != 1 {
		t.Errorf("expected DeleteStopped to be called once, got %d", repo.deletes)
	}
	if len(stream.acked) != 1 || stream.acked[0] != "1-1" {
		t.Errorf("expected message 1-1 to be acked, got %v", stream.acked)
	}
}

func TestProcessRecord_RejectedFallsToRulesNoLedgerCommit(t *testing.T) {
	repo := newFakeRepo()
	stream := &fakeStream{}
	caller := &scriptedCaller{} // never invoked on the rule path
	engine := newTestEngine(t, repo, stream, caller)

	p := lowWorthStoppedPulse("pulse-2")
	repo.put(p)

	engine.processRecord(context.Background(), store.Record{MessageID: "2-1", PulseID: "pulse-2", UserID: "user-1"})

	if len(repo.archived) != 1 {
		t.Fatalf("archived count = %d, want 1", len(repo.archived))
	}
	if repo.archived[0].AIEnhanced {
		t.Error("expected AIEnhanced = false for a low-worthiness pulse")
	}
	if len(repo.committed) != 0 {
		t.Errorf("expected no ledger commit on the non-enhanced path, got %d", len(repo.committed))
	}

	// Wait for the async usage writer to record the SelectionEvaluated event.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		repo.mu.Lock()
		n := len(repo.events)
		repo.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.events) != 1 {
		t.Fatalf("expected exactly one SelectionEvaluated event, got %d", len(repo.events))
	}
	if repo.events[0].Kind != pulse.EventSelectionEvaluated {
		t.Errorf("event kind = %q, want %q", repo.events[0].Kind, pulse.EventSelectionEvaluated)
	}
}

func TestProcessRecord_AlreadyArchivedAcksWithoutReprocessing(t *testing.T) {
	repo := newFakeRepo() // pulse-3 never put, so GetStopped returns ErrNotFound
	stream := &fakeStream{}
	caller := &scriptedCaller{}
	engine := newTestEngine(t, repo, stream, caller)

	engine.processRecord(context.Background(), store.Record{MessageID: "3-1", PulseID: "pulse-3", UserID: "user-1"})

	if len(repo.archived) != 0 {
		t.Errorf("expected no archive call for an already-archived pulse, got %d", len(repo.archived))
	}
	if len(stream.acked) != 1 || stream.acked[0] != "3-1" {
		t.Errorf("expected the record to still be acked, got %v", stream.acked)
	}
}

func TestProcessRecord_LLMFailureDemotesToRulePath(t *testing.T) {
	repo := newFakeRepo()
	stream := &fakeStream{}
	caller := &scriptedCaller{invokeErr: errors.New("connection reset")}
	engine := newTestEngine(t, repo, stream, caller)

	p := exceptionalStoppedPulse("pulse-4")
	repo.put(p)

	engine.processRecord(context.Background(), store.Record{MessageID: "4-1", PulseID: "pulse-4", UserID: "user-1"})

	if len(repo.archived) != 1 {
		t.Fatalf("archived count = %d, want 1", len(repo.archived))
	}
	archived := repo.archived[0]
	if archived.AIEnhanced {
		t.Error("expected AIEnhanced = false after an LLM transport failure")
	}
	if archived.AISelectionInfo.DecisionReason != "model_error" {
		t.Errorf("DecisionReason = %q, want %q", archived.AISelectionInfo.DecisionReason, "model_error")
	}
	if len(repo.committed) != 0 {
		t.Errorf("expected no ledger commit after demotion, got %d", len(repo.committed))
	}
}

func TestEnrichWithRules_IdempotentAcrossRedelivery(t *testing.T) {
	repo := newFakeRepo()
	stream := &fakeStream{}
	caller := &scriptedCaller{}
	engine := newTestEngine(t, repo, stream, caller)

	p := lowWorthStoppedPulse("same-pulse-id")

	title1, badge1 := engine.enrichWithRules(p)
	title2, badge2 := engine.enrichWithRules(p)

	if title1 != title2 || badge1 != badge2 {
		t.Errorf("expected identical rule-path output for the same pulse_id across redelivery, got (%q,%q) and (%q,%q)",
			title1, badge1, title2, badge2)
	}
}

func TestPulseSeed_DifferentPulseIDsDifferentSeeds(t *testing.T) {
	a := pulseSeed("pulse-a")
	b := pulseSeed("pulse-b")
	if a.Uint64() == b.Uint64() {
		// Extremely unlikely for distinct FNV hashes; a collision here would
		// indicate the seed derivation ignores pulse_id.
		t.Error("expected different pulse_ids to yield different seeds")
	}
}

func TestPulseSeed_SamePulseIDSameSeed(t *testing.T) {
	a := pulseSeed("same-id")
	b := pulseSeed("same-id")
	if a.Uint64() != b.Uint64() || a.Uint64() != b.Uint64() {
		t.Error("expected pulseSeed to be a pure function of pulse_id")
	}
}
