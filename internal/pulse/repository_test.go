package pulse

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/pulsekeeper/pulsekeeper/internal/domainerr"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestRepository_CreateStarted_AlreadyStartedOnConflict(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	mock.ExpectExec("INSERT INTO started_pulses").
		WithArgs("user-1", "pulse-1", "write report", pgxmock.AnyArg(), int64(1800), "", pgxmock.AnyArg(), false).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := repo.CreateStarted(context.Background(), StartedPulse{
		UserID: "user-1", PulseID: "pulse-1", Intent: "write report",
		StartTime: time.Now(), DurationSeconds: 1800,
	})
	if err != domainerr.ErrAlreadyStarted {
		t.Errorf("err = %v, want ErrAlreadyStarted", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepository_CreateStarted_Success(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	mock.ExpectExec("INSERT INTO started_pulses").
		WithArgs("user-1", "pulse-1", "write report", pgxmock.AnyArg(), int64(1800), "", pgxmock.AnyArg(), false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.CreateStarted(context.Background(), StartedPulse{
		UserID: "user-1", PulseID: "pulse-1", Intent: "write report",
		StartTime: time.Now(), DurationSeconds: 1800,
	})
	if err != nil {
		t.Errorf("CreateStarted: %v", err)
	}
}

func TestRepository_GetStarted_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	mock.ExpectQuery("SELECT user_id, pulse_id, intent, start_time, duration_seconds, intent_emotion, tags, is_public").
		WithArgs("user-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetStarted(context.Background(), "user-1")
	if err != domainerr.ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRepository_GetStarted_Success(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"user_id", "pulse_id", "intent", "start_time", "duration_seconds", "intent_emotion", "tags", "is_public"}).
		AddRow("user-1", "pulse-1", "write report", now, int64(1800), "", []string{}, false)
	mock.ExpectQuery("SELECT user_id, pulse_id, intent, start_time, duration_seconds, intent_emotion, tags, is_public").
		WithArgs("user-1").
		WillReturnRows(rows)

	got, err := repo.GetStarted(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetStarted: %v", err)
	}
	if got.PulseID != "pulse-1" {
		t.Errorf("PulseID = %q, want pulse-1", got.PulseID)
	}
}

func TestRepository_Stop_NotStarted(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	mock.ExpectQuery("DELETE FROM started_pulses").
		WithArgs("user-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Stop(context.Background(), "user-1", "went well", "accomplished", time.Now())
	if err != domainerr.ErrNotStarted {
		t.Errorf("err = %v, want ErrNotStarted", err)
	}
}

func TestRepository_Stop_ClampsActualDurationToPlanned(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	start := time.Now().UTC().Add(-2 * time.Hour)
	rows := pgxmock.NewRows([]string{"user_id", "pulse_id", "intent", "start_time", "duration_seconds", "intent_emotion", "tags", "is_public"}).
		AddRow("user-1", "pulse-1", "write report", start, int64(1800), "", []string{}, false)
	mock.ExpectQuery("DELETE FROM started_pulses").
		WithArgs("user-1").
		WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO stopped_pulses").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	stopped, err := repo.Stop(context.Background(), "user-1", "went well", "accomplished", time.Now().UTC())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped.ActualDurationSeconds != 1800 {
		t.Errorf("ActualDurationSeconds = %d, want clamped to planned 1800", stopped.ActualDurationSeconds)
	}
}

func TestRepository_Archive_AlreadyArchivedOnConflict(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	mock.ExpectExec("INSERT INTO archived_pulses").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := repo.Archive(context.Background(), ArchivedPulse{PulseID: "pulse-1", UserID: "user-1"})
	if err != domainerr.ErrAlreadyArchived {
		t.Errorf("err = %v, want ErrAlreadyArchived", err)
	}
}

func TestRepository_ListArchived_ClampsLimit(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	rows := pgxmock.NewRows([]string{
		"pulse_id", "user_id", "intent", "start_time", "duration_seconds", "intent_emotion", "tags", "is_public",
		"reflection", "reflection_emotion", "stopped_at", "actual_duration_seconds", "archived_at",
		"gen_title", "gen_badge", "ai_enhanced", "ai_cost_cents", "ai_insights", "ai_selection_info", "triggered_rewards",
	})
	mock.ExpectQuery("FROM archived_pulses").
		WithArgs("user-1", int64(100)).
		WillReturnRows(rows)

	if _, err := repo.ListArchived(context.Background(), "user-1", 5000); err != nil {
		t.Fatalf("ListArchived: %v", err)
	}
}

func TestRepository_GetOrCreateUsageDay_RollsOverStaleMonth(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	rows := pgxmock.NewRows([]string{
		"user_id", "date", "month", "daily_cost_cents", "daily_ai_credits", "daily_pulses_enhanced",
		"monthly_cost_cents", "monthly_ai_credits", "user_tier", "streak_days", "achievements", "total_ai_enhancements",
	}).AddRow("user-1", "2026-07-31", "2026-06", Cents(0), Cents(0), int64(0), Cents(500000), Cents(0), TierFree, int64(0), []string{}, int64(0))
	mock.ExpectQuery("INSERT INTO usage_days").
		WithArgs("user-1", "2026-07-31", "2026-07", TierFree).
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE usage_days SET month").
		WithArgs("user-1", "2026-07-31", "2026-07").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	day, err := repo.GetOrCreateUsageDay(context.Background(), "user-1", "2026-07-31", "2026-07", TierFree)
	if err != nil {
		t.Fatalf("GetOrCreateUsageDay: %v", err)
	}
	if day.Month != "2026-07" {
		t.Errorf("Month = %q, want rolled over to 2026-07", day.Month)
	}
	if day.MonthlyCostCents != 0 {
		t.Errorf("MonthlyCostCents = %v, want reset to 0 after rollover", day.MonthlyCostCents)
	}
}
