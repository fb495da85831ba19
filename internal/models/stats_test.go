package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func record(subject string, seconds int) *StudySessionRecord {
	return &StudySessionRecord{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		Subject:    subject,
		ActualTime: seconds,
		TargetTime: 1800,
	}
}

func TestApplySession_Totals(t *testing.T) {
	stats := &UserStats{}

	stats.ApplySession(record("math", 600), "2026-08-28")
	stats.ApplySession(record("math", 300), "2026-08-28")

	if stats.TotalSeconds != 900 {
		t.Errorf("Expected 900 total seconds, got %d", stats.TotalSeconds)
	}
	if stats.TotalSessions != 2 {
		t.Errorf("Expected 2 sessions, got %d", stats.TotalSessions)
	}
}

func TestApplySession_SubjectSet(t *testing.T) {
	stats := &UserStats{}

	stats.ApplySession(record("math", 60), "2026-08-28")
	stats.ApplySession(record("physics", 60), "2026-08-28")
	stats.ApplySession(record("math", 60), "2026-08-28")

	if len(stats.Subjects) != 2 {
		t.Fatalf("Expected 2 distinct subjects, got %v", stats.Subjects)
	}
}

func TestApplySession_StreakIncrement(t *testing.T) {
	stats := &UserStats{
		CurrentStreak: 5,
		HighestStreak: 5,
		LastStudyDate: "2026-08-27",
	}

	stats.ApplySession(record("math", 600), "2026-08-28")

	if stats.CurrentStreak != 6 {
		t.Errorf("Expected streak 6 after studying the day after, got %d", stats.CurrentStreak)
	}
	if stats.HighestStreak != 6 {
		t.Errorf("Expected highest streak to follow to 6, got %d", stats.HighestStreak)
	}
}

func TestApplySession_StreakSameDayUnchanged(t *testing.T) {
	stats := &UserStats{
		CurrentStreak: 3,
		HighestStreak: 7,
		LastStudyDate: "2026-08-28",
	}

	stats.ApplySession(record("math", 600), "2026-08-28")

	if stats.CurrentStreak != 3 {
		t.Errorf("Expected same-day session to leave streak at 3, got %d", stats.CurrentStreak)
	}
	if stats.HighestStreak != 7 {
		t.Errorf("Expected highest streak unchanged at 7, got %d", stats.HighestStreak)
	}
}

func TestApplySession_StreakResetAfterGap(t *testing.T) {
	stats := &UserStats{
		CurrentStreak: 5,
		HighestStreak: 5,
		LastStudyDate: "2026-08-25",
	}

	stats.ApplySession(record("math", 600), "2026-08-28")

	if stats.CurrentStreak != 1 {
		t.Errorf("Expected streak reset to 1 after a 3-day gap, got %d", stats.CurrentStreak)
	}
	if stats.HighestStreak != 5 {
		t.Errorf("Expected highest streak to keep high-water mark 5, got %d", stats.HighestStreak)
	}
}

func TestApplySession_FirstEverSession(t *testing.T) {
	stats := &UserStats{}

	stats.ApplySession(record("math", 600), "2026-08-28")

	if stats.CurrentStreak != 1 {
		t.Errorf("Expected first session to start streak at 1, got %d", stats.CurrentStreak)
	}
	if stats.LastStudyDate != "2026-08-28" {
		t.Errorf("Expected last study date 2026-08-28, got %q", stats.LastStudyDate)
	}
}

func TestApplySession_DailyBuckets(t *testing.T) {
	stats := &UserStats{}

	stats.ApplySession(record("math", 600), "2026-08-28")
	stats.ApplySession(record("physics", 300), "2026-08-28")

	if len(stats.Daily) != 1 {
		t.Fatalf("Expected one bucket for a single day, got %d", len(stats.Daily))
	}

	bucket := stats.Daily[0]
	if bucket.Seconds != 900 || bucket.Sessions != 2 {
		t.Errorf("Expected 900s over 2 sessions, got %ds over %d", bucket.Seconds, bucket.Sessions)
	}
	if bucket.Subjects["math"] != 600 || bucket.Subjects["physics"] != 300 {
		t.Errorf("Unexpected per-subject breakdown: %v", bucket.Subjects)
	}
}

func TestApplySession_DailyWindowTrimmed(t *testing.T) {
	stats := &UserStats{}

	// 40 consecutive days of studying
	day := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		stats.ApplySession(record("math", 60), DayKey(day))
		day = day.AddDate(0, 0, 1)
	}

	if len(stats.Daily) != 30 {
		t.Fatalf("Expected rolling window of 30 buckets, got %d", len(stats.Daily))
	}
	if stats.CurrentStreak != 40 {
		t.Errorf("Expected 40-day streak, got %d", stats.CurrentStreak)
	}
	if stats.Daily[0].Date != "2026-07-11" {
		t.Errorf("Expected oldest retained bucket 2026-07-11, got %s", stats.Daily[0].Date)
	}
}

func TestDayKey_UTC(t *testing.T) {
	// Late evening in a western timezone is already the next day in UTC.
	loc := time.FixedZone("UTC-5", -5*3600)
	local := time.Date(2026, 8, 27, 23, 30, 0, 0, loc)

	if got := DayKey(local); got != "2026-08-28" {
		t.Errorf("Expected UTC day 2026-08-28, got %s", got)
	}
}
