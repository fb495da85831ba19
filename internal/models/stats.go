package models

import (
	"time"

	"github.com/google/uuid"
)

// dailyWindow is how many calendar days of per-day buckets are retained.
const dailyWindow = 30

const dayLayout = "2006-01-02"

// DayBucket aggregates one calendar day of studying.
type DayBucket struct {
	Date     string         `json:"date"` // YYYY-MM-DD
	Seconds  int            `json:"seconds"`
	Sessions int            `json:"sessions"`
	Subjects map[string]int `json:"subjects"` // subject -> seconds
}

// UserStats is the per-user aggregate updated every time a session ends.
// It is stored as a single row so the update can be done under one lock.
type UserStats struct {
	UserID        uuid.UUID   `json:"user_id"`
	TotalSeconds  int         `json:"total_seconds"`
	TotalSessions int         `json:"total_sessions"`
	Subjects      []string    `json:"subjects"`
	Daily         []DayBucket `json:"daily"`
	CurrentStreak int         `json:"current_streak"`
	HighestStreak int         `json:"highest_streak"`
	LastStudyDate string      `json:"last_study_date"` // YYYY-MM-DD, empty if never studied
	UpdatedAt     time.Time   `json:"updated_at"`
}

// DayKey formats a timestamp as the calendar-day key used by streaks and
// daily buckets.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// ApplySession folds one finished session into the aggregate: totals, the
// studied-subjects set, the rolling daily buckets, and the streak. today is
// a DayKey value for the day the session ended.
func (s *UserStats) ApplySession(rec *StudySessionRecord, today string) {
	s.TotalSeconds += rec.ActualTime
	s.TotalSessions++

	if !containsSubject(s.Subjects, rec.Subject) {
		s.Subjects = append(s.Subjects, rec.Subject)
	}

	bucket := s.bucketFor(today)
	bucket.Seconds += rec.ActualTime
	bucket.Sessions++
	bucket.Subjects[rec.Subject] += rec.ActualTime
	s.trimDaily(today)

	switch s.LastStudyDate {
	case today:
		// Already counted for today.
	case yesterdayOf(today):
		s.CurrentStreak++
	default:
		s.CurrentStreak = 1
	}
	s.LastStudyDate = today

	if s.CurrentStreak > s.HighestStreak {
		s.HighestStreak = s.CurrentStreak
	}
}

func (s *UserStats) bucketFor(day string) *DayBucket {
	for i := range s.Daily {
		if s.Daily[i].Date == day {
			if s.Daily[i].Subjects == nil {
				s.Daily[i].Subjects = make(map[string]int)
			}
			return &s.Daily[i]
		}
	}
	s.Daily = append(s.Daily, DayBucket{Date: day, Subjects: make(map[string]int)})
	return &s.Daily[len(s.Daily)-1]
}

// trimDaily drops buckets older than the rolling window relative to today.
func (s *UserStats) trimDaily(today string) {
	cutoffTime, err := time.Parse(dayLayout, today)
	if err != nil {
		return
	}
	cutoff := cutoffTime.AddDate(0, 0, -(dailyWindow - 1)).Format(dayLayout)

	kept := s.Daily[:0]
	for _, b := range s.Daily {
		if b.Date >= cutoff {
			kept = append(kept, b)
		}
	}
	s.Daily = kept
}

func yesterdayOf(day string) string {
	t, err := time.Parse(dayLayout, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(dayLayout)
}

func containsSubject(subjects []string, subject string) bool {
	for _, s := range subjects {
		if s == subject {
			return true
		}
	}
	return false
}
