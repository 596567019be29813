// Package autocrawl plans and executes deficit-driven crawl rounds: it
// tracks how many documents each month bucket holds per source, rotates
// over underfilled buckets, budgets video API quota, and cools down
// bucket/source pairs that stopped yielding.
package autocrawl

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const stateVersion = 1

// stateFileName lives next to the per-source logs under output.root.
const stateFileName = "_auto_state.json"

// Quota is the daily video-API budget. used_today resets whenever the
// period start drifts from "today UTC".
type Quota struct {
	DailyQuota     int    `json:"daily_quota"`
	ReserveQuota   int    `json:"reserve_quota"`
	UsedToday      int    `json:"used_today"`
	PeriodStartUTC string `json:"period_start_utc"`
}

// AutoState is the persistent planner state.
type AutoState struct {
	Version        int                       `json:"version"`
	Counts         map[string]map[string]int `json:"counts"`
	StoredBySource map[string]int            `json:"stored_by_source"`
	YouTube        Quota                     `json:"youtube"`
	YouTubeCursor  int                       `json:"youtube_kw_cursor"`
	Cooldowns      map[string]map[string]int `json:"cooldowns"`
	BucketCursor   int                       `json:"bucket_cursor"`
	ForumCursors   map[string]int            `json:"forum_cursors"`
	LastUpdated    string                    `json:"last_updated"`

	mu sync.Mutex
}

func newState(daily, reserve int) *AutoState {
	return &AutoState{
		Version:        stateVersion,
		Counts:         make(map[string]map[string]int),
		StoredBySource: make(map[string]int),
		YouTube: Quota{
			DailyQuota:   daily,
			ReserveQuota: reserve,
		},
		Cooldowns:    make(map[string]map[string]int),
		ForumCursors: make(map[string]int),
	}
}

// LoadState reads the state file under root. A missing or corrupt file
// yields a fresh state with the given quota defaults; corruption is
// logged, never fatal.
func LoadState(root string, daily, reserve int, logger *slog.Logger) *AutoState {
	path := filepath.Join(root, stateFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("auto state unreadable, starting fresh", "path", path, "error", err)
		}
		return newState(daily, reserve)
	}

	st := newState(daily, reserve)
	if err := json.Unmarshal(raw, st); err != nil {
		logger.Warn("auto state corrupt, starting fresh", "path", path, "error", err)
		return newState(daily, reserve)
	}
	if st.Counts == nil {
		st.Counts = make(map[string]map[string]int)
	}
	if st.StoredBySource == nil {
		st.StoredBySource = make(map[string]int)
	}
	if st.Cooldowns == nil {
		st.Cooldowns = make(map[string]map[string]int)
	}
	if st.ForumCursors == nil {
		st.ForumCursors = make(map[string]int)
	}
	if st.YouTube.DailyQuota == 0 {
		st.YouTube.DailyQuota = daily
		st.YouTube.ReserveQuota = reserve
	}
	st.Version = stateVersion
	return st
}

// Save writes the state atomically (tmp file then rename).
func (s *AutoState) Save(root string) error {
	s.mu.Lock()
	s.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	raw, err := json.MarshalIndent(s, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal auto state: %w", err)
	}

	path := filepath.Join(root, stateFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write auto state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename auto state: %w", err)
	}
	return nil
}

// RecordStored bumps the month/source count and the cumulative total.
func (s *AutoState) RecordStored(bucket, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Counts[bucket] == nil {
		s.Counts[bucket] = make(map[string]int)
	}
	s.Counts[bucket][source]++
	s.StoredBySource[source]++
}

// TickCooldowns decrements every cooldown, deleting exhausted entries.
// Called once per round before planning. An entry set to k blocks
// exactly the next k planning calls: it still blocks at zero and is
// removed on the tick after that.
func (s *AutoState) TickCooldowns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for bucket, bySource := range s.Cooldowns {
		for source, left := range bySource {
			left--
			if left < 0 {
				delete(bySource, source)
			} else {
				bySource[source] = left
			}
		}
		if len(bySource) == 0 {
			delete(s.Cooldowns, bucket)
		}
	}
}

// InCooldown reports whether (bucket, source) is currently parked.
func (s *AutoState) InCooldown(bucket, source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, parked := s.Cooldowns[bucket][source]
	return parked
}

// SetCooldown parks (bucket, source) for at least rounds rounds; an
// existing longer cooldown is kept.
func (s *AutoState) SetCooldown(bucket, source string, rounds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Cooldowns[bucket] == nil {
		s.Cooldowns[bucket] = make(map[string]int)
	}
	if rounds > s.Cooldowns[bucket][source] {
		s.Cooldowns[bucket][source] = rounds
	}
}

// ensureDay rolls used_today over when the UTC day has changed.
// Caller holds s.mu.
func (s *AutoState) ensureDay(now time.Time) {
	today := now.UTC().Format("2006-01-02")
	if s.YouTube.PeriodStartUTC != today {
		s.YouTube.PeriodStartUTC = today
		s.YouTube.UsedToday = 0
	}
}

// QuotaAvailable returns the remaining spendable units for today:
// daily minus reserve minus used.
func (s *AutoState) QuotaAvailable(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureDay(now)
	avail := s.YouTube.DailyQuota - s.YouTube.ReserveQuota - s.YouTube.UsedToday
	if avail < 0 {
		return 0
	}
	return avail
}

// ConsumeQuota atomically spends units if available. Returns whether
// the spend happened.
func (s *AutoState) ConsumeQuota(now time.Time, units int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureDay(now)
	if s.YouTube.UsedToday+units > s.YouTube.DailyQuota-s.YouTube.ReserveQuota {
		return false
	}
	s.YouTube.UsedToday += units
	return true
}

// AdvanceForumCursors records next start pages from a sub-run.
func (s *AutoState) AdvanceForumCursors(lastPages map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for board, page := range lastPages {
		if page+1 > s.ForumCursors[board] {
			s.ForumCursors[board] = page + 1
		}
	}
}

// ForumCursorSnapshot copies the cursors for a sub-run.
func (s *AutoState) ForumCursorSnapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.ForumCursors))
	for k, v := range s.ForumCursors {
		out[k] = v
	}
	return out
}

// MonthBucket formats a time as its YYYY-MM bucket key.
func MonthBucket(t time.Time) string {
	return t.UTC().Format("2006-01")
}
