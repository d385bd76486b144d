package search

import (
	"fmt"
	"strings"
)

// TimeRange restricts results to a recent window.
type TimeRange string

const (
	TimeRangeNone  TimeRange = ""
	TimeRangeDay   TimeRange = "day"
	TimeRangeWeek  TimeRange = "week"
	TimeRangeMonth TimeRange = "month"
	TimeRangeYear  TimeRange = "year"
)

// Valid reports whether the range is one the search engines understand.
func (t TimeRange) Valid() bool {
	switch t {
	case TimeRangeDay, TimeRangeWeek, TimeRangeMonth, TimeRangeYear:
		return true
	default:
		return false
	}
}

// ParseTimeRange normalises user input; unknown values map to TimeRangeNone.
func ParseTimeRange(s string) TimeRange {
	t := TimeRange(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t
	}
	return TimeRangeNone
}

// SearchResult is a single ranked link. URL is the identity key.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// String renders the result the way it is fed into prompts.
func (r SearchResult) String() string {
	return fmt.Sprintf("Title: %s\nURL: %s\nSummary: %s", r.Title, r.URL, r.Content)
}

// SearchResponse is what a single query yields.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Images  []string       `json:"images"`
}

// Dedupe keeps the first occurrence of every url, preserving order.
func Dedupe(results []SearchResult) []SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, r)
	}
	return out
}
