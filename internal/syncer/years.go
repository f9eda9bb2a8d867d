package syncer

import (
	"sort"
	"strconv"
	"strings"
)

// DefaultFinYear is synced when neither the caller nor the configuration
// names any financial year.
const DefaultFinYear = "2024-2025"

// ResolveYears picks the explicit years, else the configured ones, else
// DefaultFinYear. Entries are trimmed and de-duplicated, then ordered most
// recent first by start year. Years without a numeric start sort last.
func ResolveYears(explicit, configured []string) []string {
	years := cleanList(explicit)
	if len(years) == 0 {
		years = cleanList(configured)
	}
	if len(years) == 0 {
		return []string{DefaultFinYear}
	}

	sort.SliceStable(years, func(i, j int) bool {
		return startYear(years[i]) > startYear(years[j])
	})
	return years
}

// startYear parses "2024" from "2024-2025"; -1 when it is not numeric.
func startYear(finYear string) int {
	head, _, _ := strings.Cut(finYear, "-")
	n, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return -1
	}
	return n
}

// cleanList trims entries and drops blanks and duplicates, keeping order.
func cleanList(values []string) []string {
	var out []string
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
