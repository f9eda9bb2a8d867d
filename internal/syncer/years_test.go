package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveYears(t *testing.T) {
	tests := []struct {
		name       string
		explicit   []string
		configured []string
		want       []string
	}{
		{"default", nil, nil, []string{DefaultFinYear}},
		{"configured", nil, []string{"2022-2023", "2023-2024"}, []string{"2023-2024", "2022-2023"}},
		{"explicit wins", []string{"2021-2022"}, []string{"2023-2024"}, []string{"2021-2022"}},
		{"blank explicit falls back", []string{" ", ""}, []string{"2020-2021"}, []string{"2020-2021"}},
		{"trim and dedupe", []string{" 2023-2024", "2024-2025 ", "2023-2024"}, nil, []string{"2024-2025", "2023-2024"}},
		{"unparseable last", []string{"current", "2019-2020"}, nil, []string{"2019-2020", "current"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveYears(tt.explicit, tt.configured))
		})
	}
}

func TestStartYear(t *testing.T) {
	assert.Equal(t, 2024, startYear("2024-2025"))
	assert.Equal(t, 2024, startYear("2024"))
	assert.Equal(t, -1, startYear("FY24"))
}

func TestSummaryAddSkipsFailedPairCounts(t *testing.T) {
	s := &Summary{}
	s.add(PairResult{Pair: Pair{State: "A"}, Added: 2, Updated: 1})
	s.add(PairResult{Pair: Pair{State: "B"}, Added: 5, Err: assert.AnError})
	assert.Equal(t, int64(2), s.Added)
	assert.Equal(t, int64(1), s.Updated)
	assert.Equal(t, 2, s.Pairs)
	assert.Len(t, s.FailedPairs, 1)

	res := s.result()
	assert.Equal(t, int64(2), res.RecordsAdded)
	assert.Contains(t, res.Metadata, "failed_pairs")
}
