package recognition

import (
	"fmt"

	"github.com/haivivi/speakerid/pkg/speakerapi"
)

// Row is one line of the ranked-match table.
type Row struct {
	Rank           int     `json:"rank"`
	Username       string  `json:"username"`
	Similarity     float64 `json:"similarity"`
	AboveThreshold bool    `json:"above_threshold"`
}

// Rows lays out the ranked matches of p, flagging the entries at or above
// the threshold.
func Rows(p *speakerapi.PredictionResult) []Row {
	if p == nil {
		return nil
	}
	rows := make([]Row, len(p.RankedMatches))
	for i, m := range p.RankedMatches {
		rows[i] = Row{
			Rank:           i + 1,
			Username:       m.Username,
			Similarity:     m.Similarity,
			AboveThreshold: m.Similarity >= p.Threshold,
		}
	}
	return rows
}

// FormatConfidence renders a [0,1] score as a percentage with one decimal,
// e.g. 0.91 as "91.0%".
func FormatConfidence(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
