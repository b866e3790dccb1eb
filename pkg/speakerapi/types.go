package speakerapi

import (
	"io"
	"sort"
)

// UnknownSpeaker is the prediction the backend returns when no enrolled
// speaker is a confident match.
const UnknownSpeaker = "Unknown"

// MaxRankedMatches caps PredictionResult.RankedMatches.
const MaxRankedMatches = 5

// EnrollRequest is one clip upload for POST /enroll.
type EnrollRequest struct {
	// Username the clip belongs to.
	Username string

	// ClipNumber is the 1-based clip index.
	ClipNumber int

	// Audio is the encoded clip.
	Audio io.Reader

	// Filename of the audio part. Default: "clip_<n>.webm".
	Filename string

	// ContentType of the audio part. Default: "application/octet-stream".
	ContentType string
}

// EnrollResult is the body of a successful POST /enroll.
type EnrollResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// PredictRequest is one clip submitted to POST /predict.
type PredictRequest struct {
	// Audio is the encoded clip.
	Audio io.Reader

	// Filename of the audio part. Default: "test_clip.webm".
	Filename string

	// ContentType of the audio part. Default: "application/octet-stream".
	ContentType string

	// Username pins the check to one enrolled user. Optional.
	Username string
}

// Match is one (username, similarity) pair.
type Match struct {
	Username   string  `json:"username"`
	Similarity float64 `json:"similarity"`
}

// PredictionResult is the normalized body of a successful POST /predict.
type PredictionResult struct {
	Status        string  `json:"status,omitempty"`
	PredictedUser string  `json:"prediction"`
	Confidence    float64 `json:"confidence"`
	Threshold     float64 `json:"threshold"`

	// RankedMatches is sorted by descending similarity and holds at most
	// MaxRankedMatches entries.
	RankedMatches []Match `json:"ranked_matches,omitempty"`

	Message string `json:"message,omitempty"`
}

// IsUnknown reports whether the backend found no confident match.
func (r *PredictionResult) IsUnknown() bool {
	return r.PredictedUser == UnknownSpeaker
}

// User is one entry of GET /enrolled-users.
type User struct {
	Username string `json:"username"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	APIVersion string `json:"api_version,omitempty"`
}

// predictResponse is the raw wire shape of POST /predict.
type predictResponse struct {
	Status          string             `json:"status"`
	Prediction      string             `json:"prediction"`
	Confidence      float64            `json:"confidence"`
	Threshold       float64            `json:"threshold"`
	TopMatches      []Match            `json:"top_matches"`
	AllSimilarities map[string]float64 `json:"all_similarities"`
	Message         string             `json:"message"`
}

func (p *predictResponse) result() *PredictionResult {
	user := p.Prediction
	if user == "" {
		user = UnknownSpeaker
	}
	return &PredictionResult{
		Status:        p.Status,
		PredictedUser: user,
		Confidence:    p.Confidence,
		Threshold:     p.Threshold,
		RankedMatches: RankMatches(p.TopMatches, p.AllSimilarities),
		Message:       p.Message,
	}
}

// RankMatches merges the two response shapes into one ranking. A non-empty
// list takes precedence over the map. The result is sorted by descending
// similarity, ties by username, and truncated to MaxRankedMatches.
func RankMatches(list []Match, scores map[string]float64) []Match {
	var out []Match
	switch {
	case len(list) > 0:
		out = make([]Match, len(list))
		copy(out, list)
	case len(scores) > 0:
		out = make([]Match, 0, len(scores))
		for name, sim := range scores {
			out = append(out, Match{Username: name, Similarity: sim})
		}
	default:
		return nil
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Username < out[j].Username
	})
	if len(out) > MaxRankedMatches {
		out = out[:MaxRankedMatches]
	}
	return out
}
