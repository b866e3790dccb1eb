// Package speakerapi is a client for the speaker-recognition backend.
//
// The backend exposes three operations over HTTP:
//
//	POST /enroll           multipart: username, clip_number, audio
//	POST /predict          multipart: audio, optional username
//	GET  /enrolled-users   {"users": [{"username": ...}]}
//
// plus GET /health. Each call is attempted exactly once; there is no retry.
//
// Predict responses come in two shapes, a pre-ranked "top_matches" list or an
// unordered "all_similarities" map. Both are normalized into
// PredictionResult.RankedMatches before they are returned.
//
// Example:
//
//	client := speakerapi.NewClient(speakerapi.WithBaseURL("http://localhost:5000"))
//	res, err := client.Predict(ctx, &speakerapi.PredictRequest{
//	    Audio:    bytes.NewReader(clip),
//	    Filename: "test_clip.webm",
//	})
package speakerapi
