package speakerapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Enroll uploads one training clip for a user.
func (c *Client) Enroll(ctx context.Context, req *EnrollRequest) (*EnrollResult, error) {
	if req == nil || req.Audio == nil {
		return nil, errors.New("speakerapi: enroll: audio is required")
	}
	if req.ClipNumber < 1 {
		return nil, fmt.Errorf("speakerapi: enroll: invalid clip number %d", req.ClipNumber)
	}
	filename := req.Filename
	if filename == "" {
		filename = fmt.Sprintf("clip_%d.webm", req.ClipNumber)
	}

	fields := []formField{
		{"username", req.Username},
		{"clip_number", strconv.Itoa(req.ClipNumber)},
	}
	file := filePart{
		field:       "audio",
		filename:    filename,
		contentType: req.ContentType,
		body:        req.Audio,
	}

	var result EnrollResult
	if err := c.http.upload(ctx, "/enroll", fields, file, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Predict submits a clip for recognition. The returned RankedMatches are
// already normalized.
func (c *Client) Predict(ctx context.Context, req *PredictRequest) (*PredictionResult, error) {
	if req == nil || req.Audio == nil {
		return nil, errors.New("speakerapi: predict: audio is required")
	}
	filename := req.Filename
	if filename == "" {
		filename = "test_clip.webm"
	}

	var fields []formField
	if req.Username != "" {
		fields = append(fields, formField{"username", req.Username})
	}
	file := filePart{
		field:       "audio",
		filename:    filename,
		contentType: req.ContentType,
		body:        req.Audio,
	}

	var raw predictResponse
	if err := c.http.upload(ctx, "/predict", fields, file, &raw); err != nil {
		return nil, err
	}
	return raw.result(), nil
}

// ListEnrolledUsers returns every user the backend has enrolled.
func (c *Client) ListEnrolledUsers(ctx context.Context) ([]User, error) {
	var resp struct {
		Users []User `json:"users"`
	}
	if err := c.http.get(ctx, "/enrolled-users", &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// Health queries the backend health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var resp HealthStatus
	if err := c.http.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
