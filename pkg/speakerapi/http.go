package speakerapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const maxErrorText = 256

// httpClient handles HTTP communication with the backend.
type httpClient struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
}

func newHTTPClient(cfg *clientConfig) *httpClient {
	return &httpClient{
		client:  cfg.httpClient,
		baseURL: strings.TrimRight(cfg.baseURL, "/"),
		logger:  cfg.logger,
	}
}

type formField struct {
	name  string
	value string
}

// filePart is the single binary part of a multipart upload.
type filePart struct {
	field       string
	filename    string
	contentType string
	body        io.Reader
}

// get performs a GET request and decodes the JSON body into result.
func (h *httpClient) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	h.setHeaders(req)
	req.Header.Set("Accept", "application/json")
	return h.do(req, result)
}

// upload posts fields followed by file as multipart/form-data. The body is
// streamed through a pipe.
func (h *httpClient) upload(ctx context.Context, path string, fields []formField, file filePart, result any) error {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		err := writeMultipart(writer, fields, file)
		pw.CloseWithError(err)
		errCh <- err
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("create request: %w", err)
	}
	h.setHeaders(req)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	if err := h.do(req, result); err != nil {
		return err
	}
	if writeErr := <-errCh; writeErr != nil {
		return writeErr
	}
	return nil
}

func writeMultipart(w *multipart.Writer, fields []formField, file filePart) error {
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("write field %s: %w", f.name, err)
		}
	}

	contentType := file.contentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.filename))
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file.body); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

func (h *httpClient) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "speakerid-go/1.0")
}

func (h *httpClient) do(req *http.Request, result any) error {
	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Debug("speakerapi: request failed",
			"method", req.Method, "path", req.URL.Path, "error", err)
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	h.logger.Debug("speakerapi: response",
		"method", req.Method, "path", req.URL.Path,
		"status", resp.StatusCode, "took", time.Since(start))
	return h.handleResponse(resp, result)
}

// handleResponse decodes a 2xx body into result, or turns anything else
// into *Error.
func (h *httpClient) handleResponse(resp *http.Response, result any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return h.parseError(body, resp.StatusCode)
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// parseError extracts a message from an error body. Besides the backend's
// own {"status","message"} shape it understands {"detail": ...} bodies.
func (h *httpClient) parseError(body []byte, httpStatus int) error {
	var apiResp struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &apiResp); err == nil {
		msg := apiResp.Message
		if msg == "" {
			msg = detailMessage(apiResp.Detail)
		}
		return &Error{
			HTTPStatus: httpStatus,
			Status:     apiResp.Status,
			Message:    msg,
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorText {
		text = text[:maxErrorText]
	}
	return &Error{
		HTTPStatus: httpStatus,
		Message:    text,
	}
}

// detailMessage flattens a "detail" value, which is either a string or a
// list of {"msg": ...} objects.
func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		var msgs []string
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
