package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/maheshrc27/postflow-engine/internal/models"
)

const maxResponseBytes = 1 << 20

// apiClient performs the HTTP calls of one adapter and maps failures onto APIError and NetworkError.
type apiClient struct {
	platform models.Platform
	http     *http.Client
}

func newAPIClient(p models.Platform, client *http.Client) apiClient {
	if client == nil {
		client = http.DefaultClient
	}
	return apiClient{platform: p, http: client}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (c apiClient) do(req *http.Request, headers map[string]string, out any) (http.Header, error) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Platform: c.platform, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Platform: c.platform, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Platform: c.platform, StatusCode: resp.StatusCode, Diagnostic: diagnostic(body)}
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("error parsing %s response: %w", c.platform, err)
		}
	}
	return resp.Header, nil
}

func (c apiClient) get(ctx context.Context, rawURL string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	_, err = c.do(req, headers, out)
	return err
}

func (c apiClient) postJSON(ctx context.Context, rawURL string, headers map[string]string, payload, out any) (http.Header, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, headers, out)
}

func (c apiClient) postForm(ctx context.Context, rawURL string, headers map[string]string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err = c.do(req, headers, out)
	return err
}

func (c apiClient) sendRaw(ctx context.Context, method, rawURL string, headers map[string]string, contentType string, data []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	_, err = c.do(req, headers, out)
	return err
}

type filePart struct {
	field    string
	filename string
	mime     string
	data     []byte
}

func (c apiClient) postMultipart(ctx context.Context, rawURL string, headers map[string]string, fields map[string]string, file filePart, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("error writing form field: %w", err)
		}
	}

	h := make(map[string][]string)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.filename)}
	h["Content-Type"] = []string{file.mime}
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("error creating form file: %w", err)
	}
	if _, err := part.Write(file.data); err != nil {
		return fmt.Errorf("error writing form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("error closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, &buf)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	_, err = c.do(req, headers, out)
	return err
}
