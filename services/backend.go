package services

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
	"time"

	"github.com/intelsk/reid/models"
)

// Gateway is the part of the backend contract the stores depend on.
type Gateway interface {
	ProcessVideo(ctx context.Context, filename string, body io.Reader) (*models.ProcessingResult, error)
	AddTarget(ctx context.Context, kind models.Kind, data, name string) (string, error)
	SearchTargets(ctx context.Context, videoIDs, targetIDs []string) (models.SearchResponse, error)
	GetResults(ctx context.Context, videoID, targetID string) ([]models.Match, bool, error)
}

type BackendClient struct {
	baseURL    string
	mediaURL   string
	httpClient *http.Client
}

var _ Gateway = (*BackendClient)(nil)

func NewBackendClient(baseURL, mediaURL string, timeout time.Duration) *BackendClient {
	return &BackendClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		mediaURL: strings.TrimRight(mediaURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout, // detection runs over every 5th frame, uploads can take minutes
		},
	}
}

// MediaURL resolves a frame path reported by the backend against the media
// root. The path is not validated.
func (c *BackendClient) MediaURL(framePath string) string {
	return c.mediaURL + "/" + framePath
}

func (c *BackendClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

func (c *BackendClient) WaitForReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := c.HealthCheck(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return fmt.Errorf("backend not ready after %s", timeout)
}

func (c *BackendClient) ProcessVideo(ctx context.Context, filename string, body io.Reader) (*models.ProcessingResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("video", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, body); err != nil {
		return nil, fmt.Errorf("buffering upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var result models.ProcessingResult
	if err := c.do(ctx, "process_video", http.MethodPost, "/process-video", mw.FormDataContentType(), &buf, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *BackendClient) AddTarget(ctx context.Context, kind models.Kind, data, name string) (string, error) {
	body, err := json.Marshal(models.AddTargetRequest{Type: string(kind), Data: data, Name: name})
	if err != nil {
		return "", err
	}
	var result models.AddTargetResponse
	if err := c.do(ctx, "add_target", http.MethodPost, "/add-target", "application/json", bytes.NewReader(body), &result); err != nil {
		return "", err
	}
	if result.TargetID == "" {
		return "", fmt.Errorf("add target: empty target_id in response")
	}
	return result.TargetID, nil
}

func (c *BackendClient) SearchTargets(ctx context.Context, videoIDs, targetIDs []string) (models.SearchResponse, error) {
	body, err := json.Marshal(models.SearchRequest{VideoIDs: videoIDs, TargetIDs: targetIDs})
	if err != nil {
		return nil, err
	}
	var result models.SearchResponse
	if err := c.do(ctx, "search_targets", http.MethodPost, "/search-targets", "application/json", bytes.NewReader(body), &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetResults fetches the cached match list of one pair. The backend answers
// either with the list itself or with a {target_id: [...]} object; found is
// false when the pair is not reported at all.
func (c *BackendClient) GetResults(ctx context.Context, videoID, targetID string) ([]models.Match, bool, error) {
	path := "/get-results/" + url.PathEscape(videoID) + "/" + url.PathEscape(targetID)
	var raw json.RawMessage
	if err := c.do(ctx, "get_results", http.MethodGet, path, "", nil, &raw); err != nil {
		return nil, false, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var matches []models.Match
		if err := json.Unmarshal(trimmed, &matches); err != nil {
			return nil, false, fmt.Errorf("decoding get results response: %w", err)
		}
		return matches, true, nil
	}

	var byTarget map[string][]models.Match
	if err := json.Unmarshal(trimmed, &byTarget); err != nil {
		return nil, false, fmt.Errorf("decoding get results response: %w", err)
	}
	matches, ok := byTarget[targetID]
	return matches, ok, nil
}

// FetchFrame downloads a processed frame image from the media root.
func (c *BackendClient) FetchFrame(ctx context.Context, framePath string) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.MediaURL(framePath), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	observe("fetch_frame", start, status, err)
	if err != nil {
		return nil, fmt.Errorf("fetch frame request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &BackendError{Op: "fetch frame", Status: resp.StatusCode, Body: string(respBody)}
	}
	return io.ReadAll(resp.Body)
}

func (c *BackendClient) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observe(op, start, 0, err)
		return fmt.Errorf("%s request: %w", strings.ReplaceAll(op, "_", " "), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		observe(op, start, resp.StatusCode, nil)
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &BackendError{
			Op:     strings.ReplaceAll(op, "_", " "),
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(respBody)),
		}
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	observe(op, start, resp.StatusCode, err)
	if err != nil {
		return fmt.Errorf("decoding %s response: %w", strings.ReplaceAll(op, "_", " "), err)
	}
	return nil
}

func observe(op string, start time.Time, status int, err error) {
	BackendRequestsTotal.WithLabelValues(op, statusLabel(status, err)).Inc()
	BackendLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
