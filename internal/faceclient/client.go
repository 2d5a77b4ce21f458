// Package faceclient calls the face recognition microservice. The matching
// algorithm itself is a black box behind two endpoints: template extraction
// for enrollment and probe-vs-template scoring for submissions.
package faceclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNoFace is returned when the service finds no usable face in an image.
var ErrNoFace = errors.New("no face detected in image")

// Client calls the face recognition microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	// Skip short-circuits every call with plausible mock results so the
	// stack runs without the service (dev, CI).
	Skip bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // face processing can take time
		},
	}
}

// Match scores a probe image against a stored reference template. The score
// is in [0,1] and comes back even for a negative decision; the caller applies
// its own confidence floor on top of the service's threshold.
func (c *Client) Match(ctx context.Context, probe, template []byte) (bool, float64, error) {
	if c.Skip {
		return true, 0.95, nil
	}
	if len(probe) == 0 {
		return false, 0, fmt.Errorf("probe image required")
	}

	body, _ := json.Marshal(map[string]string{
		"probe":    base64.StdEncoding.EncodeToString(probe),
		"template": base64.StdEncoding.EncodeToString(template),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/match", bytes.NewReader(body))
	if err != nil {
		return false, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, 0, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return false, 0, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Match bool    `json:"match"`
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Match, out.Score, nil
}

// ExtractTemplate generates a reference template from an enrollment photo.
// ErrNoFace is returned when the photo contains no detectable face.
func (c *Client) ExtractTemplate(ctx context.Context, image []byte) ([]byte, error) {
	if c.Skip {
		return []byte("mock-template"), nil
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("image required")
	}

	body, _ := json.Marshal(map[string]string{
		"image": base64.StdEncoding.EncodeToString(image),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/encode", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, ErrNoFace
	}
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Template string `json:"template"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Template == "" {
		return nil, ErrNoFace
	}
	template, err := base64.StdEncoding.DecodeString(out.Template)
	if err != nil {
		return nil, fmt.Errorf("failed to decode template: %w", err)
	}
	return template, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}

	return nil
}
