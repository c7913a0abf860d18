package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/presencesync/agent/internal/config"
	"github.com/presencesync/agent/internal/models"
)

// ErrUnconfirmed marks a submission the verification service did not
// confirm: network failure, non-2xx status, timeout, or an unparseable
// verdict. Unconfirmed records stay pending and are retried later.
var ErrUnconfirmed = errors.New("submission unconfirmed by verification service")

// Verifier submits one capture record for remote verification
type Verifier interface {
	Verify(ctx context.Context, record *models.CaptureRecord) (*models.VerificationResult, error)
}

// VerificationClient submits capture records to the remote verification
// endpoint as multipart requests
type VerificationClient struct {
	endpointURL  string
	apiKey       string
	apiKeyHeader string
	httpClient   *http.Client
}

// NewVerificationClient creates a new VerificationClient
func NewVerificationClient(cfg config.Verification) (*VerificationClient, error) {
	if cfg.EndpointURL == "" {
		return nil, fmt.Errorf("verification endpoint url is required")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}

	// Client-credentials bearer auth when the endpoint wants OAuth2;
	// the token source caches and refreshes tokens itself
	if cfg.UseOAuth() {
		cc := clientcredentials.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthSecret,
			TokenURL:     cfg.OAuthTokenURL,
			Scopes:       cfg.OAuthScopes,
		}
		httpClient = cc.Client(context.Background())
		httpClient.Timeout = timeout
	}

	return &VerificationClient{
		endpointURL:  cfg.EndpointURL,
		apiKey:       cfg.APIKey,
		apiKeyHeader: cfg.APIKeyHeader,
		httpClient:   httpClient,
	}, nil
}

// Verify submits the record's photo, optional coordinates, device id and
// session id. Any confirmed verdict (approved, flagged, rejected) is a
// success from the transport's point of view; everything else wraps
// ErrUnconfirmed.
func (c *VerificationClient) Verify(ctx context.Context, record *models.CaptureRecord) (*models.VerificationResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("photo", "capture.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to build submission: %w", err)
	}
	if _, err := part.Write(record.Photo); err != nil {
		return nil, fmt.Errorf("failed to build submission: %w", err)
	}

	fields := map[string]string{
		"sessionId":  record.SessionID,
		"deviceId":   record.DeviceID,
		"capturedAt": record.Timestamp.UTC().Format(time.RFC3339),
	}
	if record.HasCoordinates() {
		fields["latitude"] = strconv.FormatFloat(*record.Latitude, 'f', -1, 64)
		fields["longitude"] = strconv.FormatFloat(*record.Longitude, 'f', -1, 64)
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to build submission: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		header := c.apiKeyHeader
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnconfirmed, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUnconfirmed, resp.StatusCode)
	}

	var result models.VerificationResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnconfirmed, err)
	}
	if !result.Verdict.IsValid() {
		return nil, fmt.Errorf("%w: unknown verdict %q", ErrUnconfirmed, result.Verdict)
	}

	return &result, nil
}
