// Package remote talks to the summarize and generate-prompt services.
package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agusx1211/contextpack/internal/logging"
	"github.com/agusx1211/contextpack/internal/metrics"
)

const (
	summarizePath = "/api/summarize"
	generatePath  = "/api/generate-prompt"

	// DefaultSummaryLimit is the sentence limit sent with summarize requests.
	DefaultSummaryLimit = 5

	defaultRequestTimeout = 60 * time.Second
)

// ErrServiceFailed wraps every failure of a remote call.
var ErrServiceFailed = errors.New("remote service failed")

// ServiceError is a non-success answer from a service.
type ServiceError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %d - %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return ErrServiceFailed
}

// Client calls the remote services under one base URL.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient returns a client for baseURL. token, when set, is sent as a
// bearer token.
func NewClient(baseURL, token string) *Client {
	return newClient(baseURL, token, defaultRequestTimeout)
}

// newClient bounds summarize calls and the wait for response headers by
// timeout. A generate-prompt stream is only bounded by its context once
// headers arrive.
func newClient(baseURL, token string, timeout time.Duration) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		timeout:    timeout,
		httpClient: &http.Client{Transport: transport},
	}
}

// CloseIdleConnections releases kept-alive connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// SummarizeRequest is the body of a summarize call.
type SummarizeRequest struct {
	Text  string `json:"text"`
	Limit int    `json:"limit"`
}

// Summary is the answer of a summarize call.
type Summary struct {
	Summary        string `json:"summary"`
	OriginalLength int    `json:"original_length"`
	SummaryLength  int    `json:"summary_length"`
}

// Content renders the summary as replacement file content.
func (s Summary) Content() string {
	return fmt.Sprintf("[SUMMARIZED]\n%s\n[Original: %d chars → %d chars]", s.Summary, s.OriginalLength, s.SummaryLength)
}

// Summarize asks the service to condense text to at most limit sentences.
func (c *Client) Summarize(ctx context.Context, text string, limit int) (Summary, error) {
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.post(ctx, summarizePath, SummarizeRequest{Text: text, Limit: limit})
	if err != nil {
		metrics.RecordRemote("summarize", false)
		return Summary{}, err
	}
	defer resp.Body.Close()

	var out Summary
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.RecordRemote("summarize", false)
		return Summary{}, &ServiceError{Endpoint: summarizePath, Message: fmt.Sprintf("invalid response: %v", err)}
	}
	metrics.RecordRemote("summarize", true)
	return out, nil
}

// GenerateRequest is the body of a generate-prompt call.
type GenerateRequest struct {
	Input string `json:"input"`
}

// streamChunk is one server-sent event of the generate-prompt stream.
type streamChunk struct {
	Text  string `json:"text"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

// GeneratePrompt streams a generated prompt for input, calling onDelta with
// every text chunk as it arrives. It returns the full text once the service
// signals completion. An error chunk aborts the stream.
func (c *Client) GeneratePrompt(ctx context.Context, input string, onDelta func(delta string)) (string, error) {
	resp, err := c.post(ctx, generatePath, GenerateRequest{Input: input})
	if err != nil {
		metrics.RecordRemote("generate", false)
		return "", err
	}
	defer resp.Body.Close()

	text, err := readStream(ctx, resp.Body, onDelta)
	metrics.RecordRemote("generate", err == nil)
	return text, err
}

func readStream(ctx context.Context, r io.Reader, onDelta func(string)) (string, error) {
	log := logging.Named("remote")
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var full strings.Builder
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "" {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.Debug("skipping malformed chunk", logging.String("data", data))
			continue
		}
		if chunk.Error != "" {
			return "", &ServiceError{Endpoint: generatePath, Message: chunk.Error}
		}
		if chunk.Text != "" {
			full.WriteString(chunk.Text)
			if onDelta != nil {
				onDelta(chunk.Text)
			}
		}
		if chunk.Done {
			return full.String(), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: failed to read stream: %v", ErrServiceFailed, err)
	}
	return "", &ServiceError{Endpoint: generatePath, Message: "stream ended before completion"}
}

func (c *Client) post(ctx context.Context, endpoint string, body any) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: no service url configured", ErrServiceFailed)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logging.Named("remote").Debug("POST", logging.String("url", c.baseURL+endpoint))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ServiceError{Endpoint: endpoint, Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	return resp, nil
}

// errorMessage extracts {"error": "..."} bodies and falls back to the raw
// text.
func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
