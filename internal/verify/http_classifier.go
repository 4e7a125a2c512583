package verify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ClassifierError is a non-2xx reply from the classifier service.
type ClassifierError struct {
	StatusCode int
	Body       string
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classifier returned %d: %s", e.StatusCode, e.Body)
}

// HTTPClassifier calls a zero-shot scoring service over JSON.
//
//	POST {URL}  {"image": "<base64>", "labels": ["a bicycle", ...]}
//	200         {"scores": {"a bicycle": 0.41, ...}}
//	        or  [{"label": "a bicycle", "score": 0.41}, ...]
type HTTPClassifier struct {
	url    string
	client *http.Client
}

// NewHTTPClassifier returns a classifier for url. A nil client uses
// http.DefaultClient; deadlines come from the request context.
func NewHTTPClassifier(url string, client *http.Client) *HTTPClassifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClassifier{url: url, client: client}
}

type classifyRequest struct {
	Image  string   `json:"image"`
	Labels []string `json:"labels"`
}

func (c *HTTPClassifier) Score(ctx context.Context, image []byte, labels []string) (map[string]float64, error) {
	body, err := json.Marshal(classifyRequest{
		Image:  base64.StdEncoding.EncodeToString(image),
		Labels: labels,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build classifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call classifier: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read classifier response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ClassifierError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}
	return decodeScores(raw)
}

// Ping checks the service responds at all; used by the health endpoint.
func (c *HTTPClassifier) Ping(ctx context.Context) error {
	_, err := c.Score(ctx, nil, []string{"test"})
	return err
}

func decodeScores(raw []byte) (map[string]float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var list []Prediction
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode classifier scores: %w", err)
		}
		scores := make(map[string]float64, len(list))
		for _, p := range list {
			scores[p.Label] = p.Score
		}
		return scores, nil
	}

	var obj struct {
		Scores map[string]float64 `json:"scores"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode classifier scores: %w", err)
	}
	if obj.Scores == nil {
		return nil, fmt.Errorf("decode classifier scores: missing \"scores\"")
	}
	return obj.Scores, nil
}
