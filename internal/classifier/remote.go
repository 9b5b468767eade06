package classifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/aegiscore/api/schemas"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RemoteConfig configures a Remote classifier.
type RemoteConfig struct {
	Endpoint  string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
	Features  []string
}

type predictRequest struct {
	Features []string  `json:"features"`
	Values   []float64 `json:"values"`
}

type predictResponse struct {
	Label         string             `json:"label"`
	Probabilities map[string]float64 `json:"probabilities"`
	Error         string             `json:"error,omitempty"`
}

// Remote calls a model server over HTTP: POST {endpoint}/predict with the
// ordered feature names and values. Requests are rate limited client side.
type Remote struct {
	endpoint string
	features []string
	client   *http.Client
	limiter  *rate.Limiter
	log      *zap.Logger
}

// NewRemote creates a Remote classifier.
func NewRemote(cfg RemoteConfig, logger *zap.Logger) *Remote {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Remote{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		features: append([]string(nil), cfg.Features...),
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		log:      logger.Named("classifier"),
	}
}

// Predict implements schemas.Classifier.
func (r *Remote) Predict(ctx context.Context, vector schemas.FeatureVector) (schemas.Prediction, error) {
	if err := CheckFeatures(vector, r.features); err != nil {
		return schemas.Prediction{}, err
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return schemas.Prediction{}, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(predictRequest{Features: vector.Names(), Values: vector.Values()})
	if err != nil {
		return schemas.Prediction{}, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/predict", bytes.NewReader(body))
	if err != nil {
		return schemas.Prediction{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return schemas.Prediction{}, fmt.Errorf("model server request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return schemas.Prediction{}, fmt.Errorf("failed to read model response: %w", err)
	}
	var out predictResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return schemas.Prediction{}, fmt.Errorf("failed to decode model response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		r.log.Warn("Model server rejected prediction.", zap.Int("status", resp.StatusCode), zap.String("error", out.Error))
		return schemas.Prediction{}, fmt.Errorf("model server returned %d: %s", resp.StatusCode, out.Error)
	}

	label := out.Label
	if label == "" {
		label = argmax(out.Probabilities)
	}
	if label == "" {
		return schemas.Prediction{}, fmt.Errorf("model server returned no label")
	}
	return schemas.Prediction{Label: label, Probabilities: out.Probabilities}, nil
}
