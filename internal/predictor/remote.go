package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/purchase-predictor/internal/features"
	"github.com/sells-group/purchase-predictor/internal/resilience"
)

// Remote scores matrices by POSTing them to a model-serving endpoint:
//
//	{"feature_names": ["..."], "instances": [[...], ...]}
//
// and expects {"predictions": [...]} with one value per instance.
type Remote struct {
	endpoint string
	client   *http.Client
	policy   resilience.Policy
}

type remoteRequest struct {
	FeatureNames []string    `json:"feature_names"`
	Instances    [][]float64 `json:"instances"`
}

type remoteResponse struct {
	Predictions []float64 `json:"predictions"`
}

// NewRemote returns a client for endpoint. Transient failures are retried
// up to attempts times in total.
func NewRemote(endpoint string, timeout time.Duration, attempts int) *Remote {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	policy := resilience.DefaultPolicy()
	policy.MaxAttempts = attempts
	policy.OnRetry = resilience.LogRetry("remote predict")
	return &Remote{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		policy:   policy,
	}
}

// Name implements Regressor.
func (r *Remote) Name() string { return "remote" }

// Predict implements Regressor.
func (r *Remote) Predict(ctx context.Context, m *features.Matrix) ([]float64, error) {
	if err := checkInput(m, nil, 0); err != nil {
		return nil, err
	}
	if m.Len() == 0 {
		return []float64{}, nil
	}

	body, err := json.Marshal(remoteRequest{FeatureNames: m.Columns, Instances: m.Rows})
	if err != nil {
		return nil, eris.Wrap(err, "predictor: marshal request")
	}

	preds, err := resilience.Do(ctx, r.policy, func(ctx context.Context) ([]float64, error) {
		return r.post(ctx, body)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "predictor: remote %s", r.endpoint)
	}
	if len(preds) != m.Len() {
		return nil, eris.Errorf("predictor: remote returned %d predictions for %d rows", len(preds), m.Len())
	}
	return preds, nil
}

func (r *Remote) post(ctx context.Context, body []byte) ([]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &resilience.StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "decode response")
	}
	return out.Predictions, nil
}
