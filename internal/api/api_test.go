package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/purchase-predictor/internal/model"
	"github.com/sells-group/purchase-predictor/internal/ranking"
	"github.com/sells-group/purchase-predictor/internal/scalar"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeRanker struct {
	ranked  []model.RankedService
	err     error
	loadErr error
	panics  bool
	rows    int
	gotK    int
}

func (f *fakeRanker) Ready() error {
	if f.loadErr != nil {
		return ranking.ErrNotReady
	}
	return nil
}

func (f *fakeRanker) LoadErr() error { return f.loadErr }

func (f *fakeRanker) Rows() int { return f.rows }

func (f *fakeRanker) Top(_ context.Context, k int) ([]model.RankedService, error) {
	f.gotK = k
	if f.panics {
		panic("predict exploded")
	}
	if f.loadErr != nil {
		return nil, ranking.ErrNotReady
	}
	return f.ranked, f.err
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestWelcome(t *testing.T) {
	for _, rk := range []*fakeRanker{{}, {loadErr: errors.New("model missing")}} {
		rr := serve(NewRouter(rk, Options{}), http.MethodGet, "/")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
		assert.Equal(t, WelcomeMessage, rr.Body.String())
	}
}

func TestMostPurchased(t *testing.T) {
	rk := &fakeRanker{ranked: []model.RankedService{
		{ServiceID: 7, Title: "Logo", Description: "Vector logo", BasePrice: 10, TotalReviews: 2, AverageStars: 4.5, Availability: scalar.Bool(true), PredictedPurchases: 12.5},
		{ServiceID: 3, Title: "Site", Description: "Landing", BasePrice: 99.9, TotalReviews: 0, AverageStars: 3, Availability: scalar.Int(1), PredictedPurchases: 4},
	}}

	rr := serve(NewRouter(rk, Options{}), http.MethodGet, "/most_purchased_services")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, ranking.DefaultTopK, rk.gotK)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, map[string]any{
		"Service ID":          7.0,
		"Title":               "Logo",
		"Description":         "Vector logo",
		"Base Price":          10.0,
		"Total Reviews":       2.0,
		"Average Stars":       4.5,
		"Availability":        true,
		"Predicted Purchases": 12.5,
	}, body[0])
	assert.Equal(t, 1.0, body[1]["Availability"])
}

func TestMostPurchased_EmptyIsArray(t *testing.T) {
	rr := serve(NewRouter(&fakeRanker{ranked: []model.RankedService{}}, Options{}), http.MethodGet, "/most_purchased_services")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestMostPurchased_TopKOption(t *testing.T) {
	rk := &fakeRanker{}
	serve(NewRouter(rk, Options{TopK: 3}), http.MethodGet, "/most_purchased_services")
	assert.Equal(t, 3, rk.gotK)
}

func TestMostPurchased_NotLoaded(t *testing.T) {
	rk := &fakeRanker{loadErr: errors.New("predictor: read random_forest_model.json: no such file")}

	rr := serve(NewRouter(rk, Options{}), http.MethodGet, "/most_purchased_services")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, ranking.ErrNotReady.Error(), body["error"])
}

func TestMostPurchased_PredictError(t *testing.T) {
	rk := &fakeRanker{err: errors.New("predictor: input contains NaN")}

	rr := serve(NewRouter(rk, Options{}), http.MethodGet, "/most_purchased_services")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"predictor: input contains NaN"}`, rr.Body.String())
}

func TestMostPurchased_PanicRecovered(t *testing.T) {
	rr := serve(NewRouter(&fakeRanker{panics: true}, Options{}), http.MethodGet, "/most_purchased_services")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rr.Body.String())
}

func TestHealth(t *testing.T) {
	rr := serve(NewRouter(&fakeRanker{rows: 3}, Options{}), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok","services":3}`, rr.Body.String())

	rr = serve(NewRouter(&fakeRanker{loadErr: errors.New("dataset: open x.csv")}, Options{}), http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":"degraded","error":"dataset: open x.csv","services":0}`, rr.Body.String())
}

func TestCORS_AnyOrigin(t *testing.T) {
	h := NewRouter(&fakeRanker{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/most_purchased_services", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	pre := httptest.NewRequest(http.MethodOptions, "/most_purchased_services", nil)
	pre.Header.Set("Origin", "https://other.example.org")
	pre.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, pre)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodGet)
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	h := NewRouter(&fakeRanker{}, Options{AllowedOrigins: []string{"https://shop.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	h := NewRouter(&fakeRanker{}, Options{})

	rr := serve(h, http.MethodGet, "/")
	assert.Len(t, rr.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	h := NewRouter(&fakeRanker{}, Options{RateLimit: 0.001, RateBurst: 2})

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/").Code)

	rr := serve(h, http.MethodGet, "/")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rr.Body.String())
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	h := NewRouter(&fakeRanker{err: errors.New("boom")}, Options{Metrics: m})

	serve(h, http.MethodGet, "/")
	serve(h, http.MethodGet, "/most_purchased_services")

	rr := serve(h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `predictor_http_requests_total{code="200",method="GET",route="/"} 1`)
	assert.Contains(t, body, `predictor_http_requests_total{code="500",method="GET",route="/most_purchased_services"} 1`)
	assert.Contains(t, body, "predictor_ranking_failures_total 1")
	assert.Contains(t, body, "predictor_ranking_duration_seconds_count 1")
}

func TestMetrics_UnmatchedRoutesShareOneSeries(t *testing.T) {
	m := NewMetrics()
	h := NewRouter(&fakeRanker{}, Options{Metrics: m})

	for i := 0; i < 50; i++ {
		rr := serve(h, http.MethodGet, fmt.Sprintf("/random-%d", i))
		require.Equal(t, http.StatusNotFound, rr.Code)
	}

	body := serve(h, http.MethodGet, "/metrics").Body.String()
	var series []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "predictor_http_requests_total{") && strings.Contains(line, `code="404"`) {
			series = append(series, line)
		}
	}
	require.Len(t, series, 1, "unknown paths must not mint new series")
	assert.Equal(t, `predictor_http_requests_total{code="404",method="GET",route="unmatched"} 50`, series[0])
	assert.NotContains(t, body, "random-")
}

func TestRequestLog_ClientAddr(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	zap.ReplaceGlobals(zap.New(core))
	defer zap.ReplaceGlobals(zap.NewNop())

	h := NewRouter(&fakeRanker{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "203.0.113.7", fields["remote_addr"])
	assert.Equal(t, "/", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
}

func TestMetrics_Disabled(t *testing.T) {
	rr := serve(NewRouter(&fakeRanker{}, Options{}), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUnknownRoute(t *testing.T) {
	rr := serve(NewRouter(&fakeRanker{}, Options{}), http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.False(t, strings.Contains(rr.Body.String(), "Welcome"))
}
