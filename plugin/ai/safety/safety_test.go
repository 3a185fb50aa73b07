package safety

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chatturn/store"
)

func TestHTTPChecker_Analyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contentsafety/text:analyze", r.URL.Path)
		assert.Equal(t, DefaultAPIVersion, r.URL.Query().Get("api-version"))
		assert.Equal(t, "key", r.Header.Get("Ocp-Apim-Subscription-Key"))

		var req analyzeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "some text", req.Text)

		_, _ = w.Write([]byte(`{
			"categoriesAnalysis": [{"category": "Hate", "severity": 2}, {"category": "Violence", "severity": 4}],
			"blocklistsMatch": [{"blocklistName": "words", "blocklistItemId": "1", "blocklistItemText": "badword"}]
		}`))
	}))
	defer server.Close()

	checker, err := NewHTTPChecker(Config{Endpoint: server.URL, Key: "key", RequestsPerSecond: 100})
	require.NoError(t, err)

	analysis, err := checker.Analyze(context.Background(), "some text")
	require.NoError(t, err)
	assert.Equal(t, 4, analysis.MaxSeverity())
	require.Len(t, analysis.BlocklistMatches, 1)
	assert.Equal(t, store.BlocklistMatch{BlocklistName: "words", BlocklistItemID: "1", BlocklistItemText: "badword"}, analysis.BlocklistMatches[0])
}

func TestHTTPChecker_Errors(t *testing.T) {
	_, err := NewHTTPChecker(Config{})
	assert.Error(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	checker, err := NewHTTPChecker(Config{Endpoint: server.URL, RequestsPerSecond: 100})
	require.NoError(t, err)
	_, err = checker.Analyze(context.Background(), "x")
	assert.Error(t, err)
}

func TestAnalysis_MaxSeverityEmpty(t *testing.T) {
	assert.Equal(t, 0, (&Analysis{}).MaxSeverity())
}
