package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pixelvault/vault/common/apperr"
	"github.com/pixelvault/vault/common/config"
	"github.com/pixelvault/vault/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func visionConfig(gatewayURL string) *config.Config {
	return &config.Config{
		Analysis: config.AnalysisConfig{
			GatewayURL: gatewayURL,
			APIKey:     "test-key",
			Model:      "test-model",
			Timeout:    5 * time.Second,
		},
	}
}

func TestNewGatewayVisionClient_NilWithoutKey(t *testing.T) {
	cfg := visionConfig("https://example.com")
	cfg.Analysis.APIKey = ""
	assert.Nil(t, NewGatewayVisionClient(cfg, logger.New("error", "text")))
}

func TestDescribe_SendsImageAndParsesChoice(t *testing.T) {
	var captured struct {
		auth  string
		model string
		body  map[string]interface{}
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.auth = r.Header.Get("Authorization")
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		captured.body = body
		captured.model, _ = body["model"].(string)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": `{"description": "A test", "tags": ["test"]}`}},
			},
		})
	}))
	defer ts.Close()

	client := NewGatewayVisionClient(visionConfig(ts.URL), logger.New("error", "text"))
	require.NotNil(t, client)

	raw, err := client.Describe(context.Background(), []byte{0x89, 0x50}, "image/png")
	require.NoError(t, err)
	assert.Contains(t, raw, "A test")

	assert.Equal(t, "Bearer test-key", captured.auth)
	assert.Equal(t, "test-model", captured.model)
}

func TestDescribe_UpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewGatewayVisionClient(visionConfig(ts.URL), logger.New("error", "text"))
	_, err := client.Describe(context.Background(), []byte("img"), "image/png")
	assert.True(t, apperr.IsKind(err, apperr.KindUpstream))
}

func TestDescribe_EmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": []}`))
	}))
	defer ts.Close()

	client := NewGatewayVisionClient(visionConfig(ts.URL), logger.New("error", "text"))
	_, err := client.Describe(context.Background(), []byte("img"), "image/png")
	assert.Error(t, err)
}
