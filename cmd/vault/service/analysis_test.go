package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pixelvault/vault/common/config"
	"github.com/pixelvault/vault/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVision returns scripted responses per call
type fakeVision struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeVision) Describe(ctx context.Context, imageData []byte, mimeType string) (string, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var resp string
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return resp, err
}

func testAnalysisConfig(attempts int) *config.Config {
	return &config.Config{
		Analysis: config.AnalysisConfig{
			MaxAttempts: attempts,
			BackoffBase: 1 * time.Millisecond,
		},
	}
}

func TestParseModelOutput_PlainJSON(t *testing.T) {
	result, err := ParseModelOutput(`{"description": "A red barn at sunset", "tags": ["barn", "sunset", "red"]}`)
	require.NoError(t, err)
	assert.Equal(t, "A red barn at sunset", result.Description)
	assert.Equal(t, []string{"barn", "sunset", "red"}, result.Tags)
}

func TestParseModelOutput_FencedJSON(t *testing.T) {
	raw := "```json\n{\"description\": \"A cat on a couch\", \"tags\": [\"cat\", \"couch\"]}\n```"
	result, err := ParseModelOutput(raw)
	require.NoError(t, err)
	assert.Equal(t, "A cat on a couch", result.Description)
	assert.Equal(t, []string{"cat", "couch"}, result.Tags)
}

func TestParseModelOutput_RepairedJSON(t *testing.T) {
	// Trailing comma and single quotes, typical almost-JSON model output
	raw := `{'description': 'A mountain lake', 'tags': ['mountain', 'lake',]}`
	result, err := ParseModelOutput(raw)
	require.NoError(t, err)
	assert.Equal(t, "A mountain lake", result.Description)
	assert.Equal(t, []string{"mountain", "lake"}, result.Tags)
}

func TestParseModelOutput_LineRecovery(t *testing.T) {
	raw := "Description: A dog playing fetch\nTags: dog, fetch, park"
	result, err := ParseModelOutput(raw)
	require.NoError(t, err)
	assert.Equal(t, "A dog playing fetch", result.Description)
	assert.Equal(t, []string{"dog", "fetch", "park"}, result.Tags)
}

func TestParseModelOutput_FreeFormFirstLine(t *testing.T) {
	result, err := ParseModelOutput("A city skyline at night.\nSome other commentary.")
	require.NoError(t, err)
	assert.Equal(t, "A city skyline at night.", result.Description)
	assert.Empty(t, result.Tags)
}

func TestParseModelOutput_Empty(t *testing.T) {
	_, err := ParseModelOutput("")
	assert.Error(t, err)
}

func TestNormalizeTags(t *testing.T) {
	tags := []string{" Sunset ", "SUNSET", "beach!", "  ", "two  words", "beach"}
	got := NormalizeTags(tags, 12)
	assert.Equal(t, []string{"sunset", "beach", "two words"}, got)
}

func TestNormalizeTags_Idempotent(t *testing.T) {
	tags := []string{"Hello World!", "FOO_bar", "x", "hello world"}
	once := NormalizeTags(tags, 12)
	twice := NormalizeTags(once, 12)
	assert.Equal(t, once, twice)
}

func TestNormalizeTags_Cap(t *testing.T) {
	var tags []string
	for i := 0; i < 30; i++ {
		tags = append(tags, string(rune('a'+i)))
	}
	got := NormalizeTags(tags, 12)
	assert.Len(t, got, 12)
}

func TestAnalyze_UsesVisionResult(t *testing.T) {
	vision := &fakeVision{
		responses: []string{`{"description": "A forest trail", "tags": ["forest", "trail"]}`},
	}
	svc := NewAnalysisService(vision, testAnalysisConfig(1), logger.New("error", "text"))

	result, err := svc.Analyze(context.Background(), []byte("not-an-image"), FileMeta{
		FileName: "trail.jpg", MimeType: "image/jpeg", Size: 1234,
	})
	require.NoError(t, err)
	assert.Equal(t, "A forest trail", result.Description)
	assert.Equal(t, 1, vision.calls)
}

func TestAnalyze_FallsBackWhenVisionFails(t *testing.T) {
	vision := &fakeVision{errs: []error{errors.New("gateway down"), errors.New("gateway down")}}
	svc := NewAnalysisService(vision, testAnalysisConfig(2), logger.New("error", "text"))

	result, err := svc.Analyze(context.Background(), []byte("not-an-image"), FileMeta{
		FileName: "vacation-beach.jpg", MimeType: "image/jpeg", Size: 50 * 1024,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, vision.calls)
	assert.NotEmpty(t, result.Description)
	assert.Contains(t, result.Tags, "vacation")
	assert.Contains(t, result.Tags, "beach")
}

func TestAnalyze_FallsBackOnGarbageOutput(t *testing.T) {
	// The model responded but with nothing recoverable
	vision := &fakeVision{responses: []string{"   "}}
	svc := NewAnalysisService(vision, testAnalysisConfig(1), logger.New("error", "text"))

	result, err := svc.Analyze(context.Background(), []byte("payload"), FileMeta{
		FileName: "x.png", MimeType: "image/png", Size: 10,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Description)
	assert.NotEmpty(t, result.Tags)
}

func TestAnalyze_NilVisionUsesHeuristic(t *testing.T) {
	svc := NewAnalysisService(nil, testAnalysisConfig(1), logger.New("error", "text"))

	result, err := svc.Analyze(context.Background(), []byte("payload"), FileMeta{
		FileName: "garden.png", MimeType: "image/png", Size: 10,
	})
	require.NoError(t, err)
	assert.Contains(t, result.Tags, "garden")
}
