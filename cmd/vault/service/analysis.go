package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/pixelvault/vault/common/config"
	"github.com/pixelvault/vault/common/logger"
)

// Analysis is the structured result of analyzing one image
type Analysis struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// FileMeta carries the file attributes the fallback heuristic works from
type FileMeta struct {
	FileName string
	MimeType string
	Size     int64
}

// Analyzer converts image bytes into a description and searchable tags
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, meta FileMeta) (*Analysis, error)
}

// maxTags caps normalized model output; the fallback heuristic may emit
// up to fallbackMaxTags before normalization.
const maxTags = 12

// AnalysisService is an explicit two-strategy composite: the external
// vision call is the primary strategy, the local heuristic the fallback.
// Primary failure is logged and absorbed, never surfaced; only a failure
// of the fallback itself propagates.
type AnalysisService struct {
	vision      VisionCaller
	maxAttempts int
	backoffBase time.Duration
	log         *logger.Logger
}

// NewAnalysisService creates the analysis composite. vision may be nil,
// in which case every call uses the fallback heuristic.
func NewAnalysisService(vision VisionCaller, cfg *config.Config, log *logger.Logger) *AnalysisService {
	attempts := cfg.Analysis.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &AnalysisService{
		vision:      vision,
		maxAttempts: attempts,
		backoffBase: cfg.Analysis.BackoffBase,
		log:         log,
	}
}

// Analyze runs the primary strategy with bounded retries, then the
// fallback. The caller always receives a usable result unless the
// fallback itself cannot produce one.
func (s *AnalysisService) Analyze(ctx context.Context, data []byte, meta FileMeta) (*Analysis, error) {
	if s.vision != nil {
		result, err := s.analyzeWithVision(ctx, data, meta)
		if err == nil {
			return result, nil
		}
		// Absorbed: the fallback guarantees the pipeline still terminates
		// with usable metadata.
		s.log.Warn("vision analysis failed, falling back to local heuristic",
			"file_name", meta.FileName,
			"error", err)
	}

	return FallbackAnalysis(data, meta)
}

func (s *AnalysisService) analyzeWithVision(ctx context.Context, data []byte, meta FileMeta) (*Analysis, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		raw, err := s.vision.Describe(ctx, data, meta.MimeType)
		if err == nil {
			result, perr := ParseModelOutput(raw)
			if perr == nil {
				return result, nil
			}
			err = perr
		}
		lastErr = err

		if attempt < s.maxAttempts {
			backoff := s.backoffBase * time.Duration(1<<attempt)
			s.log.Debug("vision attempt failed, backing off",
				"attempt", attempt,
				"backoff", backoff,
				"error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("vision analysis failed after %d attempts: %w", s.maxAttempts, lastErr)
}

var (
	descriptionLine = regexp.MustCompile(`(?i)^description\s*:`)
	tagsLine        = regexp.MustCompile(`(?i)^tags\s*:`)
)

// ParseModelOutput extracts a structured Analysis from raw model text.
// Recovery ladder: strip code fences, parse as JSON, repair and re-parse,
// then fall back to line-oriented extraction. Fails when no non-empty
// description can be recovered.
func ParseModelOutput(raw string) (*Analysis, error) {
	clean := stripCodeFence(strings.TrimSpace(raw))

	if result, ok := parseJSONAnalysis(clean); ok {
		return result, nil
	}

	// Models frequently emit almost-JSON (trailing commas, single quotes);
	// repair once before giving up on the structured form.
	if repaired, err := jsonrepair.JSONRepair(clean); err == nil {
		if result, ok := parseJSONAnalysis(repaired); ok {
			return result, nil
		}
	}

	return parseLineOriented(clean)
}

func stripCodeFence(text string) string {
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
	} else {
		return text
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func parseJSONAnalysis(text string) (*Analysis, bool) {
	var parsed struct {
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, false
	}

	description := strings.TrimSpace(parsed.Description)
	if description == "" {
		return nil, false
	}

	return &Analysis{
		Description: description,
		Tags:        NormalizeTags(parsed.Tags, maxTags),
	}, true
}

// parseLineOriented recovers from free-form text: the description is the
// first line matching "description:" (or the first non-empty line), tags
// come from a "tags:" line split on commas.
func parseLineOriented(text string) (*Analysis, error) {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(l); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	var descLine, tagLine string
	for _, l := range lines {
		if descLine == "" && descriptionLine.MatchString(l) {
			descLine = l
		}
		if tagLine == "" && tagsLine.MatchString(l) {
			tagLine = l
		}
	}
	if descLine == "" && len(lines) > 0 {
		descLine = lines[0]
	}

	description := strings.TrimSpace(descriptionLine.ReplaceAllString(descLine, ""))
	if description == "" {
		return nil, fmt.Errorf("no description could be extracted from model output")
	}

	var tags []string
	if tagLine != "" {
		raw := tagsLine.ReplaceAllString(tagLine, "")
		tags = strings.Split(raw, ",")
	}

	return &Analysis{
		Description: description,
		Tags:        NormalizeTags(tags, maxTags),
	}, nil
}

var disallowedTagChars = regexp.MustCompile(`[^a-z0-9\- ]`)
var multiSpace = regexp.MustCompile(`\s+`)

// NormalizeTags lowercases, trims, strips characters outside [a-z0-9- ],
// collapses whitespace, drops empties and deduplicates keeping first
// occurrence, capped at limit. Idempotent: normalizing twice yields the
// same result.
func NormalizeTags(tags []string, limit int) []string {
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))

	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		t = disallowedTagChars.ReplaceAllString(t, "")
		t = strings.TrimSpace(multiSpace.ReplaceAllString(t, " "))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		result = append(result, t)
		if len(result) == limit {
			break
		}
	}

	return result
}
