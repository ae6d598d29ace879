package service

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pixelvault/vault/common/apperr"
)

const fallbackMaxTags = 15

// FallbackAnalysis derives tags and a description from the image bytes
// and file attributes alone, with no external calls. It only errors on
// an empty payload; undecodable images still produce metadata-based tags.
func FallbackAnalysis(data []byte, meta FileMeta) (*Analysis, error) {
	if len(data) == 0 {
		return nil, apperr.Analysis("cannot analyze empty image payload", nil)
	}

	var tags []string
	var visual []string

	if img, err := imaging.Decode(bytes.NewReader(data)); err == nil {
		small := imaging.Fit(img, 64, 64, imaging.NearestNeighbor)
		visual = dominantColorTags(small)
		visual = append(visual, brightnessTag(small))
		tags = append(tags, visual...)
	}

	tags = append(tags, mimeTags(meta.MimeType)...)
	tags = append(tags, sizeTag(meta.Size))
	tags = append(tags, fileNameTokens(meta.FileName)...)

	normalized := NormalizeTags(tags, fallbackMaxTags)

	return &Analysis{
		Description: composeDescription(meta, visual),
		Tags:        normalized,
	}, nil
}

// dominantColorTags buckets sampled pixels into coarse color families
// and returns the top three by count.
func dominantColorTags(img image.Image) []string {
	bounds := img.Bounds()
	counts := map[string]int{}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r := int(r16 >> 8)
			g := int(g16 >> 8)
			b := int(b16 >> 8)

			switch {
			case r > 200 && g < 100 && b < 100:
				counts["red"]++
			case g > 200 && r < 100 && b < 100:
				counts["green"]++
			case b > 200 && r < 100 && g < 100:
				counts["blue"]++
			case r > 200 && g > 200 && b < 100:
				counts["yellow"]++
			case abs(r-g) < 30 && abs(g-b) < 30:
				counts["grayscale"]++
			}
		}
	}

	var top []string
	for len(top) < 3 {
		best, bestCount := "", 0
		for color, count := range counts {
			if count > bestCount {
				best, bestCount = color, count
			}
		}
		if best == "" {
			break
		}
		top = append(top, best)
		delete(counts, best)
	}
	return top
}

func brightnessTag(img image.Image) string {
	bounds := img.Bounds()
	var total, samples int64

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			total += int64((r16>>8 + g16>>8 + b16>>8) / 3)
			samples++
		}
	}
	if samples == 0 {
		return "medium-light"
	}

	avg := total / samples
	switch {
	case avg < 85:
		return "dark"
	case avg > 170:
		return "bright"
	default:
		return "medium-light"
	}
}

func mimeTags(mimeType string) []string {
	sub := strings.TrimPrefix(strings.ToLower(mimeType), "image/")
	switch sub {
	case "jpeg", "jpg":
		return []string{"jpeg", "photo"}
	case "png":
		return []string{"png"}
	case "gif":
		return []string{"gif", "animated"}
	case "webp":
		return []string{"webp"}
	case "svg+xml":
		return []string{"svg", "vector"}
	default:
		if sub != "" && sub != strings.ToLower(mimeType) {
			return []string{sub}
		}
		return nil
	}
}

func sizeTag(size int64) string {
	switch {
	case size < 100*1024:
		return "small-file"
	case size < 2*1024*1024:
		return "medium-file"
	case size < 10*1024*1024:
		return "large-file"
	default:
		return "very-large-file"
	}
}

// fileNameTokens splits the base name on non-alphanumeric runs and keeps
// tokens longer than two characters, skipping generic photography words.
func fileNameTokens(fileName string) []string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	fields := strings.FieldsFunc(strings.ToLower(base), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})

	skip := map[string]struct{}{
		"img": {}, "image": {}, "pic": {}, "photo": {}, "picture": {},
	}

	var tokens []string
	for _, f := range fields {
		if len(f) <= 2 {
			continue
		}
		if _, generic := skip[f]; generic {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func composeDescription(meta FileMeta, visual []string) string {
	kind := strings.TrimPrefix(strings.ToLower(meta.MimeType), "image/")
	if kind == "" || kind == strings.ToLower(meta.MimeType) {
		kind = "image"
	}

	if len(visual) > 0 {
		return fmt.Sprintf("A %s image with %s tones, named %s", kind, strings.Join(visual, " and "), meta.FileName)
	}
	return fmt.Sprintf("A %s image named %s", kind, meta.FileName)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
