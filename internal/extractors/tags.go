package extractors

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	maxTagLength = 100
	maxTagCount  = 50
)

// ratingKeyOrder lists the tag-reader keys consulted for a star rating, in
// priority order (spec §4.5).
var ratingKeyOrder = []string{
	"XMP-xmp:Rating",
	"XMP:Rating",
	"Rating",
}

// ratingPercentKeyOrder lists the keys carrying a 0-100 percent rating,
// which is mapped to 0-5 stars by the 88/63/38/13 thresholds.
var ratingPercentKeyOrder = []string{
	"XMP-microsoft:RatingPercent",
	"Microsoft:RatingPercent",
	"RatingPercent",
}

// tagKeyOrder lists the keys consulted for a tag/keyword list, in priority
// order. The first key present wins; lower-priority keys are not merged in.
var tagKeyOrder = []string{
	"XMP-dc:Subject",
	"IPTC:Keywords",
	"Microsoft:Category",
	"XPKeywords",
	"Subject",
	"Keywords",
}

// generationTimeKeyOrder lists the date/time keys consulted for
// generation_time, in priority order (spec §4.5).
var generationTimeKeyOrder = []string{
	"EXIF:DateTimeOriginal",
	"DateTimeOriginal",
	"EXIF:CreateDate",
	"CreateDate",
	"QuickTime:CreateDate",
	"QuickTime:CreationDate",
	"XMP:CreateDate",
	"XMP-xmp:CreateDate",
}

func percentToStars(percent float64) int {
	switch {
	case percent >= 88:
		return 5
	case percent >= 63:
		return 4
	case percent >= 38:
		return 3
	case percent >= 13:
		return 2
	case percent > 0:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	if f, ok := toFloat(v); ok {
		return int(f), true
	}
	return 0, false
}

// ExtractRating normalizes a rating out of the common tag-reader key
// spellings: an integer 0-5 star rating takes priority; otherwise a
// percent-style rating is mapped via the 88/63/38/13 thresholds.
func ExtractRating(tags map[string]any) (int, bool) {
	for _, key := range ratingKeyOrder {
		if v, ok := tags[key]; ok {
			if n, ok := toInt(v); ok {
				if n < 0 {
					n = 0
				}
				if n > 5 {
					n = 5
				}
				return n, true
			}
		}
	}
	for _, key := range ratingPercentKeyOrder {
		if v, ok := tags[key]; ok {
			if f, ok := toFloat(v); ok {
				return percentToStars(f), true
			}
		}
	}
	return 0, false
}

// splitTagString splits a combined keyword string on common list
// separators (comma or semicolon), used when a tag-reader key returns one
// string instead of an array.
func splitTagString(s string) []string {
	s = strings.ReplaceAll(s, ";", ",")
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func rawTagList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprintf("%v", e))
			}
		}
		return out
	case string:
		return splitTagString(t)
	}
	return nil
}

// ExtractTags reads the first present tag-list key and canonicalizes it.
func ExtractTags(tags map[string]any) []string {
	for _, key := range tagKeyOrder {
		if v, ok := tags[key]; ok {
			if list := rawTagList(v); len(list) > 0 {
				return CanonicalizeTags(list)
			}
		}
	}
	return nil
}

// CanonicalizeTags strips whitespace, drops empty or over-length entries,
// deduplicates case-insensitively (first occurrence wins), and caps the
// result at maxTagCount (spec §4.10, §4.5).
func CanonicalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || len(t) > maxTagLength {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if len(out) >= maxTagCount {
			break
		}
	}
	return out
}

// TagsText produces the space-joined FTS mirror of a tag list.
func TagsText(tags []string) string {
	return strings.Join(tags, " ")
}

// SortedUnique returns a globally deduplicated, sorted view of tags, used
// by get_all_tags (spec §4.10).
func SortedUnique(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ExtractGenerationTime returns the first present key from
// generationTimeKeyOrder.
func ExtractGenerationTime(tags map[string]any) string {
	for _, key := range generationTimeKeyOrder {
		if v, ok := tags[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
