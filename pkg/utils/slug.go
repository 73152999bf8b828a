package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxSlugLength bounds the readable part of a slug, before the id suffix
	MaxSlugLength = 60
	// minSlugCut is the earliest hyphen a long slug may be cut back to
	minSlugCut = 40
	// slugSuffixLength is how many trailing id characters make a slug unique
	slugSuffixLength = 6
	maxTitleWords    = 4
	maxCompanyWords  = 2
	fallbackPrefix   = "design"
)

// spaceClass is ASCII whitespace plus the Unicode space separators, BOM
// and line/paragraph separators. RE2's \s is ASCII only, but published
// slugs split words on all of them.
const spaceClass = `\t\n\v\f\r \x{00a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}`

var (
	// Anything that is not a lowercase letter, digit, whitespace or hyphen
	nonSlugRegex    = regexp.MustCompile(`[^a-z0-9` + spaceClass + `-]`)
	whitespaceRegex = regexp.MustCompile(`[` + spaceClass + `]+`)
	hyphenRunRegex  = regexp.MustCompile(`-+`)

	fillerWords = map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
		"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
		"with": true, "by": true,
	}
)

// CleanSlugPart lowercases s, strips diacritics and punctuation, and joins
// the remaining words with single hyphens.
func CleanSlugPart(s string) string {
	s = strings.ToLower(s)

	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(stripMarks, s); err == nil {
		s = stripped
	}

	s = nonSlugRegex.ReplaceAllString(s, "")
	s = whitespaceRegex.ReplaceAllString(s, "-")
	s = hyphenRunRegex.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// DeriveSlug builds the SEO slug for a record that has none stored.
// The result depends only on its inputs, so a record keeps its URL for as
// long as those fields do not change.
func DeriveSlug(title, company, id, category, primaryTag string) string {
	parts := make([]string, 0, 4)

	if title != "" {
		cleanTitle := firstWords(removeFillerWords(CleanSlugPart(title)), maxTitleWords)
		if cleanTitle != "" {
			parts = append(parts, cleanTitle)
		}
	}

	if primaryTag != "" && primaryTag != "all" {
		cleanTag := CleanSlugPart(primaryTag)
		if cleanTag != "" && (len(parts) == 0 || !strings.Contains(parts[0], cleanTag)) {
			parts = append(parts, cleanTag)
		}
	}

	if category != "" && category != "all" {
		cleanCategory := CleanSlugPart(category)
		if cleanCategory != "" && !strings.Contains(strings.Join(parts, "-"), cleanCategory) {
			parts = append(parts, cleanCategory)
		}
	}

	if company != "" {
		if cleanCompany := firstWords(CleanSlugPart(company), maxCompanyWords); cleanCompany != "" {
			parts = append(parts, cleanCompany)
		}
	}

	slug := truncateSlug(strings.Join(parts, "-"))

	if slug == "" {
		if id == "" {
			return fallbackPrefix + "-" + strconv.FormatInt(time.Now().UnixMilli(), 10)
		}
		return fallbackPrefix + "-" + idSuffix(id)
	}
	if id == "" {
		return slug
	}
	return slug + "-" + idSuffix(id)
}

// ExtractSlugFromPath returns the last path segment
func ExtractSlugFromPath(path string) string {
	segments := strings.Split(path, "/")
	return segments[len(segments)-1]
}

func removeFillerWords(s string) string {
	words := strings.Split(s, "-")
	kept := words[:0]
	for _, word := range words {
		if word != "" && !fillerWords[word] {
			kept = append(kept, word)
		}
	}
	return strings.Join(kept, "-")
}

func firstWords(s string, n int) string {
	words := strings.Split(s, "-")
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, "-")
}

// truncateSlug cuts s to MaxSlugLength, backing up to the last hyphen when
// that still leaves at least minSlugCut characters.
func truncateSlug(s string) string {
	if len(s) <= MaxSlugLength {
		return s
	}
	s = s[:MaxSlugLength]
	if lastDash := strings.LastIndex(s, "-"); lastDash >= minSlugCut {
		s = s[:lastDash]
	}
	return strings.TrimRight(s, "-")
}

func idSuffix(id string) string {
	r := []rune(id)
	if len(r) > slugSuffixLength {
		return string(r[len(r)-slugSuffixLength:])
	}
	return id
}
