package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/spigell/hh-assistant/internal/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxMissingTags = 20

var stopWords = map[string]bool{
	"and": true, "the": true, "for": true, "with": true, "you": true,
	"are": true, "have": true, "will": true, "this": true, "that": true,
	"from": true, "our": true, "your": true, "their": true, "they": true,
	"work": true, "team": true, "role": true, "job": true, "join": true,
	"about": true, "which": true, "what": true, "who": true, "how": true,
	"can": true, "not": true, "but": true, "all": true, "also": true,
	"more": true, "than": true, "into": true, "has": true, "its": true,
	"опыт": true, "работы": true, "для": true, "или": true, "все": true,
	"как": true, "наш": true, "нас": true, "вас": true, "что": true,
	"это": true, "будет": true, "при": true, "лет": true, "год": true,
	"in": true, "to": true, "of": true, "on": true, "at": true, "is": true,
	"an": true, "as": true, "be": true, "or": true, "we": true, "by": true,
	"it": true, "на": true, "по": true, "от": true, "до": true, "за": true,
	"не": true, "мы": true, "вы": true, "из": true, "же": true, "то": true,
}

// Keywords is an offline scorer based on keyword overlap. It is used when
// no language model is configured.
type Keywords struct{}

func NewKeywords() *Keywords { return &Keywords{} }

// Score is the share of posting keywords found in the profile, rescaled so that
// covering half of the posting vocabulary already counts as a full match.
func (k *Keywords) Score(_ context.Context, profileText, postingText string) (*models.MatchResult, error) {
	profileKW := extractKeywords(profileText)
	postingKW := extractKeywords(postingText)
	if len(postingKW) == 0 {
		return nil, errors.New("posting has no keywords")
	}

	var matching, missing []string
	for kw := range postingKW {
		if profileKW[kw] {
			matching = append(matching, kw)
		} else {
			missing = append(missing, kw)
		}
	}
	sort.Strings(matching)
	sort.Strings(missing)
	if len(missing) > maxMissingTags {
		missing = missing[:maxMissingTags]
	}

	coverage := float64(len(matching)) / float64(len(postingKW))
	score := math.Min(1, coverage*2)
	score = math.Round(score*100) / 100

	return &models.MatchResult{
		Score:        score,
		Rationale:    fmt.Sprintf("%d of %d posting keywords found in the profile", len(matching), len(postingKW)),
		MatchingTags: matching,
		MissingTags:  missing,
	}, nil
}

var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func normalizeText(s string) string {
	out, _, err := transform.String(foldMarks, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// extractKeywords keeps + # . inside words so c++, c# and node.js survive.
// Two-letter tokens are kept for names like go, js and qa.
func extractKeywords(text string) map[string]bool {
	kw := make(map[string]bool)
	var word strings.Builder
	flush := func() {
		w := strings.TrimRight(word.String(), ".")
		word.Reset()
		if len([]rune(w)) >= 2 && !stopWords[w] {
			kw[w] = true
		}
	}
	for _, r := range normalizeText(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' || r == '.' {
			word.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return kw
}
