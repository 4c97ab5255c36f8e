// Package resolve maps free text ("done with the stretching") to one of a
// set of candidate tasks.
//
// Resolver is the boundary a language-model backed extractor would sit
// behind. NameMatcher is the deterministic built-in implementation.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/HendryAvila/tally/internal/store"
)

var (
	// ErrNoMatch means no candidate reached the confidence threshold.
	ErrNoMatch = errors.New("no matching task")
	// ErrAmbiguous means several candidates matched equally well.
	ErrAmbiguous = errors.New("ambiguous task reference")
)

// DefaultMinConfidence is the NameMatcher threshold when none is set.
const DefaultMinConfidence = 0.5

// Resolution is the chosen task and how sure the resolver is.
type Resolution struct {
	TaskID     string  `json:"task_id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Resolver picks the task text refers to.
type Resolver interface {
	Resolve(ctx context.Context, text string, candidates []store.Task) (Resolution, error)
}

// NameMatcher scores candidates by word overlap between the text and the task
// name, relative to the shorter of the two. An exact name match scores 1.
type NameMatcher struct {
	MinConfidence float64
}

// stopwords are dropped from both sides before scoring.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "my": true, "i": true, "to": true,
	"did": true, "done": true, "finished": true, "finish": true, "complete": true,
	"completed": true, "mark": true, "as": true, "with": true, "just": true,
	"task": true, "todo": true, "please": true, "have": true, "ve": true,
}

// Resolve implements Resolver.
func (m NameMatcher) Resolve(ctx context.Context, text string, candidates []store.Task) (Resolution, error) {
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}
	threshold := m.MinConfidence
	if threshold <= 0 {
		threshold = DefaultMinConfidence
	}

	query := normalize(text)
	queryWords := words(text)
	if query == "" {
		return Resolution{}, ErrNoMatch
	}

	scored := make([]Resolution, 0, len(candidates))
	for _, c := range candidates {
		score := Score(query, queryWords, c.Name)
		if score >= threshold {
			scored = append(scored, Resolution{TaskID: c.ID, Name: c.Name, Confidence: score})
		}
	}
	if len(scored) == 0 {
		return Resolution{}, fmt.Errorf("%w for %q", ErrNoMatch, text)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Confidence > scored[j].Confidence })
	if len(scored) > 1 && scored[0].Confidence == scored[1].Confidence {
		names := []string{}
		for _, r := range scored {
			if r.Confidence != scored[0].Confidence {
				break
			}
			names = append(names, fmt.Sprintf("%q", r.Name))
		}
		return Resolution{}, fmt.Errorf("%w: %s", ErrAmbiguous, strings.Join(names, ", "))
	}
	return scored[0], nil
}

// Score rates how well name matches the query, in [0, 1].
func Score(query string, queryWords map[string]bool, name string) float64 {
	n := normalize(name)
	if n == "" {
		return 0
	}
	if n == query {
		return 1
	}
	nameWords := words(name)
	denom := min(len(nameWords), len(queryWords))
	if denom == 0 {
		return 0
	}
	hit := 0
	for w := range nameWords {
		if queryWords[w] {
			hit++
		}
	}
	return 0.9 * float64(hit) / float64(denom)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

func words(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if stopwords[w] {
			continue
		}
		out[stem(w)] = true
	}
	return out
}

// stem folds the common "-ing" and plural "-s" endings.
func stem(w string) string {
	if len(w) > 5 && strings.HasSuffix(w, "ing") {
		w = strings.TrimSuffix(w, "ing")
	}
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		w = strings.TrimSuffix(w, "s")
	}
	return w
}
