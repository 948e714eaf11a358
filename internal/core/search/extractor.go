package search

import (
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/niksmo/smart-catalog/internal/core/domain"
)

const highRating = 4.0

// A priceRule sets a price bound when its pattern matches.
//
// Every rule of [priceRules] is evaluated in table order and a later
// match overwrites an earlier one, so "below $N" wins over "under $M"
// when a query contains both.
type priceRule struct {
	name  string
	re    *regexp.Regexp
	apply func(c *domain.Constraints, v float64)
}

var priceRules = []priceRule{
	{
		name:  "under",
		re:    regexp.MustCompile(`under\s*\$?(\d+(?:\.\d+)?)`),
		apply: func(c *domain.Constraints, v float64) { c.MaxPrice = &v },
	},
	{
		name:  "below",
		re:    regexp.MustCompile(`below\s*\$?(\d+(?:\.\d+)?)`),
		apply: func(c *domain.Constraints, v float64) { c.MaxPrice = &v },
	},
	{
		name:  "over",
		re:    regexp.MustCompile(`over\s*\$?(\d+(?:\.\d+)?)`),
		apply: func(c *domain.Constraints, v float64) { c.MinPrice = &v },
	},
}

// A ratingRule yields a minimal rating. Only the first matching rule of
// [ratingRules] applies.
type ratingRule struct {
	name  string
	match func(q string) (float64, bool)
}

var (
	explicitRatingRe = regexp.MustCompile(`rating\s*(?:at least|>=)?\s*(\d(?:\.\d)?)`)
	starsRatingRe    = regexp.MustCompile(`(\d(?:\.\d)?)\s*\+?\s*stars?`)
	highRatingTerms  = []string{"good reviews", "high rating", "highly rated"}
)

var ratingRules = []ratingRule{
	{name: "explicit", match: captureRule(explicitRatingRe)},
	{name: "phrase", match: phraseRule(highRatingTerms, highRating)},
	{name: "stars", match: captureRule(starsRatingRe)},
}

func captureRule(re *regexp.Regexp) func(string) (float64, bool) {
	return func(q string) (float64, bool) {
		return captureFloat(re, q)
	}
}

func phraseRule(terms []string, v float64) func(string) (float64, bool) {
	return func(q string) (float64, bool) {
		for _, t := range terms {
			if strings.Contains(q, t) {
				return v, true
			}
		}
		return 0, false
	}
}

// captureFloat parses the first capture group of re. A missing or
// unparseable capture reports false.
func captureFloat(re *regexp.Regexp, q string) (float64, bool) {
	m := re.FindStringSubmatch(q)
	if len(m) < 2 {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Extract derives structural constraints from query text.
//
// Category detection is limited to categories, checked in the given
// order; the first whole-word match wins. The detected category is
// returned lower-cased.
func Extract(query string, categories []string) domain.Constraints {
	var c domain.Constraints

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return c
	}

	for _, r := range priceRules {
		if v, ok := captureFloat(r.re, q); ok {
			r.apply(&c, v)
		}
	}

	for _, r := range ratingRules {
		if v, ok := r.match(q); ok {
			c.MinRating = &v
			break
		}
	}

	c.Category = detectCategory(q, categories)
	return c
}

func detectCategory(q string, categories []string) string {
	for _, name := range categories {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		re, err := categoryRegexp(name)
		if err != nil {
			continue
		}
		if re.MatchString(q) {
			return name
		}
	}
	return ""
}

const categoryCacheSize = 512

var categoryRes = mustCategoryCache(categoryCacheSize)

func mustCategoryCache(size int) *lru.Cache[string, *regexp.Regexp] {
	c, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		panic("search: category cache: " + err.Error()) // develop mistake
	}
	return c
}

// categoryRegexp returns the whole-word matcher for a lower-cased
// category name.
func categoryRegexp(name string) (*regexp.Regexp, error) {
	if re, ok := categoryRes.Get(name); ok {
		return re, nil
	}
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(name) + `\b`)
	if err != nil {
		return nil, err
	}
	categoryRes.Add(name, re)
	return re, nil
}

// categoriesOf lists distinct lower-cased categories in order of first
// appearance.
func categoriesOf(ps []domain.Product) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range ps {
		name := strings.ToLower(p.Category)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
