package knowledge

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"
)

const (
	weightCategory = 50
	weightQuestion = 20
	weightTag      = 15
	weightAnswer   = 5
	bonusCodedID   = 10

	DefaultMaxItems = 15
	DefaultMaxChars = 15000
)

var (
	keywordRe   = regexp.MustCompile(`[a-z0-9+]+|[ァ-ヴー]{2,}|[一-龠々]{2,}|[ぁ-ん]{2,}`)
	codedItemRe = regexp.MustCompile(`^\d{6}`)
)

// DefaultStopWords are too generic to tell items apart.
var DefaultStopWords = []string{
	"です", "ます", "ください", "お願いします", "について", "方法", "こと", "もの",
	"さん", "さま", "私", "僕", "俺", "弊社", "社内",
	"http", "https", "com", "jp", "www", "教えて", "知りたい", "どうすれば",
}

type Scorer struct {
	MaxItems  int
	MaxChars  int
	stopWords map[string]struct{}
}

func NewScorer(maxItems, maxChars int, stopWords []string) *Scorer {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if stopWords == nil {
		stopWords = DefaultStopWords
	}
	sw := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		sw[w] = struct{}{}
	}
	return &Scorer{MaxItems: maxItems, MaxChars: maxChars, stopWords: sw}
}

// Normalize folds full-width ASCII to half-width and lower-cases.
func Normalize(s string) string {
	return strings.ToLower(width.Fold.String(s))
}

// Keywords extracts the distinct, non-stop-word tokens of query in order of
// first appearance.
func (s *Scorer) Keywords(query string) []string {
	raw := keywordRe.FindAllString(Normalize(query), -1)
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, stop := s.stopWords[k]; stop {
			continue
		}
		out = append(out, k)
	}
	return out
}

type Scored struct {
	Item  Item
	Score int
}

// Score sums the weight of every keyword hit on item. Items whose question
// starts with a six-digit code get a fixed bonus.
func Score(item Item, keywords []string) int {
	q := Normalize(item.Question)
	tags := Normalize(item.Tags)
	cat := Normalize(item.Category)
	ans := Normalize(item.Point + item.Action)

	score := 0
	for _, k := range keywords {
		if strings.Contains(q, k) {
			score += weightQuestion
		}
		if strings.Contains(tags, k) {
			score += weightTag
		}
		if strings.Contains(cat, k) {
			score += weightCategory
		}
		if strings.Contains(ans, k) {
			score += weightAnswer
		}
	}
	if codedItemRe.MatchString(item.Question) {
		score += bonusCodedID
	}
	return score
}

// Rank returns the top MaxItems positively scored items, best first. Ties
// keep corpus order.
func (s *Scorer) Rank(items []Item, query string) []Scored {
	keywords := s.Keywords(query)
	if len(keywords) == 0 {
		return nil
	}
	var out []Scored
	for _, it := range items {
		if sc := Score(it, keywords); sc > 0 {
			out = append(out, Scored{Item: it, Score: sc})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > s.MaxItems {
		out = out[:s.MaxItems]
	}
	return out
}

// BuildContext renders the ranked items as grounding text. Items repeating an
// already used URL are skipped; assembly stops at the first block that would
// push the text past MaxChars (counted in characters, not bytes). ok is false
// when nothing was assembled.
func (s *Scorer) BuildContext(items []Item, query string) (string, bool) {
	var (
		b     strings.Builder
		total int
		seen  = map[string]struct{}{}
	)
	for _, sc := range s.Rank(items, query) {
		it := sc.Item
		if it.URL != "" {
			if _, dup := seen[it.URL]; dup {
				continue
			}
			seen[it.URL] = struct{}{}
		}
		block := renderBlock(it)
		n := utf8.RuneCountInString(block)
		if total+n > s.MaxChars {
			break
		}
		b.WriteString(block)
		total += n
	}
	text := strings.TrimSpace(b.String())
	return text, text != ""
}

func renderBlock(it Item) string {
	var b strings.Builder
	if it.URL != "" {
		b.WriteString("・[" + it.Question + "](" + it.URL + ")\n")
	} else {
		b.WriteString("・" + it.Question + "\n")
	}
	if it.Point != "" {
		b.WriteString("  - 要点: " + it.Point + "\n")
	}
	if it.Action != "" {
		b.WriteString("  - 手順: " + it.Action + "\n")
	}
	if it.Note != "" {
		b.WriteString("  - 補足: " + it.Note + "\n")
	}
	b.WriteString("\n")
	return b.String()
}
