package core

import (
	"strings"
	"unicode"

	"github.com/mohammad-safakhou/pharmaverse/session"
)

// OutsideDataMessage answers questions the collected data cannot.
const OutsideDataMessage = "This question does not affect the data shown in the tabs. You can continue exploring the Market, Trade, Trials, and Patent tabs without any changes."

type routeEntry struct {
	workerID string
	keywords []string
}

// routes is matched in order; the first category with a keyword hit wins.
var routes = []routeEntry{
	{WorkerMarket, []string{"market", "sales", "cagr", "revenue"}},
	{WorkerTrade, []string{"trade", "export", "import", "sourcing"}},
	{WorkerPatent, []string{"patent", "fto", "ip", "exclusivity"}},
	{WorkerTrials, []string{"trial", "clinical", "phase"}},
	{WorkerInternal, []string{"internal", "strategy"}},
	{WorkerWeb, []string{"web", "guideline", "news", "publication"}},
}

// Router answers follow-up questions from stored worker results only.
type Router struct{}

// Route returns the worker a question is about, or "" when nothing matches.
func (Router) Route(question string) string {
	words := tokenize(question)
	for _, r := range routes {
		for _, kw := range r.keywords {
			for w := range words {
				if keywordMatches(w, kw) {
					return r.workerID
				}
			}
		}
	}
	return ""
}

// inflections are the endings accepted after a keyword of four or more letters.
// Derived words like "important" stay unmatched.
var inflections = []string{"ed", "er", "ers", "ing", "ings"}

// keywordMatches reports whether word is kw, its plural, or for keywords of four
// or more letters an inflected form of it. Short keywords like "ip" match whole
// words only, so "ipf" never counts.
func keywordMatches(word, kw string) bool {
	if word == kw || word == kw+"s" || word == kw+"es" {
		return true
	}
	if len(kw) < 4 {
		return false
	}
	stem := strings.TrimSuffix(kw, "e")
	for _, suffix := range inflections {
		if word == stem+suffix {
			return true
		}
	}
	return false
}

// Answer projects the matched worker's stored summary. It reads s and nothing else.
func (rt Router) Answer(s *session.Session, question string) (string, string) {
	id := rt.Route(question)
	if id == "" || s == nil {
		return OutsideDataMessage, id
	}
	res, ok := s.WorkerResults[id]
	if !ok || strings.TrimSpace(res.Summary) == "" || res.Failed() {
		return OutsideDataMessage, id
	}
	return FirstSentences(res.Summary, 3), id
}

func tokenize(s string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = true
	}
	return words
}

// FirstSentences returns up to n sentences of text joined with ". " and ending in a period.
// A sentence ends at '.', '!' or '?' followed by whitespace or the end of text, so
// decimals like 3.5 stay intact.
func FirstSentences(text string, n int) string {
	text = strings.TrimSpace(text)
	if text == "" || n <= 0 {
		return ""
	}
	runes := []rune(text)
	var sentences []string
	start := 0
	for i := 0; i < len(runes) && len(sentences) < n; i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(string(runes[start:i])); s != "" {
					sentences = append(sentences, s)
				}
				start = i + 1
			}
		}
	}
	if len(sentences) < n {
		if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
			sentences = append(sentences, strings.TrimRight(tail, ".!? "))
		}
	}
	if len(sentences) == 0 {
		return ""
	}
	return strings.Join(sentences, ". ") + "."
}
