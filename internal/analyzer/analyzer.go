package analyzer

import (
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"
)

// #region default

var defaultTable = DefaultLexicon().Compile()

// Analyze classifies text with the built-in lexicon.
func Analyze(text string) Result {
	return Score(defaultTable, text)
}

// #endregion default

// #region score

// Score walks table once over text and rates how thorough the request is.
func Score(table RuleTable, text string) Result {
	lower := strings.ToLower(text)

	var (
		indicators                          []string
		highMatches, mediumMatches, lowHits int
		hasAmplifier, hasDiminisher         bool
	)

	for _, r := range table {
		var hit bool
		if r.Word {
			hit = containsWord(lower, r.Pattern)
		} else {
			hit = strings.Contains(lower, r.Pattern)
		}
		if !hit {
			continue
		}
		switch r.Category {
		case CategoryHigh:
			highMatches++
			indicators = append(indicators, r.Pattern)
		case CategoryMedium:
			mediumMatches++
			indicators = append(indicators, r.Pattern)
		case CategoryLow:
			lowHits++
			indicators = append(indicators, r.Pattern)
		case CategoryAmplifier:
			hasAmplifier = true
		case CategoryDiminisher:
			hasDiminisher = true
		}
	}

	confidence := ConfidenceLow
	amplifiedBase := false
	switch {
	case highMatches > 0:
		confidence = ConfidenceHigh
	case mediumMatches >= 2:
		confidence = ConfidenceMedium
	case mediumMatches >= 1 && hasAmplifier:
		confidence = ConfidenceMedium
		amplifiedBase = true
	case mediumMatches >= 1 || lowHits >= 2:
		confidence = ConfidenceLow
	}

	if hasDiminisher && confidence != ConfidenceLow {
		confidence = confidence.down()
	}
	// An amplifier that already lifted a lone quantifier to medium is not
	// counted a second time.
	if hasAmplifier && !hasDiminisher && !amplifiedBase &&
		confidence != ConfidenceHigh && len(indicators) > 0 {
		confidence = confidence.up()
	}

	return Result{
		IsThorough:        len(indicators) > 0 && confidence != ConfidenceLow,
		MatchedIndicators: indicators,
		Confidence:        confidence,
		OriginalPrompt:    text,
	}
}

// containsWord reports whether word occurs in s with no letter, digit or
// underscore directly on either side.
func containsWord(s, word string) bool {
	for start := 0; start <= len(s)-len(word); {
		i := strings.Index(s[start:], word)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(word)
		if !wordRuneBefore(s, i) && !wordRuneAt(s, end) {
			return true
		}
		start = i + 1
	}
	return false
}

func wordRuneBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return isWordRune(r)
}

func wordRuneAt(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// #endregion score

// #region analyzer

// Analyzer scores prompts against a lexicon that can be replaced while
// requests are in flight.
type Analyzer struct {
	table atomic.Pointer[RuleTable]
}

// New returns an Analyzer using lex.
func New(lex Lexicon) *Analyzer {
	a := &Analyzer{}
	a.SetLexicon(lex)
	return a
}

// NewDefault returns an Analyzer using the built-in lexicon.
func NewDefault() *Analyzer {
	return New(DefaultLexicon())
}

// SetLexicon compiles lex and makes it the active table.
func (a *Analyzer) SetLexicon(lex Lexicon) {
	table := lex.Compile()
	a.table.Store(&table)
}

// Reload reads a YAML lexicon from path and activates it. On error the
// previous table stays active.
func (a *Analyzer) Reload(path string) error {
	lex, err := LoadLexicon(path)
	if err != nil {
		return err
	}
	a.SetLexicon(lex)
	return nil
}

// Analyze classifies text with the active table.
func (a *Analyzer) Analyze(text string) Result {
	return Score(*a.table.Load(), text)
}

// Rules returns the active rule table.
func (a *Analyzer) Rules() RuleTable {
	return *a.table.Load()
}

// #endregion analyzer
