package extract

import "strings"

// #region types

// Reason explains why text was or was not selected for analysis.
type Reason string

const (
	ReasonShortPrompt         Reason = "short_prompt"
	ReasonShortAfterSeparator Reason = "short_after_separator"
	ReasonTooLong             Reason = "too_long"
)

// DefaultMaxWords bounds how long an instruction can be before it is treated
// as pasted context rather than something the user typed.
const DefaultMaxWords = 250

// Result is the output of Extract.
type Result struct {
	Text          string `json:"text,omitempty"`
	ShouldAnalyze bool   `json:"should_analyze"`
	Reason        Reason `json:"reason"`
}

// #endregion types

// #region extract

// Extract isolates the user's own instruction from a prompt that may carry
// pasted material. maxWords <= 0 selects DefaultMaxWords.
func Extract(prompt string, maxWords int) Result {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}

	trimmed := strings.TrimSpace(prompt)
	if wordCount(trimmed) < maxWords {
		return Result{Text: prompt, ShouldAnalyze: true, Reason: ReasonShortPrompt}
	}

	if tail, ok := afterLastSeparator(trimmed); ok {
		n := wordCount(tail)
		if n > 0 && n < maxWords {
			return Result{Text: tail, ShouldAnalyze: true, Reason: ReasonShortAfterSeparator}
		}
	}

	return Result{Reason: ReasonTooLong}
}

// #endregion extract

// #region helpers

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// afterLastSeparator returns the trimmed text following the last line made
// only of dashes.
func afterLastSeparator(s string) (string, bool) {
	lines := strings.Split(s, "\n")
	last := -1
	for i, line := range lines {
		if isSeparator(line) {
			last = i
		}
	}
	if last < 0 {
		return "", false
	}
	return strings.TrimSpace(strings.Join(lines[last+1:], "\n")), true
}

func isSeparator(line string) bool {
	line = strings.Trim(line, " \t\r")
	if line == "" {
		return false
	}
	return strings.Trim(line, "-") == ""
}

// #endregion helpers
