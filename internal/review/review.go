package review

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/stopgate/internal/analyzer"
)

// #region limits

const (
	maxIndicators      = 5
	maxPromptRunes     = 500
	maxCompactionRunes = 200
	ellipsis           = "..."
	indicatorSeparator = ", "
)

// #endregion limits

// #region render

// Render builds the review prompt sent back to the agent when it tries to
// stop before the thorough request is met.
func Render(res analyzer.Result) string {
	indicators := Indicators(res.MatchedIndicators)
	prompt := Truncate(res.OriginalPrompt, maxPromptRunes)

	var b strings.Builder
	b.WriteString("THOROUGHNESS REVIEW REQUIRED\n\n")
	fmt.Fprintf(&b, "The user's request asked for thorough work (%s confidence; indicators: %s).\n", res.Confidence, indicators)
	fmt.Fprintf(&b, "Original request: \"%s\"\n\n", prompt)
	b.WriteString("Before finishing, walk through this checklist:\n")
	fmt.Fprintf(&b, "1. Completeness check: re-read the original request and confirm every part of \"%s\" has been addressed.\n", prompt)
	fmt.Fprintf(&b, "2. Quantifier verification: the request used %s. Confirm each quantified scope was covered in full, not sampled.\n", indicators)
	b.WriteString("3. Quality check: confirm the changes were tested or verified, and list anything you skipped with the reason.\n")
	return b.String()
}

// DenialMessage returns the text injected after the attempt-th denied stop.
// Wording escalates with the attempt number; the attempt equal to max is
// framed as the last one.
func DenialMessage(res analyzer.Result, attempt, max int) string {
	switch {
	case attempt <= 1 && max > 1:
		return fmt.Sprintf(
			"Before you stop: the user asked for thorough work (%s). "+
				"Double-check that the whole request is complete, then continue or summarize what was covered. (review %d of %d)",
			Indicators(res.MatchedIndicators), attempt, max)
	case attempt < max:
		var b strings.Builder
		b.WriteString(Render(res))
		fmt.Fprintf(&b, "\nReply with an itemized confirmation for each checklist point before stopping. (review %d of %d)\n", attempt, max)
		return b.String()
	default:
		var b strings.Builder
		b.WriteString("FINAL REVIEW. This is the last chance to complete the request before the session is allowed to end.\n\n")
		b.WriteString(Render(res))
		fmt.Fprintf(&b, "\nFinish any remaining work now and confirm each checklist point. (review %d of %d)\n", attempt, max)
		return b.String()
	}
}

// #endregion render

// #region status

// SystemStatus is appended to the system prompt while a thorough request is
// active.
func SystemStatus(res analyzer.Result, denials, max int) string {
	return fmt.Sprintf(
		"[thoroughness] Active thorough request (confidence: %s; indicators: %s; stop reviews used: %d/%d). "+
			"Cover the full scope of the request before ending the turn.",
		res.Confidence, Indicators(res.MatchedIndicators), denials, max)
}

// CompactionStatus is appended to the compaction context so the active
// request survives a context reset.
func CompactionStatus(res analyzer.Result, denials, max int) string {
	return fmt.Sprintf(
		"[thoroughness] Thorough request still active (confidence: %s; indicators: %s; stop reviews used: %d/%d). Request: \"%s\"",
		res.Confidence, Indicators(res.MatchedIndicators), denials, max,
		Truncate(res.OriginalPrompt, maxCompactionRunes))
}

// #endregion status

// #region helpers

// Indicators joins up to the first five indicators.
func Indicators(matched []string) string {
	if len(matched) > maxIndicators {
		matched = matched[:maxIndicators]
	}
	return strings.Join(matched, indicatorSeparator)
}

// Truncate cuts s to limit runes and appends an ellipsis when it was longer.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + ellipsis
}

// #endregion helpers
