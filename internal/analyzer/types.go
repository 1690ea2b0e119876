package analyzer

// #region confidence

// Confidence is an ordinal rating of how strongly a prompt asks for
// exhaustive work.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Rank orders confidences low < medium < high. Unknown values rank below low.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceLow:
		return 0
	case ConfidenceMedium:
		return 1
	case ConfidenceHigh:
		return 2
	}
	return -1
}

func (c Confidence) up() Confidence {
	switch c {
	case ConfidenceLow:
		return ConfidenceMedium
	case ConfidenceMedium:
		return ConfidenceHigh
	}
	return c
}

func (c Confidence) down() Confidence {
	switch c {
	case ConfidenceHigh:
		return ConfidenceMedium
	case ConfidenceMedium:
		return ConfidenceLow
	}
	return c
}

// #endregion confidence

// #region result

// Result is the outcome of classifying one instruction.
type Result struct {
	IsThorough        bool       `json:"is_thorough"`
	MatchedIndicators []string   `json:"matched_indicators"`
	Confidence        Confidence `json:"confidence"`
	OriginalPrompt    string     `json:"original_prompt"`
}

// #endregion result

// #region rules

// Category groups lexicon entries by the role they play in scoring.
type Category int

const (
	CategoryHigh Category = iota
	CategoryMedium
	CategoryLow
	CategoryAmplifier
	CategoryDiminisher
)

func (c Category) String() string {
	switch c {
	case CategoryHigh:
		return "high"
	case CategoryMedium:
		return "medium"
	case CategoryLow:
		return "low"
	case CategoryAmplifier:
		return "amplifier"
	case CategoryDiminisher:
		return "diminisher"
	}
	return "unknown"
}

// Rule is one lexicon entry. Word rules only match on word boundaries.
type Rule struct {
	Pattern  string
	Category Category
	Word     bool
}

// RuleTable is the compiled, ordered lexicon the scorer walks.
type RuleTable []Rule

// #endregion rules
