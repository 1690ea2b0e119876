package analyzer

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// #region lexicon

// Lexicon is the editable source for a RuleTable.
type Lexicon struct {
	High        []string `yaml:"high"`
	Medium      []string `yaml:"medium"`
	Low         []string `yaml:"low"`
	Amplifiers  []string `yaml:"amplifiers"`
	Diminishers []string `yaml:"diminishers"`
}

// maxWordTokenLen is the longest medium token matched on word boundaries.
// Longer tokens are distinctive enough for substring matching.
const maxWordTokenLen = 4

// DefaultLexicon returns the built-in phrase lists.
func DefaultLexicon() Lexicon {
	return Lexicon{
		High: []string{
			"exhaustive", "thorough", "comprehensive", "deep dive", "in-depth",
			"leave no stone unturned", "ultrathink", "meticulous", "rigorous",
			"painstaking", "fine-tooth comb", "every single", "don't miss anything",
			"nothing missed",
		},
		Medium: []string{
			"all", "every", "each", "entire", "complete", "completely", "fully",
			"100%", "whole", "everything", "everywhere", "without exception",
			"across the codebase",
		},
		Low: []string{
			"make sure", "ensure", "verify", "check all", "audit", "double check",
			"double-check", "validate", "confirm", "go through",
		},
		Amplifiers: []string{
			"really", "must", "critical", "make sure to", "absolutely",
			"important", "crucial", "carefully", "no exceptions",
		},
		Diminishers: []string{
			"just need", "only need", "simple", "briefly", "quick fix",
			"quick look", "all i need", "nothing fancy", "rough", "minimal",
		},
	}
}

// Compile lowers every entry and builds the ordered rule table.
func (l Lexicon) Compile() RuleTable {
	var table RuleTable
	add := func(cat Category, patterns []string) {
		for _, p := range patterns {
			p = strings.ToLower(strings.TrimSpace(p))
			if p == "" {
				continue
			}
			table = append(table, Rule{
				Pattern:  p,
				Category: cat,
				Word:     cat == CategoryMedium && len(p) <= maxWordTokenLen,
			})
		}
	}
	add(CategoryHigh, l.High)
	add(CategoryMedium, l.Medium)
	add(CategoryLow, l.Low)
	add(CategoryAmplifier, l.Amplifiers)
	add(CategoryDiminisher, l.Diminishers)
	return table
}

// LoadLexicon reads a YAML lexicon. Categories absent from the file keep the
// built-in lists.
func LoadLexicon(path string) (Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, fmt.Errorf("read lexicon: %w", err)
	}
	return ParseLexicon(data)
}

// ParseLexicon decodes YAML lexicon bytes over the built-in defaults.
func ParseLexicon(data []byte) (Lexicon, error) {
	var file Lexicon
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Lexicon{}, fmt.Errorf("parse lexicon: %w", err)
	}
	lex := DefaultLexicon()
	if file.High != nil {
		lex.High = file.High
	}
	if file.Medium != nil {
		lex.Medium = file.Medium
	}
	if file.Low != nil {
		lex.Low = file.Low
	}
	if file.Amplifiers != nil {
		lex.Amplifiers = file.Amplifiers
	}
	if file.Diminishers != nil {
		lex.Diminishers = file.Diminishers
	}
	return lex, nil
}

// #endregion lexicon
