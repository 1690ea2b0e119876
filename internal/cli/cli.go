// Package cli holds helpers shared by the command binaries.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/stopgate/internal/config"
	"github.com/danielpatrickdp/stopgate/internal/logging"
)

// #region bootstrap

// LoadEnv reads .env files into the environment. Variables already set win.
// A missing default .env is not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// Bootstrap loads the environment, the config file and the logger.
func Bootstrap(configPath string, verbose bool) (*config.Config, *zap.Logger, error) {
	if err := LoadEnv(); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Log, verbose)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// #endregion bootstrap

// #region output

var (
	Title   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2196F3"))
	Label   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8F98"))
	Good    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	Warn    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	Bad     = lipgloss.NewStyle().Foreground(lipgloss.Color("#E53935"))
	header  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell    = lipgloss.NewStyle().Padding(0, 1)
	borders = lipgloss.NewStyle().Foreground(lipgloss.Color("#2A3850"))
)

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borders).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	return t.String()
}

// Field renders "label: value" with a dimmed label.
func Field(label, value string) string {
	return Label.Render(label+":") + " " + value
}

// Decision colors a gate action.
func Decision(action string) string {
	switch action {
	case "deny", "block":
		return Bad.Render(action)
	case "allow_reset":
		return Warn.Render(action)
	default:
		return Good.Render(action)
	}
}

// PrintJSON writes v as indented JSON to w.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Fatal prints err and exits 1.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// #endregion output
