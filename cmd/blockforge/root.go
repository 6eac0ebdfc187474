package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/blockforge/internal/adapters/logging"
	"github.com/felixgeelhaar/blockforge/internal/domain/compilation"
	"github.com/felixgeelhaar/blockforge/internal/domain/config"
	"github.com/felixgeelhaar/blockforge/internal/ports"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	logJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "blockforge",
	Short: "A CSS Blocks compiler",
	Long: `Blockforge compiles CSS Blocks into one optimized stylesheet.

It analyzes your templates to find the blocks and styles they use,
compiles every block, and optimizes the result:
  Entries → Analyze → Compile → Optimize → Emit`,
	SilenceErrors: true, // We handle error formatting ourselves
	SilenceUsage:  true, // Don't show usage on error
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultFileName, "config file (.yaml, .toml or .ini)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON")

	_ = rootCmd.RegisterFlagCompletionFunc("config", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"yaml", "yml", "toml", "ini"}, cobra.ShellCompDirectiveFilterFileExt
	})

	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the file named by --config.
func loadConfig() (*config.Config, error) {
	return config.NewLoader().Load(cfgFile)
}

// newLogger returns the logger selected by --verbose and --log-json.
func newLogger(w io.Writer) ports.Logger {
	level := ports.LevelInfo
	if verbose {
		level = ports.LevelDebug
	}
	return logging.NewConsoleLogger(
		logging.WithOutput(w),
		logging.WithLevel(level),
		logging.WithJSONFormat(logJSON),
	)
}

// formatError returns a user-friendly error message.
// With verbose=false: shows only the user message and suggestion.
// With verbose=true: also shows the underlying technical error.
func formatError(err error) string {
	var list *config.ErrorList
	if errors.As(err, &list) && list.Len() == 1 {
		return formatError(list.Errors()[0])
	}
	if errors.As(err, &list) && list.Len() > 1 {
		var b strings.Builder
		fmt.Fprintf(&b, "%d configuration problems:", list.Len())
		for _, e := range list.Errors() {
			fmt.Fprintf(&b, "\n  - %s", formatError(e))
		}
		return b.String()
	}

	var userErr *config.UserError
	if errors.As(err, &userErr) {
		msg := userErr.Message
		if userErr.Context != "" && userErr.Context != fieldOf(userErr.Message) {
			msg += fmt.Sprintf(" (at %s)", userErr.Context)
		}
		if userErr.Suggestion != "" {
			msg += fmt.Sprintf("\n\nSuggestion: %s", userErr.Suggestion)
		}
		if verbose && userErr.Underlying != nil {
			msg += fmt.Sprintf("\n\nTechnical details: %v", userErr.Underlying)
		}
		return msg
	}

	var compErr *compilation.Error
	if errors.As(err, &compErr) {
		msg := compErr.Message
		if compErr.Block != "" {
			msg += fmt.Sprintf(" (block %s)", compErr.Block)
		}
		if compErr.Underlying != nil {
			msg += fmt.Sprintf(": %v", compErr.Underlying)
		}
		if compErr.Suggestion != "" {
			msg += fmt.Sprintf("\n\nSuggestion: %s", compErr.Suggestion)
		}
		return msg
	}
	return err.Error()
}

// fieldOf returns the "field" prefix of a validation message.
func fieldOf(message string) string {
	field, _, _ := strings.Cut(message, ":")
	return field
}

// printError prints an error message to stderr with proper formatting.
func printError(err error) {
	printErrorTo(os.Stderr, err)
}

// printErrorTo prints an error message to the given writer.
func printErrorTo(w io.Writer, err error) {
	_, _ = fmt.Fprintf(w, "%s %s\n", styles.Error.Render("Error:"), formatError(err))
}
