package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/blockforge/internal/domain/entry"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration without building",
	Long: `Validate loads the configuration file, applies the environment and
defaults, and reports every problem it finds.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString(styles.Success.Render("✓") + " " + styles.Title.Render(cfg.Path()) + " is valid\n")
	b.WriteString(row("Name", cfg.Name))
	b.WriteString(row("Entries", fmt.Sprintf("%d", len(entry.Enumerate(cfg.Entry)))))
	b.WriteString(row("Output", cfg.OutputPath()))
	b.WriteString(row("Source maps", sourceMapMode(cfg.Assets.InlineSourceMaps, cfg.Assets.ShouldEmitSourceMaps())))
	if cfg.Publish.S3.Enabled() {
		b.WriteString(row("Publish", fmt.Sprintf("s3://%s/%s", cfg.Publish.S3.Bucket, cfg.Publish.S3.Prefix)))
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), b.String())
	return err
}

func sourceMapMode(inline, emit bool) string {
	switch {
	case inline:
		return "inline"
	case emit:
		return "file"
	default:
		return "off"
	}
}
