package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/blockforge/internal/app"
	"github.com/felixgeelhaar/blockforge/internal/domain/compilation"
)

var buildJSON bool

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Compile the configured entries into one stylesheet",
	Long: `Build analyzes the configured entries, compiles every block they use
and writes the optimized stylesheet to the output directory.

Examples:
  blockforge build
  blockforge build --config blockforge.toml
  blockforge build --json`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&buildJSON, "json", false, "print the build report as JSON")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	bf, err := app.New(cfg, app.WithLogger(newLogger(cmd.ErrOrStderr())))
	if err != nil {
		return err
	}
	defer bf.Close()

	report, buildErr := bf.Build(commandContext(cmd))
	state := compilation.StateCompleted
	if buildErr != nil {
		state = compilation.StateFailed
	}
	if report != nil {
		if buildJSON {
			if err := writeReportJSON(cmd.OutOrStdout(), report, state); err != nil {
				return err
			}
		} else {
			writeReport(cmd.OutOrStdout(), report, state)
		}
	}
	return buildErr
}

// writeReport prints a human-readable build summary.
func writeReport(w io.Writer, r *app.Report, state compilation.State) {
	var b strings.Builder
	b.WriteString(styles.Title.Render("Build "+shortID(r.ID)) + " " + stateLabel(state) + "\n")
	b.WriteString(row("Output", r.Output))
	if len(r.Blocks) > 0 {
		b.WriteString(row("Blocks", strings.Join(r.Blocks, ", ")))
	}
	for _, f := range r.Written {
		b.WriteString(row("Wrote", fmt.Sprintf("%s %s", f.Name, styles.Muted.Render(fmt.Sprintf("(%d bytes, %s)", f.Size, shortID(f.Digest))))))
	}
	if r.Published {
		b.WriteString(row("Published", styles.Success.Render("yes")))
	}
	if verbose {
		for _, a := range r.Actions {
			b.WriteString(row("Action", styles.Muted.Render(a)))
		}
		b.WriteString(row("Classes", fmt.Sprintf("%d mapped", len(r.Classes))))
		b.WriteString(row("Depends on", fmt.Sprintf("%d files", len(r.FileDependencies))))
	}
	for _, e := range r.Errors {
		b.WriteString(row("Error", styles.Error.Render(formatError(e))))
	}
	b.WriteString(row("Duration", r.Duration.Round(time.Millisecond).String()))
	_, _ = io.WriteString(w, b.String())
}

type jsonFile struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Digest      string `json:"digest"`
}

type jsonReport struct {
	ID               string            `json:"id"`
	State            string            `json:"state"`
	Output           string            `json:"output"`
	Files            []jsonFile        `json:"files"`
	Published        bool              `json:"published"`
	Blocks           []string          `json:"blocks"`
	Modules          []string          `json:"modules,omitempty"`
	Classes          map[string]string `json:"classes,omitempty"`
	Actions          []string          `json:"actions,omitempty"`
	FileDependencies []string          `json:"fileDependencies"`
	Errors           []string          `json:"errors,omitempty"`
	DurationMS       int64             `json:"durationMs"`
}

func writeReportJSON(w io.Writer, r *app.Report, state compilation.State) error {
	out := jsonReport{
		ID:               r.ID,
		State:            string(state),
		Output:           r.Output,
		Files:            []jsonFile{},
		Published:        r.Published,
		Blocks:           r.Blocks,
		Modules:          r.Modules,
		Classes:          r.Classes,
		Actions:          r.Actions,
		FileDependencies: r.FileDependencies,
		DurationMS:       r.Duration.Milliseconds(),
	}
	for _, f := range r.Written {
		out.Files = append(out.Files, jsonFile{
			Name:        f.Name,
			Path:        f.Path,
			ContentType: f.ContentType,
			Size:        f.Size,
			Digest:      f.Digest,
		})
	}
	for _, e := range r.Errors {
		out.Errors = append(out.Errors, e.Error())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// commandContext returns the command's context or a background context.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
