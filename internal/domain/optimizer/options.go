// Package optimizer merges compiled block stylesheets into one artifact,
// removing unused rules, shortening class names and minifying output.
package optimizer

// Options controls which optimizer passes run.
type Options struct {
	Enabled       bool
	RemoveUnused  bool
	RewriteIdents bool
	Minify        bool
	SourceMap     bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Enabled:      true,
		RemoveUnused: true,
		Minify:       true,
		SourceMap:    true,
	}
}

// UserOptions holds configured overrides. Nil fields keep the default.
type UserOptions struct {
	Enabled       *bool `yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	RemoveUnused  *bool `yaml:"removeUnused,omitempty" toml:"removeUnused,omitempty"`
	RewriteIdents *bool `yaml:"rewriteIdents,omitempty" toml:"rewriteIdents,omitempty"`
	Minify        *bool `yaml:"minify,omitempty" toml:"minify,omitempty"`
	SourceMap     *bool `yaml:"sourceMap,omitempty" toml:"sourceMap,omitempty"`
}

// Resolve merges the overrides over defaults.
func (u UserOptions) Resolve(defaults Options) Options {
	out := defaults
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&out.Enabled, u.Enabled)
	set(&out.RemoveUnused, u.RemoveUnused)
	set(&out.RewriteIdents, u.RewriteIdents)
	set(&out.Minify, u.Minify)
	set(&out.SourceMap, u.SourceMap)
	return out
}

// Capabilities describes what the template analyzer lets the optimizer do.
type Capabilities struct {
	// RewriteIdents is set when every class use in templates is known, so
	// class names can be shortened.
	RewriteIdents bool
	// AnalyzedAttributes lists the template attributes the analyzer reads.
	AnalyzedAttributes []string
}
