package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
)

// SupportedMajor is the config schema major version this build reads.
const SupportedMajor = "v1"

// Validate reports every problem in a defaulted config as an ErrorList.
func Validate(c *Config) error {
	errs := NewErrorList()

	version := c.Version
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	switch {
	case !semver.IsValid(version):
		errs.AddValidation("version", fmt.Sprintf("%q is not a semantic version", c.Version), "Use version: v1.")
	case semver.Major(version) != SupportedMajor:
		errs.AddValidation("version", fmt.Sprintf("major version %s is not supported", semver.Major(version)),
			fmt.Sprintf("This build reads %s configurations.", SupportedMajor))
	}

	if c.Entry.IsZero() {
		errs.AddValidation("entry", "no entries declared", "List the templates or block files to compile under entry.")
	}

	if c.OutputCSSFile != filepath.Base(c.OutputCSSFile) {
		errs.AddValidation("outputCssFile", "must be a file name, not a path", "Use outputDir to choose the directory.")
	} else if filepath.Ext(c.OutputCSSFile) != ".css" {
		errs.AddValidation("outputCssFile", "must end in .css", "")
	}

	for i, ext := range c.Blocks.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs.AddValidation(fmt.Sprintf("blocks.extensions[%d]", i), fmt.Sprintf("%q must start with a dot", ext), "Use an extension such as .block.css.")
		}
	}
	if c.Blocks.MaxConcurrency < 1 {
		errs.AddValidation("blocks.maxConcurrency", "must be at least 1", "")
	}
	if c.Blocks.CacheSize < 1 {
		errs.AddValidation("blocks.cacheSize", "must be at least 1", "")
	}

	s3 := c.Publish.S3
	if s3.Bucket != "" && s3.Endpoint == "" {
		errs.AddValidation("publish.s3.endpoint", "required when a bucket is set", "")
	}
	if s3.Enabled() && (s3.AccessKey == "" || s3.SecretKey == "") {
		errs.AddValidation("publish.s3", "credentials are missing",
			fmt.Sprintf("Set %s and %s in the environment or a .env file.", EnvS3AccessKey, EnvS3SecretKey))
	}

	if c.Watch.Interval <= 0 {
		errs.AddValidation("watch.interval", "must be positive", "")
	}
	if c.Watch.Debounce < 0 {
		errs.AddValidation("watch.debounce", "must not be negative", "")
	}

	return errs.AsError()
}
