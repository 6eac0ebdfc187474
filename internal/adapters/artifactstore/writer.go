package artifactstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/blockforge/internal/domain/asset"
	"github.com/felixgeelhaar/blockforge/internal/domain/sourcemap"
	"github.com/felixgeelhaar/blockforge/internal/ports"
)

// publishConcurrency bounds concurrent uploads.
const publishConcurrency = 4

// WriterOptions controls source map output.
type WriterOptions struct {
	// EmitSourceMaps writes <name>.map next to every source-mapped asset and
	// links it with an annotation comment.
	EmitSourceMaps bool
	// InlineSourceMaps embeds the map as a data URL instead. It takes
	// precedence over EmitSourceMaps.
	InlineSourceMaps bool
}

// Written describes one file written to disk.
type Written struct {
	Name        string
	Path        string
	ContentType string
	Size        int
	Digest      string

	content []byte
}

// Writer writes a build's assets to an output directory.
type Writer struct {
	fs   ports.FileSystem
	opts WriterOptions
}

// NewWriter creates a writer.
func NewWriter(fs ports.FileSystem, opts WriterOptions) *Writer {
	return &Writer{fs: fs, opts: opts}
}

// Write writes every asset in name order and returns what was written,
// including emitted map files.
func (w *Writer) Write(outputDir string, assets *asset.Set) ([]Written, error) {
	var written []Written
	for _, name := range assets.Names() {
		a, _ := assets.Get(name)
		content := a.Content()

		if sm := a.SourceMap(); sm != nil {
			switch {
			case w.opts.InlineSourceMaps:
				url, err := sm.DataURL()
				if err != nil {
					return written, fmt.Errorf("encode source map for %s: %w", name, err)
				}
				content = annotate(content, url)
			case w.opts.EmitSourceMaps:
				data, err := sm.JSON()
				if err != nil {
					return written, fmt.Errorf("encode source map for %s: %w", name, err)
				}
				mapName := name + ".map"
				content = annotate(content, filepath.Base(mapName))
				f, err := w.write(outputDir, mapName, data)
				if err != nil {
					return written, err
				}
				written = append(written, f)
			}
		}

		f, err := w.write(outputDir, name, content)
		if err != nil {
			return written, err
		}
		written = append(written, f)
	}
	return written, nil
}

func (w *Writer) write(outputDir, name string, content []byte) (Written, error) {
	path := filepath.Join(outputDir, filepath.FromSlash(name))
	if err := w.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Written{}, fmt.Errorf("create output directory: %w", err)
	}
	if err := w.fs.WriteFile(path, content, 0o644); err != nil {
		return Written{}, fmt.Errorf("write %s: %w", name, err)
	}
	return Written{
		Name:        name,
		Path:        path,
		ContentType: ContentType(name),
		Size:        len(content),
		Digest:      Digest(content),
		content:     content,
	}, nil
}

// Publish uploads written files to store under buildID.
func Publish(ctx context.Context, store ports.ArtifactStore, buildID string, files []Written) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(publishConcurrency)
	for _, f := range files {
		g.Go(func() error {
			if err := store.Put(ctx, buildID, f.Name, f.content, f.ContentType); err != nil {
				return fmt.Errorf("publish %s: %w", f.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Digest returns the hex BLAKE2b-256 digest of content.
func Digest(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ContentType returns the MIME type for an artifact name.
func ContentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".css"):
		return "text/css; charset=utf-8"
	case strings.HasSuffix(name, ".map"):
		return "application/json"
	case strings.HasSuffix(name, ".log"):
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func annotate(content []byte, url string) []byte {
	out := make([]byte, 0, len(content)+len(url)+32)
	out = append(out, content...)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return append(out, sourcemap.Annotation(url)...)
}
