package ports

import "context"

// ArtifactStore receives the artifacts of a finished build, keyed by build
// id and asset name.
type ArtifactStore interface {
	Put(ctx context.Context, buildID, name string, content []byte, contentType string) error
}
