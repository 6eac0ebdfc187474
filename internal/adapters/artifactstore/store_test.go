package artifactstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewS3Store_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  S3Config
		want string
	}{
		{name: "endpoint", cfg: S3Config{}, want: "s3 endpoint is required"},
		{name: "credentials", cfg: S3Config{Endpoint: "localhost:9000"}, want: "s3 access key and secret key are required"},
		{name: "bucket", cfg: S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"}, want: "s3 bucket is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewS3Store(tt.cfg)
			require.EqualError(t, err, tt.want)
		})
	}
}

func TestNewS3Store(t *testing.T) {
	t.Parallel()

	s, err := NewS3Store(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "css", Prefix: "/site/"})
	require.NoError(t, err)
	assert.Equal(t, "css", s.Bucket())
	assert.Equal(t, DefaultRegion, s.region)
	assert.Equal(t, "site", s.prefix)
}

func TestObjectKey(t *testing.T) {
	t.Parallel()

	key, err := objectKey("site", "b1", "/app.css")
	require.NoError(t, err)
	assert.Equal(t, "site/b1/app.css", key)

	key, err = objectKey("", "b1", "nested/app.css")
	require.NoError(t, err)
	assert.Equal(t, "b1/nested/app.css", key)

	_, err = objectKey("", " ", "a")
	assert.Error(t, err)
	_, err = objectKey("", "b", "")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	content := []byte("x")
	require.NoError(t, s.Put(context.Background(), "b", "a.css", content, "text/css"))
	content[0] = 'y'

	obj, ok := s.Get("b", "a.css")
	require.True(t, ok)
	assert.Equal(t, "x", string(obj.Content))
	_, ok = s.Get("b", "missing")
	assert.False(t, ok)
	assert.Error(t, s.Put(context.Background(), "", "a", nil, ""))
}
