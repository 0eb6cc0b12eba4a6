package artifact

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "uploads")

	s, err := NewLocalStore(dir, "/uploads/")
	require.NoError(t, err)

	name, err := s.Save(ctx, "Statement.PDF", strings.NewReader("%PDF-1.4 body"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".pdf"), name)
	assert.Len(t, name, 16+len(".pdf"))

	data, err := s.ReadBytes(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))

	assert.Equal(t, "/uploads/"+name, s.URL(name))
	assert.Equal(t, filepath.Join(dir, name), s.FullPath(name))

	require.NoError(t, s.Delete(ctx, name))
	_, err = os.Stat(filepath.Join(dir, name))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, s.Delete(ctx, name), "second delete is a no-op")
	assert.NoError(t, s.Delete(ctx, ""))
}

func TestLocalStore_UniqueNames(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		name, err := s.Save(context.Background(), "r.jpg", strings.NewReader("x"))
		require.NoError(t, err)
		assert.False(t, seen[name])
		seen[name] = true
	}
}

func TestLocalStore_RejectsEscapingNames(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)
	ctx := context.Background()

	for _, bad := range []string{"../etc/passwd", "a/b.pdf", "..", "."} {
		_, err := s.ReadBytes(ctx, bad)
		assert.Error(t, err, bad)
		assert.Error(t, s.Delete(ctx, bad), bad)
	}
}

func TestLocalStore_ReadMissing(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)

	_, err = s.ReadBytes(context.Background(), "missing.pdf")
	assert.Error(t, err)
}

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://my-bucket/path/to/file.pdf")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "path/to/file.pdf", object)

	for _, bad := range []string{"s3://b/o", "gs://bucket", "gs://bucket/", "gs:///obj"} {
		_, _, err := ParseGCSURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestFilenameFromGCSURI(t *testing.T) {
	tests := map[string]string{
		"gs://bucket/folder/file.pdf": "file.pdf",
		"gs://bucket/file.pdf":        "file.pdf",
		"gs://bucket":                 "bucket",
	}
	for in, want := range tests {
		assert.Equal(t, want, FilenameFromGCSURI(in), in)
	}
}

func TestGCSStore_URL(t *testing.T) {
	s := NewGCSStoreWithClient(nil, "receipts", "/uploads/")
	assert.Equal(t, "gs://receipts/uploads/abc.jpg", s.URL("uploads/abc.jpg"))
	assert.Equal(t, "gs://other/x.jpg", s.URL("gs://other/x.jpg"))

	bucket, object, err := s.locate("uploads/abc.jpg")
	require.NoError(t, err)
	assert.Equal(t, "receipts", bucket)
	assert.Equal(t, "uploads/abc.jpg", object)
}

func TestGCSStore_DeleteEmpty(t *testing.T) {
	s := NewGCSStoreWithClient(nil, "receipts", "")
	assert.NoError(t, s.Delete(context.Background(), ""))
}
