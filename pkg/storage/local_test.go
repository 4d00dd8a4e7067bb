package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	info, err := s.Upload(ctx, &UploadRequest{
		Key:         "settlements/roi/2026-02-01/run.json",
		Reader:      strings.NewReader(`{"job":"roi"}`),
		ContentType: "application/json",
		Metadata:    map[string]string{"job": "roi"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(21), info.Size)
	assert.Equal(t, "roi", info.Metadata["job"])

	resp, err := s.Download(ctx, "settlements/roi/2026-02-01/run.json")
	require.NoError(t, err)
	defer resp.Reader.Close()
	body, err := io.ReadAll(resp.Reader)
	require.NoError(t, err)
	assert.Equal(t, `{"job":"roi"}`, string(body))
	assert.Equal(t, "application/json", resp.ContentType)
}

func TestLocalStorage_ListFiles(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)

	for _, key := range []string{"r/b/2.json", "r/a/1.json", "r/b/1.json", "other/x.bin"} {
		_, err := s.Upload(ctx, &UploadRequest{Key: key, Reader: strings.NewReader("x")})
		require.NoError(t, err)
	}
	// a leftover temp file from an interrupted upload is not listed
	require.NoError(t, os.WriteFile(filepath.Join(base, "r", "b", ".upload-123"), []byte("x"), 0o600))

	files, err := s.ListFiles(ctx, "r/b/")
	require.NoError(t, err)
	keys := make([]string, 0, len(files))
	for _, f := range files {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"r/b/1.json", "r/b/2.json"}, keys)

	all, err := s.ListFiles(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "application/octet-stream", all[0].ContentType)
}

func TestLocalStorage_KeysStayUnderBase(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	base := filepath.Join(root, "reports")
	s, err := NewLocalStorage(base)
	require.NoError(t, err)

	_, err = s.Upload(ctx, &UploadRequest{Key: "../../escape.json", Reader: strings.NewReader("x")})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(base, "escape.json"))
	assert.NoFileExists(t, filepath.Join(root, "escape.json"))

	_, err = s.Upload(ctx, &UploadRequest{Key: "/", Reader: strings.NewReader("x")})
	assert.Error(t, err)

	_, err = s.Download(ctx, "missing.json")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
