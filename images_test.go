package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vincent-petithory/dataurl"
)

func TestWalkImages(t *testing.T) {
	root := t.TempDir()
	writeTestImage(t, filepath.Join(root, "a.jpg"), 30, 20)
	writeTestImage(t, filepath.Join(root, "nested", "b.PNG"), 10, 40)
	writeTestImage(t, filepath.Join(root, "output", "old.jpg"), 5, 5)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hi"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.jpg"), []byte("nope"), 0644))

	dir, err := walkImages(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(root), dir.Name)

	byName := map[string]FileInfo{}
	for _, f := range dir.Files {
		byName[f.Name] = f
	}
	require.Len(t, byName, 3)
	assert.Equal(t, ImageInfo{Width: 30, Height: 20}, byName["a.jpg"].Image)
	assert.Equal(t, ImageInfo{Width: 10, Height: 40}, byName[filepath.Join("nested", "b.PNG")].Image)
	assert.Equal(t, ImageInfo{}, byName["broken.jpg"].Image, "unreadable headers are logged and skipped")
	assert.Positive(t, byName["a.jpg"].SizeBytes)
}

func TestCheckUpload(t *testing.T) {
	photo := pngDataURL(t, 64, 48)

	info, err := checkUpload(photo, 0)
	require.NoError(t, err)
	assert.Equal(t, ImageInfo{Width: 64, Height: 48}, info)

	_, err = checkUpload(photo, 10)
	assert.ErrorIs(t, err, errUploadTooLarge)

	_, err = checkUpload(dataurl.New([]byte("GIF89a"), "image/gif").String(), 0)
	assert.ErrorIs(t, err, errUploadType)

	_, err = checkUpload("not a data url", 0)
	assert.ErrorIs(t, err, errUploadType)

	_, err = checkUpload(dataurl.New([]byte("garbage"), "image/jpeg").String(), 0)
	assert.ErrorIs(t, err, errUploadType)
}
