package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vincent-petithory/dataurl"
)

var (
	errUploadTooLarge = errors.New("photo is too large")
	errUploadType     = errors.New("photo must be a JPG, PNG or WebP image")
)

var uploadTypes = []string{"image/jpeg", "image/jpg", "image/png", "image/webp"}

type ImageInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type FileInfo struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
	Image      ImageInfo `json:"image"`
}

type Directory struct {
	Name  string     `json:"name"`
	Files []FileInfo `json:"files"`
}

// walkImages lists the images under rootPath that the crop command can read.
// Output directories written by earlier runs are skipped.
func walkImages(rootPath string) (Directory, error) {
	extensions := []string{".jpg", ".jpeg", ".png", ".webp"}
	var files []FileInfo

	if err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != rootPath && d.Name() == "output" {
				return filepath.SkipDir
			}
			return nil
		}
		if !slices.Contains(extensions, strings.ToLower(filepath.Ext(path))) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info: %w", err)
		}
		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}
		files = append(files, FileInfo{
			Name:       relPath,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	}); err != nil {
		return Directory{}, err
	}

	for i := range files {
		img, err := readImageInfo(filepath.Join(rootPath, files[i].Name))
		if err != nil {
			log.Ctx(context.Background()).Error().Err(err).Str("filename", files[i].Name).Msg("cannot read image dimensions")
			continue
		}
		files[i].Image = img
	}

	return Directory{
		Name:  filepath.Base(rootPath),
		Files: files,
	}, nil
}

// readImageInfo reads only the image header.
func readImageInfo(filePath string) (ImageInfo, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to read image header: %w", err)
	}
	return ImageInfo{Width: cfg.Width, Height: cfg.Height}, nil
}

// checkUpload applies the upload limits of the forms to a photo given as a data
// URL: at most maxBytes of image data (no limit when maxBytes <= 0), a JPEG,
// PNG or WebP media type, and a readable header.
func checkUpload(dataURL string, maxBytes int64) (ImageInfo, error) {
	du, err := dataurl.DecodeString(dataURL)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: %w", errUploadType, err)
	}
	if maxBytes > 0 && int64(len(du.Data)) > maxBytes {
		return ImageInfo{}, fmt.Errorf("%w: %d bytes, limit is %d", errUploadTooLarge, len(du.Data), maxBytes)
	}
	if !slices.Contains(uploadTypes, strings.ToLower(du.ContentType())) {
		return ImageInfo{}, fmt.Errorf("%w: got %s", errUploadType, du.ContentType())
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(du.Data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: %w", errUploadType, err)
	}
	log.Debug().Str("format", format).Int("width", cfg.Width).Int("height", cfg.Height).Msg("upload accepted")
	return ImageInfo{Width: cfg.Width, Height: cfg.Height}, nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	go cmd.Wait()
	return nil
}
