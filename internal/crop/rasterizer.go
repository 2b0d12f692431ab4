package crop

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
	"github.com/vincent-petithory/dataurl"
)

// Encoder writes img to w in some encoded form.
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
}

// EncoderFunc adapts a function to the Encoder interface.
type EncoderFunc func(w io.Writer, img image.Image) error

func (f EncoderFunc) Encode(w io.Writer, img image.Image) error {
	return f(w, img)
}

// JPEGEncoder encodes through imaging at a fixed quality (1-100).
type JPEGEncoder struct {
	Quality int
}

func (e JPEGEncoder) Encode(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(e.Quality))
}

// Rasterizer renders a crop rectangle of a source image into a new file.
type Rasterizer struct {
	Encoder     Encoder
	Filename    string
	ContentType string
	// Blobs issues preview URLs. When nil, the URL is a data URL of the file.
	Blobs *BlobStore
}

// NewRasterizer returns a JPEG rasterizer for opts.
func NewRasterizer(blobs *BlobStore, opts Options) *Rasterizer {
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	name := opts.Filename
	if name == "" {
		name = DefaultFilename
	}
	return &Rasterizer{
		Encoder:     JPEGEncoder{Quality: quality},
		Filename:    name,
		ContentType: DefaultContentType,
		Blobs:       blobs,
	}
}

// Rasterize copies the pixels of src inside r, at 1:1 scale, into a new
// encoded file. r must lie inside src; it is never clamped here.
func (z *Rasterizer) Rasterize(ctx context.Context, src image.Image, r Rect) (*Result, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no source image", ErrRasterize)
	}
	if r.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrEmptyRect, r)
	}
	bounds := src.Bounds()
	if !r.Within(bounds.Dx(), bounds.Dy()) {
		return nil, fmt.Errorf("%w: %s not within %dx%d", ErrOutOfBounds, r, bounds.Dx(), bounds.Dy())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cropped := imaging.Crop(src, r.Image(bounds.Min))
	if cropped.Bounds().Dx() != r.Width || cropped.Bounds().Dy() != r.Height {
		return nil, fmt.Errorf("%w: surface is %dx%d, want %dx%d",
			ErrRasterize, cropped.Bounds().Dx(), cropped.Bounds().Dy(), r.Width, r.Height)
	}

	var buf bytes.Buffer
	if err := z.Encoder.Encode(&buf, cropped); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRasterize, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: encoder produced no data", ErrRasterize)
	}

	file := File{
		Name:        z.Filename,
		ContentType: z.ContentType,
		Data:        buf.Bytes(),
		Width:       r.Width,
		Height:      r.Height,
	}

	var url string
	if z.Blobs != nil {
		url = z.Blobs.Put(file.ContentType, file.Data)
	} else {
		url = dataurl.New(file.Data, file.ContentType).String()
	}

	log.Ctx(ctx).Debug().
		Stringer("rect", r).
		Int("bytes", len(file.Data)).
		Str("url", url).
		Msg("rasterized crop")

	return &Result{File: file, URL: url}, nil
}
