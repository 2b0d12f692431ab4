package crop

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vincent-petithory/dataurl"
)

func TestRasterizeDimensions(t *testing.T) {
	src := createTestImage(800, 600)
	r := NewRasterizer(NewBlobStore("/api/blobs/"), DefaultOptions())

	rects := []Rect{
		{X: 0, Y: 0, Width: 600, Height: 600},
		{X: 350, Y: 150, Width: 300, Height: 300},
		{X: 799, Y: 599, Width: 1, Height: 1},
		{X: 10, Y: 20, Width: 400, Height: 100},
	}
	for _, rect := range rects {
		t.Run(rect.String(), func(t *testing.T) {
			first, err := r.Rasterize(context.Background(), src, rect)
			require.NoError(t, err)
			second, err := r.Rasterize(context.Background(), src, rect)
			require.NoError(t, err)

			for _, res := range []*Result{first, second} {
				cfg, err := jpeg.DecodeConfig(bytes.NewReader(res.File.Data))
				require.NoError(t, err)
				assert.Equal(t, rect.Width, cfg.Width)
				assert.Equal(t, rect.Height, cfg.Height)
				assert.Equal(t, rect.Width, res.File.Width)
				assert.Equal(t, rect.Height, res.File.Height)
			}
			assert.NotEqual(t, first.URL, second.URL)
		})
	}
}

func TestRasterizeCopiesRegion(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			c := color.RGBA{0, 0, 0, 255}
			if x >= 20 {
				c = color.RGBA{255, 255, 255, 255}
			}
			src.Set(x, y, c)
		}
	}
	r := NewRasterizer(nil, DefaultOptions())

	res, err := r.Rasterize(context.Background(), src, Rect{X: 24, Y: 4, Width: 16, Height: 16})
	require.NoError(t, err)

	out, err := jpeg.Decode(bytes.NewReader(res.File.Data))
	require.NoError(t, err)
	cr, cg, cb, _ := out.At(8, 8).RGBA()
	assert.Greater(t, cr>>8, uint32(200))
	assert.Greater(t, cg>>8, uint32(200))
	assert.Greater(t, cb>>8, uint32(200))
}

func TestRasterizeRespectsImageOrigin(t *testing.T) {
	full := createTestImage(100, 100)
	sub := full.SubImage(image.Rect(50, 50, 100, 100))
	r := NewRasterizer(nil, DefaultOptions())

	res, err := r.Rasterize(context.Background(), sub, Rect{X: 0, Y: 0, Width: 50, Height: 50})
	require.NoError(t, err)
	assert.Equal(t, 50, res.File.Width)

	_, err = r.Rasterize(context.Background(), sub, Rect{X: 50, Y: 50, Width: 10, Height: 10})
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestRasterizeRejectsBadRects(t *testing.T) {
	src := createTestImage(100, 80)
	r := NewRasterizer(nil, DefaultOptions())

	tests := []struct {
		name string
		rect Rect
		want error
	}{
		{name: "negative origin", rect: Rect{X: -1, Y: 0, Width: 10, Height: 10}, want: ErrOutOfBounds},
		{name: "past right edge", rect: Rect{X: 95, Y: 0, Width: 10, Height: 10}, want: ErrOutOfBounds},
		{name: "past bottom edge", rect: Rect{X: 0, Y: 1, Width: 80, Height: 80}, want: ErrOutOfBounds},
		{name: "zero width", rect: Rect{X: 0, Y: 0, Width: 0, Height: 10}, want: ErrEmptyRect},
		{name: "negative height", rect: Rect{X: 0, Y: 0, Width: 10, Height: -3}, want: ErrEmptyRect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Rasterize(context.Background(), src, tt.rect)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRasterizeEncoderFailure(t *testing.T) {
	blobs := NewBlobStore("/api/blobs/")
	r := NewRasterizer(blobs, DefaultOptions())
	r.Encoder = EncoderFunc(func(w io.Writer, img image.Image) error {
		return assert.AnError
	})

	res, err := r.Rasterize(context.Background(), createTestImage(10, 10), Rect{Width: 10, Height: 10})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrRasterize)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, blobs.Len())
}

func TestRasterizeEmptyOutput(t *testing.T) {
	r := NewRasterizer(nil, DefaultOptions())
	r.Encoder = EncoderFunc(func(w io.Writer, img image.Image) error { return nil })

	_, err := r.Rasterize(context.Background(), createTestImage(10, 10), Rect{Width: 10, Height: 10})
	assert.ErrorIs(t, err, ErrRasterize)
}

func TestRasterizeCancelledContext(t *testing.T) {
	r := NewRasterizer(nil, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Rasterize(ctx, createTestImage(10, 10), Rect{Width: 10, Height: 10})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRasterizeDataURLWithoutStore(t *testing.T) {
	r := NewRasterizer(nil, DefaultOptions())
	res, err := r.Rasterize(context.Background(), createTestImage(10, 10), Rect{Width: 10, Height: 10})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.URL, "data:image/jpeg"))

	du, err := dataurl.DecodeString(res.URL)
	require.NoError(t, err)
	assert.Equal(t, res.File.Data, du.Data)
}

func TestNewRasterizerDefaults(t *testing.T) {
	r := NewRasterizer(nil, Options{Quality: 250})
	assert.Equal(t, JPEGEncoder{Quality: DefaultQuality}, r.Encoder)
	assert.Equal(t, DefaultFilename, r.Filename)
	assert.Equal(t, DefaultContentType, r.ContentType)

	r = NewRasterizer(nil, Options{Quality: 70, Filename: "face.jpg"})
	assert.Equal(t, JPEGEncoder{Quality: 70}, r.Encoder)
	assert.Equal(t, "face.jpg", r.Filename)
}
