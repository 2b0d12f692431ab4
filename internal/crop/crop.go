// Package crop implements the interactive crop step shared by the upload flows.
//
// A Session tracks a crop rectangle and zoom level over a decoded source image
// and turns drag and zoom input into new geometry. On confirmation the
// Rasterizer copies the selected region into a new JPEG file and registers it
// in a BlobStore so the caller can preview it. A Field is the caller side: it
// owns at most one open session and the last confirmed Result.
package crop

import (
	"errors"
	"fmt"
	"image"
)

const (
	// MinZoom and MaxZoom bound the zoom level of a session.
	MinZoom = 1.0
	MaxZoom = 3.0

	DefaultQuality     = 95
	DefaultFilename    = "cropped.jpg"
	DefaultContentType = "image/jpeg"
)

var (
	ErrDecode      = errors.New("could not load image")
	ErrRasterize   = errors.New("could not rasterize crop")
	ErrOutOfBounds = errors.New("crop rectangle outside image bounds")
	ErrEmptyRect   = errors.New("crop rectangle has zero area")
	ErrSessionOpen = errors.New("a crop session is already open")
	ErrNotOpen     = errors.New("no crop session is open")
)

// Rect is a crop rectangle in source image pixels, relative to the image origin.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) String() string {
	return fmt.Sprintf("rect(x=%d,y=%d,w=%d,h=%d)", r.X, r.Y, r.Width, r.Height)
}

// Empty reports whether r has no pixels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Image returns r as an image.Rectangle translated to origin.
func (r Rect) Image(origin image.Point) image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height).Add(origin)
}

// Within reports whether r lies inside a width x height image.
func (r Rect) Within(width, height int) bool {
	return r.X >= 0 && r.Y >= 0 && r.X+r.Width <= width && r.Y+r.Height <= height
}

// Aspect is the width:height ratio a session keeps its rectangle at.
type Aspect struct {
	Width  int
	Height int
}

var Square = Aspect{Width: 1, Height: 1}

func (a Aspect) Ratio() float64 {
	if a.Width <= 0 || a.Height <= 0 {
		return 1
	}
	return float64(a.Width) / float64(a.Height)
}

func (a Aspect) String() string {
	return fmt.Sprintf("%d:%d", a.Width, a.Height)
}

// Options parametrizes the crop step of one upload flow.
type Options struct {
	Aspect   Aspect
	Quality  int
	Filename string
}

// DefaultOptions returns the square, quality 95 setup both upload flows use.
func DefaultOptions() Options {
	return Options{
		Aspect:   Square,
		Quality:  DefaultQuality,
		Filename: DefaultFilename,
	}
}

// File is an encoded crop ready to be attached to a multipart submission.
type File struct {
	Name        string
	ContentType string
	Data        []byte
	Width       int
	Height      int
}

// Result is the outcome of a confirmed crop.
type Result struct {
	File File
	// URL is a local reference to File.Data usable as a preview source.
	URL string
}
