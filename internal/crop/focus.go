package crop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
	"github.com/muesli/smartcrop"
)

// FocusMargin is how much larger than the found region the focused rectangle
// is, so a face keeps some hair and shoulders around it.
const FocusMargin = 1.6

var ErrNoFocus = errors.New("no face found in image")

// Finder locates the region a crop should center on. The region is in pixels
// relative to the top-left corner of src.
type Finder interface {
	Find(ctx context.Context, src image.Image) (image.Rectangle, error)
}

// Finders tries each finder in order and returns the first region found.
type Finders []Finder

func (fs Finders) Find(ctx context.Context, src image.Image) (image.Rectangle, error) {
	for _, f := range fs {
		r, err := f.Find(ctx, src)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrNoFocus) {
			return image.Rectangle{}, err
		}
	}
	return image.Rectangle{}, ErrNoFocus
}

// FaceFinder detects faces with a pigo cascade and picks the most confident one.
type FaceFinder struct {
	classifier *pigo.Pigo

	MinSize     int
	ShiftFactor float64
	ScaleFactor float64
	IoU         float64
	MinQuality  float32
}

// LoadFaceFinder reads a pigo face cascade (e.g. "facefinder") from path.
func LoadFaceFinder(path string) (*FaceFinder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}
	return NewFaceFinder(data)
}

func NewFaceFinder(cascade []byte) (*FaceFinder, error) {
	if len(cascade) == 0 {
		return nil, errors.New("empty face cascade")
	}
	p := pigo.NewPigo()
	classifier, err := p.Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}
	return &FaceFinder{
		classifier:  classifier,
		MinSize:     20,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		IoU:         0.2,
		MinQuality:  5,
	}, nil
}

func (f *FaceFinder) Find(ctx context.Context, src image.Image) (image.Rectangle, error) {
	if err := ctx.Err(); err != nil {
		return image.Rectangle{}, err
	}
	nrgba := pigo.ImgToNRGBA(src)
	pixels := pigo.RgbToGrayscale(nrgba)
	cols, rows := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()

	params := pigo.CascadeParams{
		MinSize:     f.MinSize,
		MaxSize:     min(cols, rows),
		ShiftFactor: f.ShiftFactor,
		ScaleFactor: f.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}
	dets := f.classifier.RunCascade(params, 0.0)
	dets = f.classifier.ClusterDetections(dets, f.IoU)
	return bestFace(dets, f.MinQuality)
}

// bestFace returns the square around the detection with the highest quality.
func bestFace(dets []pigo.Detection, minQuality float32) (image.Rectangle, error) {
	best := -1
	for i, d := range dets {
		if d.Q < minQuality || d.Scale <= 0 {
			continue
		}
		if best < 0 || d.Q > dets[best].Q {
			best = i
		}
	}
	if best < 0 {
		return image.Rectangle{}, ErrNoFocus
	}
	d := dets[best]
	half := d.Scale / 2
	return image.Rect(d.Col-half, d.Row-half, d.Col+half, d.Row+half), nil
}

// SmartFinder picks the most interesting region by edge, skin and saturation
// scoring. It always finds something, so it works as the last finder.
type SmartFinder struct {
	Aspect Aspect
}

func (f SmartFinder) Find(ctx context.Context, src image.Image) (image.Rectangle, error) {
	if err := ctx.Err(); err != nil {
		return image.Rectangle{}, err
	}
	w, h := f.Aspect.Width, f.Aspect.Height
	if w <= 0 || h <= 0 {
		w, h = 1, 1
	}
	analyzer := smartcrop.NewAnalyzer(resizer{})
	r, err := analyzer.FindBestCrop(src, w, h)
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("finding best crop: %w", err)
	}
	b := src.Bounds()
	if r.In(b) {
		r = r.Sub(b.Min)
	}
	if r.Empty() {
		return image.Rectangle{}, ErrNoFocus
	}
	return r, nil
}

type resizer struct{}

func (resizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), imaging.Lanczos)
}
