package crop

import (
	"context"
	"fmt"
	"image"
	"math"
)

// State of a crop session.
type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	default:
		return "closed"
	}
}

// MarshalText lets State render as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// View is a snapshot of a session for rendering.
type View struct {
	State State     `json:"state"`
	Zoom  float64   `json:"zoom"`
	Rect  Rect      `json:"rect"`
	Image ImageSize `json:"image"`
}

type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Session is the interactive crop controller for one source image.
//
// Geometry is kept in floating point source pixels so that repeated drags and
// zooms do not accumulate rounding error. Rect rounds to whole pixels.
// A Session is not safe for concurrent use; Field serializes access.
type Session struct {
	rasterizer *Rasterizer
	aspect     Aspect

	state  State
	src    image.Image
	width  float64
	height float64

	// base is the rectangle size at zoom 1.
	baseW, baseH float64
	zoom         float64
	// top-left corner and size of the current rectangle
	x, y, w, h float64
}

func NewSession(r *Rasterizer, aspect Aspect) *Session {
	return &Session{
		rasterizer: r,
		aspect:     aspect,
		zoom:       MinZoom,
	}
}

// Begin decodes dataURL and opens the session with a centered rectangle
// covering the largest region of the session's aspect at zoom 1.
func (s *Session) Begin(ctx context.Context, dataURL string) error {
	if s.state == Open {
		return ErrSessionOpen
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	img, err := DecodeDataURL(dataURL)
	if err != nil {
		return err
	}
	return s.BeginImage(img)
}

// BeginImage opens the session over an already decoded image.
func (s *Session) BeginImage(img image.Image) error {
	if s.state == Open {
		return ErrSessionOpen
	}
	if img == nil {
		return fmt.Errorf("%w: no image", ErrDecode)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("%w: image has no pixels", ErrDecode)
	}

	s.src = img
	s.width, s.height = float64(b.Dx()), float64(b.Dy())
	s.baseW, s.baseH = inscribe(s.width, s.height, s.aspect.Ratio())
	s.zoom = MinZoom
	s.w, s.h = s.baseW, s.baseH
	s.x = (s.width - s.w) / 2
	s.y = (s.height - s.h) / 2
	s.state = Open
	return nil
}

// inscribe returns the largest width x height of the given ratio that fits
// within w x h.
func inscribe(w, h, ratio float64) (float64, float64) {
	if w/h > ratio {
		return h * ratio, h
	}
	return w, w / ratio
}

// Drag pans the rectangle by a pointer delta given in source pixels at zoom 1.
// At higher zoom the same delta moves the rectangle proportionally less.
func (s *Session) Drag(dx, dy float64) {
	if s.state != Open || !finite(dx) || !finite(dy) {
		return
	}
	s.x += dx / s.zoom
	s.y += dy / s.zoom
	s.clamp()
}

// SetZoom changes the zoom level, clamped to [MinZoom, MaxZoom]. The
// rectangle shrinks or grows around its current center.
func (s *Session) SetZoom(z float64) {
	if s.state != Open {
		return
	}
	z = clampZoom(z)
	cx, cy := s.x+s.w/2, s.y+s.h/2
	s.zoom = z
	s.w, s.h = s.baseW/z, s.baseH/z
	s.x, s.y = cx-s.w/2, cy-s.h/2
	s.clamp()
}

// Focus zooms and moves the rectangle so it covers region, padded by
// FocusMargin, centered on it as far as the image allows. region is relative
// to the top-left corner of the source image.
func (s *Session) Focus(region image.Rectangle) error {
	if s.state != Open {
		return ErrNotOpen
	}
	if region.Empty() {
		return ErrNoFocus
	}
	needW := float64(region.Dx()) * FocusMargin
	needH := float64(region.Dy()) * FocusMargin
	if ratio := s.aspect.Ratio(); needW/needH < ratio {
		needW = needH * ratio
	}
	z := clampZoom(s.baseW / needW)
	s.zoom = z
	s.w, s.h = s.baseW/z, s.baseH/z
	cx := float64(region.Min.X+region.Max.X) / 2
	cy := float64(region.Min.Y+region.Max.Y) / 2
	s.x, s.y = cx-s.w/2, cy-s.h/2
	s.clamp()
	return nil
}

// Find runs f over the source image and focuses on the region it returns.
func (s *Session) Find(ctx context.Context, f Finder) error {
	if s.state != Open {
		return ErrNotOpen
	}
	region, err := f.Find(ctx, s.src)
	if err != nil {
		return err
	}
	return s.Focus(region)
}

func clampZoom(z float64) float64 {
	switch {
	case math.IsNaN(z):
		return MinZoom
	case z < MinZoom:
		return MinZoom
	case z > MaxZoom:
		return MaxZoom
	}
	return z
}

func (s *Session) clamp() {
	s.x = math.Max(0, math.Min(s.x, s.width-s.w))
	s.y = math.Max(0, math.Min(s.y, s.height-s.h))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (s *Session) State() State { return s.state }

func (s *Session) Zoom() float64 { return s.zoom }

// Bounds returns the source image size, or zeros when closed.
func (s *Session) Bounds() (width, height int) {
	if s.state != Open {
		return 0, 0
	}
	return int(s.width), int(s.height)
}

// Rect returns the current rectangle rounded to whole pixels. It is at least
// 1x1 and always inside the source image.
func (s *Session) Rect() Rect {
	if s.state != Open {
		return Rect{}
	}
	iw, ih := int(s.width), int(s.height)
	w := min(max(int(math.Round(s.w)), 1), iw)
	h := min(max(int(math.Round(s.h)), 1), ih)
	x := min(max(int(math.Round(s.x)), 0), iw-w)
	y := min(max(int(math.Round(s.y)), 0), ih-h)
	return Rect{X: x, Y: y, Width: w, Height: h}
}

func (s *Session) View() View {
	w, h := s.Bounds()
	return View{
		State: s.state,
		Zoom:  s.zoom,
		Rect:  s.Rect(),
		Image: ImageSize{Width: w, Height: h},
	}
}

// Confirm rasterizes the current rectangle and closes the session. When
// rasterization fails the session stays open and no result is produced.
func (s *Session) Confirm(ctx context.Context) (*Result, error) {
	if s.state != Open {
		return nil, ErrNotOpen
	}
	res, err := s.rasterizer.Rasterize(ctx, s.src, s.Rect())
	if err != nil {
		return nil, err
	}
	s.reset()
	return res, nil
}

// Cancel discards the session without rasterizing.
func (s *Session) Cancel() {
	s.reset()
}

func (s *Session) reset() {
	*s = Session{rasterizer: s.rasterizer, aspect: s.aspect, zoom: MinZoom}
}
