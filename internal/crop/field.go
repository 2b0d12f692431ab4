package crop

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Field is the photo input of one upload form. It holds at most one open
// session and the last confirmed result. A failed or cancelled session never
// changes the current result.
type Field struct {
	Name string

	rasterizer *Rasterizer
	aspect     Aspect

	mu      sync.Mutex
	session *Session
	current *Result
}

func NewField(name string, r *Rasterizer, aspect Aspect) *Field {
	return &Field{
		Name:       name,
		rasterizer: r,
		aspect:     aspect,
	}
}

// Begin opens a crop session over the image in dataURL.
func (f *Field) Begin(ctx context.Context, dataURL string) (View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session != nil {
		return f.session.View(), ErrSessionOpen
	}
	s := NewSession(f.rasterizer, f.aspect)
	if err := s.Begin(ctx, dataURL); err != nil {
		return View{}, err
	}
	f.session = s
	w, h := s.Bounds()
	log.Ctx(ctx).Debug().
		Str("field", f.Name).
		Int("width", w).
		Int("height", h).
		Msg("crop session opened")
	return s.View(), nil
}

func (f *Field) Drag(dx, dy float64) (View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return View{}, ErrNotOpen
	}
	f.session.Drag(dx, dy)
	return f.session.View(), nil
}

func (f *Field) SetZoom(z float64) (View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return View{}, ErrNotOpen
	}
	f.session.SetZoom(z)
	return f.session.View(), nil
}

// Focus centers the open session on the region f finds. When f finds nothing
// the rectangle is left where it was.
func (f *Field) Focus(ctx context.Context, finder Finder) (View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return View{}, ErrNotOpen
	}
	if err := f.session.Find(ctx, finder); err != nil {
		return f.session.View(), err
	}
	return f.session.View(), nil
}

// View returns the open session's view, or a closed view.
func (f *Field) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return View{State: Closed, Zoom: MinZoom}
	}
	return f.session.View()
}

// Confirm rasterizes the open session. On success the new result replaces the
// current one and the superseded preview URL is revoked. On failure the
// session stays open and the current result is kept.
func (f *Field) Confirm(ctx context.Context) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, ErrNotOpen
	}
	res, err := f.session.Confirm(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("field", f.Name).Msg("crop failed")
		return nil, err
	}
	f.session = nil
	if f.current != nil && f.rasterizer.Blobs != nil {
		f.rasterizer.Blobs.Revoke(f.current.URL)
	}
	f.current = res
	return res, nil
}

// Cancel closes the open session, if any.
func (f *Field) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session != nil {
		f.session.Cancel()
		f.session = nil
	}
}

// Current returns the last confirmed result, or nil.
func (f *Field) Current() *Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Clear drops the current result and revokes its preview URL.
func (f *Field) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != nil && f.rasterizer.Blobs != nil {
		f.rasterizer.Blobs.Revoke(f.current.URL)
	}
	f.current = nil
}
