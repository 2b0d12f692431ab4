package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"facecrop/internal/crop"
)

// SessionCropper implements Cropper with the same session and rasterizer the
// upload forms use, so batch output matches what the web UI would produce.
type SessionCropper struct {
	Options crop.Options
	// Finder serves selections with Focus set. When nil they stay centered.
	Finder crop.Finder
}

func NewSessionCropper(opts crop.Options, finder crop.Finder) *SessionCropper {
	return &SessionCropper{Options: opts, Finder: finder}
}

// Crop decodes the image from r and writes the selected region to w as JPEG.
// An explicit rectangle is rasterized as given and fails when it does not fit
// the image. Without one a crop session is opened, focused, zoomed and panned.
func (c *SessionCropper) Crop(ctx context.Context, r io.Reader, w io.Writer, sel Selection) error {
	src, err := crop.Decode(r)
	if err != nil {
		return err
	}

	// no blob store: batch results are written straight to w
	rasterizer := crop.NewRasterizer(nil, c.Options)

	var res *crop.Result
	if sel.Rect != nil {
		res, err = rasterizer.Rasterize(ctx, src, *sel.Rect)
	} else {
		s := crop.NewSession(rasterizer, c.Options.Aspect)
		if err := s.BeginImage(src); err != nil {
			return err
		}
		if sel.Focus && c.Finder != nil {
			if err := s.Find(ctx, c.Finder); err != nil {
				if !errors.Is(err, crop.ErrNoFocus) {
					return err
				}
				log.Ctx(ctx).Warn().Msg("no face found, keeping the centered crop")
			}
		}
		if sel.Zoom != 0 {
			s.SetZoom(sel.Zoom)
		}
		s.Drag(sel.PanX, sel.PanY)
		res, err = s.Confirm(ctx)
	}
	if err != nil {
		return err
	}

	if _, err := w.Write(res.File.Data); err != nil {
		return fmt.Errorf("failed to write cropped image: %w", err)
	}
	return nil
}
