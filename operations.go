package main

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"facecrop/internal/crop"
)

type Operations = []Operation

type Operation struct {
	Crop *CropOperation
	Pick *PickOperation
}

// UnmarshalJSON picks the variant named by the "type" field, "crop" or "pick".
func (o *Operation) UnmarshalJSON(data []byte) error {
	var op struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &op); err != nil {
		return fmt.Errorf("failed to unmarshal operation: %w", err)
	}

	switch op.Type {
	case "crop":
		var c CropOperation
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("failed to unmarshal crop operation: %w", err)
		}
		o.Crop = &c
	case "pick":
		var pick PickOperation
		if err := json.Unmarshal(data, &pick); err != nil {
			return fmt.Errorf("failed to unmarshal pick operation: %w", err)
		}
		o.Pick = &pick
	default:
		return fmt.Errorf("unknown operation %q", op.Type)
	}
	return nil
}

func (o Operation) MarshalJSON() ([]byte, error) {
	switch {
	case o.Crop != nil:
		return json.Marshal(struct {
			Type string `json:"type"`
			*CropOperation
		}{"crop", o.Crop})
	case o.Pick != nil:
		return json.Marshal(struct {
			Type string `json:"type"`
			*PickOperation
		}{"pick", o.Pick})
	}
	return nil, fmt.Errorf("empty operation")
}

// Selection picks the region of an image to keep. With Rect set the region is
// taken as is; otherwise a crop session starts from the largest centered
// rectangle, optionally focuses on a face, then applies Zoom and the Pan
// offsets like interactive input.
type Selection struct {
	Rect  *crop.Rect `json:"rect,omitempty"`
	Focus bool       `json:"focus,omitempty"`
	Zoom  float64    `json:"zoom,omitempty"`
	PanX  float64    `json:"pan_x,omitempty"`
	PanY  float64    `json:"pan_y,omitempty"`
}

func (s Selection) String() string {
	if s.Rect != nil {
		return s.Rect.String()
	}
	if s.Focus {
		return fmt.Sprintf("session(focus,zoom=%.2f,pan=%.2f,%.2f)", s.Zoom, s.PanX, s.PanY)
	}
	return fmt.Sprintf("session(zoom=%.2f,pan=%.2f,%.2f)", s.Zoom, s.PanX, s.PanY)
}

func (s Selection) ID() string {
	m := md5.New()
	_, err := m.Write([]byte(s.String()))
	if err != nil {
		log.Error().Err(err).Msg("failed to hash selection string")
		return ""
	}
	return fmt.Sprintf("%x", m.Sum(nil))
}

type CropOperation struct {
	Filename  string `json:"filename"`
	Selection `json:"selection"`
}

type PickOperation struct {
	Filename string `json:"filename"`
}

// Cropper writes the selected region of the image read from r to w.
type Cropper interface {
	Crop(ctx context.Context, r io.Reader, w io.Writer, sel Selection) error
}

type OperationExecutor struct {
	BaseDir   string
	OutputDir string
	Cropper   Cropper
}

func (r OperationExecutor) Exec(ctx context.Context, ops []Operation) error {
	if len(ops) == 0 {
		log.Ctx(ctx).Warn().Msg("no operations to execute")
		return nil
	}

	pooler := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(runtime.NumCPU())

	if err := os.MkdirAll(r.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", r.OutputDir, err)
	}
	for _, op := range ops {
		pooler.Go(func(ctx context.Context) error {
			if err := r.executeOperation(ctx, op); err != nil {
				log.Ctx(ctx).Error().Err(err).
					Interface("op", op).
					Msg("failed to execute operation")
				return err
			}
			return nil
		})
	}

	if err := pooler.Wait(); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Msg("finished with errors")
		return err
	}

	log.Ctx(ctx).Info().Int("count", len(ops)).Str("output", r.OutputDir).Msg("done")
	return nil
}

func (r OperationExecutor) executeOperation(ctx context.Context, op Operation) error {
	if op.Crop != nil {
		return r.executeCrop(ctx, *op.Crop)
	} else if op.Pick != nil {
		return r.executePick(ctx, *op.Pick)
	}
	return nil
}

func (r OperationExecutor) executeCrop(ctx context.Context, op CropOperation) error {
	log.Ctx(ctx).Info().Str("filename", op.Filename).Stringer("selection", op.Selection).Msg("cropping")
	src, err := os.Open(filepath.Join(r.BaseDir, op.Filename))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", op.Filename, err)
	}
	defer src.Close()

	base := strings.TrimSuffix(filepath.Base(op.Filename), filepath.Ext(op.Filename))
	name := fmt.Sprintf("%s-%s.jpg", base, op.Selection.ID())
	return r.writeOutput(name, func(w io.Writer) error {
		if err := r.Cropper.Crop(ctx, src, w, op.Selection); err != nil {
			return fmt.Errorf("failed to crop %s: %w", op.Filename, err)
		}
		return nil
	})
}

func (r OperationExecutor) executePick(ctx context.Context, op PickOperation) error {
	log.Ctx(ctx).Info().Str("filename", op.Filename).Msg("picking")
	src, err := os.Open(filepath.Join(r.BaseDir, op.Filename))
	if err != nil {
		return fmt.Errorf("failed to pick %s: %w", op.Filename, err)
	}
	defer src.Close()

	return r.writeOutput(filepath.Base(op.Filename), func(w io.Writer) error {
		if _, err := io.Copy(w, src); err != nil {
			return fmt.Errorf("failed to pick %s: %w", op.Filename, err)
		}
		return nil
	})
}

// writeOutput creates name in the output directory only when write succeeds.
// A failed write leaves nothing behind.
func (r OperationExecutor) writeOutput(name string, write func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(r.OutputDir, ".out-*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(r.OutputDir, name)); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
