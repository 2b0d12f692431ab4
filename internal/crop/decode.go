package crop

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/vincent-petithory/dataurl"

	// register the WebP decoder with image.Decode, which imaging.Decode uses
	_ "golang.org/x/image/webp"
)

// Decode reads an image from r, applying its EXIF orientation.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrDecode)
	}
	return img, nil
}

// DecodeDataURL decodes a data URL such as the one a browser's FileReader
// produces for a selected file.
func DecodeDataURL(s string) (image.Image, error) {
	du, err := dataurl.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid data url: %w", ErrDecode, err)
	}
	return Decode(bytes.NewReader(du.Data))
}
