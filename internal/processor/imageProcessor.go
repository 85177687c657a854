package processor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

var ErrDecode = errors.New("not a decodable image")

// ImageModifier defines an image modifier
type ImageModifier interface {
	Modify(img image.Image) image.Image
}

// ImageResizer bounds an image to Width x Height keeping its aspect ratio.
// A zero dimension is unbounded. Images are never upscaled.
type ImageResizer struct {
	Width  int
	Height int
}

// Modify to implement ImageModifier interface
func (r *ImageResizer) Modify(img image.Image) image.Image {
	w := float64(img.Bounds().Dx())
	h := float64(img.Bounds().Dy())

	if w == 0 || h == 0 || (r.Width == 0 && r.Height == 0) {
		return img
	}

	ratio := 0.0
	if r.Width > 0 {
		ratio = w / float64(r.Width)
	}
	if r.Height > 0 {
		if hRatio := h / float64(r.Height); hRatio > ratio {
			ratio = hRatio
		}
	}

	// Nothing to do - return original image
	if ratio <= 1 {
		return img
	}

	return imaging.Resize(img, int(w/ratio), int(h/ratio), imaging.Lanczos)
}

// Options control how Recompress re-encodes an image.
type Options struct {
	// Quality is the JPEG quality on a 0-100 scale. PNG uses Quality/10 as
	// its 0-9 compression level.
	Quality   int
	Modifiers []ImageModifier
}

// Image is a recompressed image ready for upload.
type Image struct {
	Data        []byte
	Format      string // decoder name: "jpeg", "png", "gif", "webp", ...
	ContentType string
}

// Extension is the file extension used for the storage key.
func (i Image) Extension() string {
	return i.Format
}

// Recompress decodes data and re-encodes it in the same format. JPEG and PNG
// are recompressed according to opts; other known formats are re-encoded
// losslessly, unknown ones are returned untouched.
func Recompress(data []byte, opts Options) (Image, error) {
	img, format, err := LoadImage(bytes.NewReader(data), opts.Modifiers...)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	buf := new(bytes.Buffer)
	switch format {
	case "jpeg":
		err = imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(opts.Quality))
	case "png":
		err = imaging.Encode(buf, img, imaging.PNG, imaging.PNGCompressionLevel(PNGCompressionLevel(opts.Quality/10)))
	case "gif":
		err = imaging.Encode(buf, img, imaging.GIF)
	case "bmp":
		err = imaging.Encode(buf, img, imaging.BMP)
	case "tiff":
		err = imaging.Encode(buf, img, imaging.TIFF)
	case "webp":
		err = webp.Encode(buf, img, &webp.Options{Lossless: true, Exact: true})
	default:
		buf = bytes.NewBuffer(data)
	}
	if err != nil {
		return Image{}, fmt.Errorf("encode %s: %w", format, err)
	}

	out := buf.Bytes()
	return Image{
		Data:        out,
		Format:      format,
		ContentType: mimetype.Detect(out).String(),
	}, nil
}

// PNGCompressionLevel maps a 0-9 zlib style level onto the coarser levels
// image/png supports.
func PNGCompressionLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// LoadImage reads image from reader and applies requested modifiers to that image
func LoadImage(r io.Reader, modifiers ...ImageModifier) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", err
	}

	for _, modifier := range modifiers {
		img = modifier.Modify(img)
	}

	return img, format, nil
}
