package pixels

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"

	// Registered decoders for LoadImage.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/23skdu/longbow-quiver/internal/device"
)

// Sources accepted by Codec.Decode are the closed set RawBuffer, Canvas,
// Image and Video (values or pointers).

// RawBuffer is an explicit pixel record.
// Channels defaults to 4 (RGBA) and must be 1..4.
type RawBuffer struct {
	Width    int
	Height   int
	Channels int
	Data     []uint8
}

// Context2D reads back RGBA samples from a drawable surface.
type Context2D interface {
	GetImageData(x, y, width, height int) ([]uint8, error)
}

// Canvas is a drawable surface of known geometry.
type Canvas struct {
	Width   int
	Height  int
	Context Context2D
}

// Image wraps an already decoded image.
type Image struct {
	Img image.Image
}

// ReadyState mirrors the media element readiness levels.
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

// VideoSource is a live capture that can hand out its current frame.
type VideoSource interface {
	ReadyState() ReadyState
	Dimensions() (width, height int)
	Frame(ctx context.Context) (image.Image, error)
}

// Video decodes the current frame of a VideoSource.
type Video struct {
	Source VideoSource
}

// LoadImage decodes a png, jpeg or gif stream into an Image source.
func LoadImage(r io.Reader) (Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidInputKind, err)
	}
	return Image{Img: img}, nil
}

// frame is the host view of a source: stride interleaved channels per pixel.
type frame struct {
	width, height int
	stride        int
	data          []uint8
}

func readSource(ctx context.Context, src any) (frame, error) {
	switch s := src.(type) {
	case RawBuffer:
		return s.frame()
	case *RawBuffer:
		if s == nil {
			break
		}
		return s.frame()
	case Canvas:
		return s.frame()
	case *Canvas:
		if s == nil {
			break
		}
		return s.frame()
	case Image:
		return s.frame()
	case *Image:
		if s == nil {
			break
		}
		return s.frame()
	case Video:
		return s.frame(ctx)
	case *Video:
		if s == nil {
			break
		}
		return s.frame(ctx)
	}
	return frame{}, fmt.Errorf("%w: pixels passed to Decode() must be either a RawBuffer, Canvas, Image or Video, but was %T",
		ErrInvalidInputKind, src)
}

// maxPixels keeps a four channel frame within device.MaxElements.
const maxPixels = device.MaxElements / 4

// tooLarge reports whether a width x height frame exceeds maxPixels.
// Non-positive dimensions are never too large.
func tooLarge(width, height int) bool {
	return width > 0 && height > 0 && width > maxPixels/height
}

func checkGeometry(kind string, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %s has invalid geometry %dx%d", ErrInvalidInputKind, kind, width, height)
	}
	if tooLarge(width, height) {
		return fmt.Errorf("%w: %s geometry %dx%d exceeds %d pixels", ErrInvalidInputKind, kind, width, height, maxPixels)
	}
	return nil
}

func (r RawBuffer) frame() (frame, error) {
	if err := checkGeometry("RawBuffer", r.Width, r.Height); err != nil {
		return frame{}, err
	}
	ch := r.Channels
	if ch == 0 {
		ch = 4
	}
	if ch < 1 || ch > 4 {
		return frame{}, fmt.Errorf("%w: RawBuffer declares %d channels, want 1-4", ErrUnsupportedChannelDepth, r.Channels)
	}
	if want := r.Width * r.Height * ch; len(r.Data) != want {
		return frame{}, fmt.Errorf("%w: RawBuffer data has %d samples, want %d", ErrInvalidInputKind, len(r.Data), want)
	}
	return frame{width: r.Width, height: r.Height, stride: ch, data: r.Data}, nil
}

func (c Canvas) frame() (frame, error) {
	if c.Context == nil {
		return frame{}, fmt.Errorf("%w: Canvas has no 2d context", ErrInvalidInputKind)
	}
	if err := checkGeometry("Canvas", c.Width, c.Height); err != nil {
		return frame{}, err
	}
	data, err := c.Context.GetImageData(0, 0, c.Width, c.Height)
	if err != nil {
		return frame{}, fmt.Errorf("%w: reading canvas: %v", ErrInvalidInputKind, err)
	}
	if want := c.Width * c.Height * 4; len(data) != want {
		return frame{}, fmt.Errorf("%w: canvas returned %d samples, want %d", ErrInvalidInputKind, len(data), want)
	}
	return frame{width: c.Width, height: c.Height, stride: 4, data: data}, nil
}

func (i Image) frame() (frame, error) {
	if i.Img == nil {
		return frame{}, fmt.Errorf("%w: Image is empty", ErrInvalidInputKind)
	}
	return imageFrame(i.Img)
}

func (v Video) frame(ctx context.Context) (frame, error) {
	if v.Source == nil {
		return frame{}, fmt.Errorf("%w: Video has no source", ErrInvalidInputKind)
	}
	if state := v.Source.ReadyState(); state < HaveCurrentData {
		return frame{}, fmt.Errorf("%w: video ready state %d, no frame decoded yet", ErrSourceNotReady, state)
	}
	w, h := v.Source.Dimensions()
	if err := checkGeometry("Video", w, h); err != nil {
		return frame{}, err
	}

	img, err := v.Source.Frame(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return frame{}, ctxErr
		}
		return frame{}, fmt.Errorf("%w: %v", ErrSourceNotReady, err)
	}
	if img == nil {
		return frame{}, fmt.Errorf("%w: video returned no frame", ErrSourceNotReady)
	}
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		return frame{}, fmt.Errorf("%w: video frame is %dx%d, source reports %dx%d",
			ErrInvalidInputKind, b.Dx(), b.Dy(), w, h)
	}
	return imageFrame(img)
}

// imageFrame returns non-premultiplied RGBA samples, the layout a 2d canvas
// read-back produces.
func imageFrame(img image.Image) (frame, error) {
	b := img.Bounds()
	if err := checkGeometry("Image", b.Dx(), b.Dy()); err != nil {
		return frame{}, err
	}
	w, h := b.Dx(), b.Dy()

	if n, ok := img.(*image.NRGBA); ok && n.Stride == 4*w {
		off := n.PixOffset(b.Min.X, b.Min.Y)
		return frame{width: w, height: h, stride: 4, data: n.Pix[off : off+4*w*h]}, nil
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return frame{width: w, height: h, stride: 4, data: dst.Pix}, nil
}
