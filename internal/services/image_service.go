package services

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/jdeng/goheif"
	"github.com/rwcarlsen/goexif/exif"
)

// Still is a normalized capture frame ready to be enqueued: orientation
// corrected, bounded in size, re-encoded as JPEG.
type Still struct {
	JPEG      []byte
	Width     int
	Height    int
	TakenAt   *time.Time
	Latitude  *float64
	Longitude *float64
}

// ImageService normalizes raw camera frames into submission-ready stills
type ImageService struct {
	minWidth    int
	minHeight   int
	maxEdge     int
	jpegQuality int
}

// NewImageService creates a new ImageService
func NewImageService(minWidth, minHeight, maxEdge, jpegQuality int) *ImageService {
	if maxEdge <= 0 {
		maxEdge = 1280
	}
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 85
	}

	return &ImageService{
		minWidth:    minWidth,
		minHeight:   minHeight,
		maxEdge:     maxEdge,
		jpegQuality: jpegQuality,
	}
}

// NormalizeStill decodes a raw frame, corrects EXIF orientation, enforces
// the minimum usable resolution, downscales to the bounded max edge and
// re-encodes as JPEG. EXIF capture time and GPS coordinates, when
// embedded by the frame source, are carried along for the capture flow.
func (s *ImageService) NormalizeStill(data []byte, filename string) (*Still, error) {
	var img image.Image
	var err error

	if IsHEIC(filename) {
		img, err = goheif.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode HEIC frame: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame: %w", err)
		}
	}

	still := &Still{}

	orientation := 1
	if x, exifErr := exif.Decode(bytes.NewReader(data)); exifErr == nil {
		if tag, err := x.Get(exif.Orientation); err == nil {
			if val, err := tag.Int(0); err == nil && val >= 1 && val <= 8 {
				orientation = val
			}
		}
		if tm, err := x.DateTime(); err == nil {
			still.TakenAt = &tm
		}
		if lat, lng, err := x.LatLong(); err == nil {
			still.Latitude = &lat
			still.Longitude = &lng
		}
	}

	img = applyFrameOrientation(img, orientation)

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width < s.minWidth || height < s.minHeight {
		return nil, fmt.Errorf("%w: %dx%d below %dx%d",
			ErrFrameTooSmall, width, height, s.minWidth, s.minHeight)
	}

	if width > s.maxEdge || height > s.maxEdge {
		if width >= height {
			img = imaging.Resize(img, s.maxEdge, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, s.maxEdge, imaging.Lanczos)
		}
		bounds = img.Bounds()
		width = bounds.Dx()
		height = bounds.Dy()
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode still: %w", err)
	}

	still.JPEG = buf.Bytes()
	still.Width = width
	still.Height = height
	return still, nil
}

// IsHEIC checks if the file is HEIC/HEIF format (requires special handling)
func IsHEIC(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".heic" || ext == ".heif"
}

// applyFrameOrientation corrects image orientation based on EXIF data
func applyFrameOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Rotate270(imaging.FlipH(img))
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Rotate90(imaging.FlipH(img))
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// ErrFrameTooSmall indicates a frame below the minimum usable resolution
var ErrFrameTooSmall = errors.New("frame below minimum resolution")
