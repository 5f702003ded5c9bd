// Package imageconv normalizes user-supplied images into the canonical
// transport format (orientation-corrected JPEG) before upload.
package imageconv

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	_ "image/gif"
	_ "image/png"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/heic"
	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/webp"

	"proteus/internal/domain"
)

const jpegQuality = 90

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/avif": true,
	"image/gif":  true,
	"image/heic": true,
	"image/heif": true,
}

var jpegTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
}

var heicTypes = map[string]bool{
	"image/heic": true,
	"image/heif": true,
}

// decodeHEIC is replaceable in tests.
var decodeHEIC = heic.Decode

// File is an image as the user handed it over.
type File struct {
	Name      string
	MediaType string
	Data      []byte
}

// Normalized is the canonical upload payload: JPEG bytes and a .jpg filename.
type Normalized struct {
	Data      []byte
	Filename  string
	MediaType string
}

// Allowed reports whether the declared media type is on the allow-list.
func Allowed(mediaType string) bool {
	return allowedTypes[strings.ToLower(strings.TrimSpace(mediaType))]
}

// Normalize converts an arbitrary allowed image into JPEG. Already-JPEG input
// passes through an orientation bake that degrades to the original bytes on
// any failure; everything else is decoded and re-encoded. Only a truly
// undecodable input fails.
func Normalize(f File) (*Normalized, error) {
	mediaType := strings.ToLower(strings.TrimSpace(f.MediaType))
	if !allowedTypes[mediaType] {
		return nil, fmt.Errorf("imageconv: %q: %w", f.MediaType, domain.ErrUnsupportedFormat)
	}

	name := toJPEGName(f.Name)

	switch {
	case jpegTypes[mediaType]:
		return &Normalized{
			Data:      bakeOrientation(f.Data),
			Filename:  name,
			MediaType: "image/jpeg",
		}, nil

	case heicTypes[mediaType]:
		img, err := decodeHEIC(bytes.NewReader(f.Data))
		if err != nil || img == nil {
			return nil, fmt.Errorf("imageconv: decode heic: %w", domain.ErrConversionFailed)
		}
		data, err := encodeJPEG(img)
		if err != nil {
			return nil, fmt.Errorf("imageconv: encode heic as jpeg: %w", domain.ErrConversionFailed)
		}
		return &Normalized{
			Data:      bakeOrientation(data),
			Filename:  name,
			MediaType: "image/jpeg",
		}, nil

	default:
		img, err := decodeRaster(f.Data, mediaType)
		if err != nil {
			return nil, fmt.Errorf("imageconv: decode %s: %v: %w", mediaType, err, domain.ErrConversionFailed)
		}
		data, err := encodeJPEG(img)
		if err != nil {
			return nil, fmt.Errorf("imageconv: encode jpeg: %w", domain.ErrConversionFailed)
		}
		return &Normalized{
			Data:      data,
			Filename:  name,
			MediaType: "image/jpeg",
		}, nil
	}
}

func decodeRaster(data []byte, mediaType string) (image.Image, error) {
	// Trust the sniffable container over the declared type where cheap.
	if isWEBP(data) || mediaType == "image/webp" {
		return webp.Decode(bytes.NewReader(data), &decoder.Options{})
	}
	if mediaType == "image/avif" {
		return avif.Decode(bytes.NewReader(data))
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return img, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func isWEBP(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	return string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

func toJPEGName(fileName string) string {
	base := fileName
	if idx := strings.LastIndex(base, "."); idx >= 0 {
		base = base[:idx]
	}
	if base == "" {
		base = "image"
	}
	return base + ".jpg"
}
