package imageconv

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// bakeOrientation re-encodes a JPEG with its EXIF orientation applied to the
// pixels. Every failure mode returns the input unchanged: a bad orientation
// pass must never block an upload.
func bakeOrientation(data []byte) (out []byte) {
	out = data
	// goexif can panic on malformed tag tables.
	defer func() {
		if r := recover(); r != nil {
			out = data
		}
	}()

	meta, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}
	tag, err := meta.Get(exif.Orientation)
	if err != nil {
		return data
	}
	orientation, err := tag.Int(0)
	if err != nil || orientation <= 1 || orientation > 8 {
		return data
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}

	baked, err := encodeJPEG(applyOrientation(img, orientation))
	if err != nil {
		return data
	}
	return baked
}

// applyOrientation maps the eight EXIF orientation values onto pixel
// transforms, same table imaging uses internally for auto-orientation.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
