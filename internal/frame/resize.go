package frame

import (
	"image"
	"image/draw"

	ximage "golang.org/x/image/draw"
)

// Resize scales f to width x height using a high-quality resampling filter,
// for feeding the same capture source to multiple Encoder instances at
// their own target resolutions. The source and destination frames always
// use image/draw's NRGBA color model internally regardless of f.Format,
// since BGRA/RGBA only differ in channel order, which this function
// preserves on the way out.
func Resize(f *Frame, width, height int) *Frame {
	if f.Format == PixelFormatNV12 {
		panic("frame: Resize does not support NV12; convert to BGRA/RGBA before resizing")
	}
	if f.Width == width && f.Height == height {
		out := make([]byte, len(f.Pixels))
		copy(out, f.Pixels)
		return &Frame{Pixels: out, PTS: f.PTS, Width: width, Height: height, Format: f.Format}
	}

	src := toNRGBA(f)
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	ximage.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	return &Frame{
		Pixels: fromNRGBA(dst, f.Format),
		PTS:    f.PTS,
		Width:  width,
		Height: height,
		Format: f.Format,
	}
}

// toNRGBA interprets f's pixel buffer according to its channel order and
// produces a standard NRGBA image for resampling.
func toNRGBA(f *Frame) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	swap := f.Format == PixelFormatBGRA
	n := f.Width * f.Height
	for i := 0; i < n; i++ {
		o := i * 4
		b0, b1, b2, b3 := f.Pixels[o], f.Pixels[o+1], f.Pixels[o+2], f.Pixels[o+3]
		if swap {
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = b2, b1, b0, b3
		} else {
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = b0, b1, b2, b3
		}
	}
	return img
}

// fromNRGBA converts a resampled NRGBA image back into a raw pixel buffer
// in the requested output format.
func fromNRGBA(img *image.NRGBA, format PixelFormat) []byte {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([]byte, w*h*4)
	swap := format == PixelFormatBGRA
	for y := 0; y < h; y++ {
		srcRow := img.Pix[y*img.Stride : y*img.Stride+w*4]
		dstRow := out[y*w*4 : (y+1)*w*4]
		for x := 0; x < w; x++ {
			o := x * 4
			r, g, b, a := srcRow[o], srcRow[o+1], srcRow[o+2], srcRow[o+3]
			if swap {
				dstRow[o], dstRow[o+1], dstRow[o+2], dstRow[o+3] = b, g, r, a
			} else {
				dstRow[o], dstRow[o+1], dstRow[o+2], dstRow[o+3] = r, g, b, a
			}
		}
	}
	return out
}
