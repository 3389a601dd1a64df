package stacat

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register decoders for sniffed rasters
	_ "image/png"

	"golang.org/x/image/tiff"
)

// rasterBackend decodes single-image TIFF and GeoTIFF files into
// (band, y, x) arrays. PNG and JPEG files are accepted as well.
type rasterBackend struct{}

// NewRasterBackend returns the built-in backend for StrategyRaster.
func NewRasterBackend() Backend { return rasterBackend{} }

func (rasterBackend) Container() Container { return ContainerArray }

func (rasterBackend) Load(_ context.Context, blob Blob, _ LoadArgs) (*Data, error) {
	img, format, err := decodeRaster(blob.Body)
	if err != nil {
		return nil, err
	}
	arr := bandArray(img)
	arr.Attrs["href"] = blob.Href
	arr.Attrs["format"] = format
	arr.Coords["spatial_ref"] = Coord{Values: []any{0}}
	return &Data{Array: arr}, nil
}

func decodeRaster(body []byte) (image.Image, string, error) {
	img, err := tiff.Decode(bytes.NewReader(body))
	if err == nil {
		return img, "tiff", nil
	}
	img, format, ierr := image.Decode(bytes.NewReader(body))
	if ierr != nil {
		return nil, "", fmt.Errorf("%w: not a decodable raster: %w", ErrInvalidFormat, err)
	}
	return img, format, nil
}

// channels returns the number of channels of img and a function reading
// one pixel's channel values into dst.
func channels(img image.Image) (int, func(x, y int, dst []float64)) {
	switch m := img.(type) {
	case *image.Gray:
		return 1, func(x, y int, dst []float64) { dst[0] = float64(m.GrayAt(x, y).Y) }
	case *image.Gray16:
		return 1, func(x, y int, dst []float64) { dst[0] = float64(m.Gray16At(x, y).Y) }
	case *image.RGBA64, *image.NRGBA64:
		return 3, func(x, y int, dst []float64) {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			dst[0], dst[1], dst[2] = float64(c.R), float64(c.G), float64(c.B)
		}
	}
	return 3, func(x, y int, dst []float64) {
		c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
		dst[0], dst[1], dst[2] = float64(c.R), float64(c.G), float64(c.B)
	}
}

// bandArray converts img into a (band, y, x) array with bands numbered
// from one.
func bandArray(img image.Image) *Array {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	n, read := channels(img)
	arr := NewArray([]string{"band", "y", "x"}, []int{n, h, w})
	px := make([]float64, n)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			read(b.Min.X+x, b.Min.Y+y, px)
			for c := 0; c < n; c++ {
				arr.Values[(c*h+y)*w+x] = px[c]
			}
		}
	}
	bands := make([]any, n)
	for i := range bands {
		bands[i] = i + 1
	}
	arr.Coords["band"] = Coord{Dim: "band", Values: bands}
	return arr
}

// imageBackend decodes PNG and JPEG files into (y, x, channel) arrays.
type imageBackend struct{}

// NewImageBackend returns the built-in backend for StrategyImage.
func NewImageBackend() Backend { return imageBackend{} }

func (imageBackend) Container() Container { return ContainerArray }

func (imageBackend) Load(_ context.Context, blob Blob, _ LoadArgs) (*Data, error) {
	img, format, err := decodeRaster(blob.Body)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	n, read := channels(img)
	arr := NewArray([]string{"y", "x", "channel"}, []int{h, w, n})
	px := make([]float64, n)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			read(b.Min.X+x, b.Min.Y+y, px)
			copy(arr.Values[(y*w+x)*n:], px)
		}
	}
	arr.Attrs["href"] = blob.Href
	arr.Attrs["format"] = format
	return &Data{Array: arr}, nil
}
