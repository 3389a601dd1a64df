package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/tiff"
)

// GrayTIFF encodes a w×h 16-bit grayscale TIFF. Pixel (x, y) holds
// base + y*w + x.
func GrayTIFF(w, h int, base uint16) []byte {
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: base + uint16(y*w+x)})
		}
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// RGBPNG encodes a w×h opaque PNG whose red, green and blue channels are
// r, g and b everywhere.
func RGBPNG(w, h int, r, g, b uint8) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// WithRasters adds band TIFFs for both fixture items: 2×2 rasters for the
// 30 m bands and a 4×4 raster for the 15 m pan band. Band i of item A
// starts at 100*i (i counting from one), item B at 100*i+50.
func WithRasters(f Fixture) Fixture {
	for _, item := range []struct {
		id     string
		offset uint16
	}{{LandsatItemA, 0}, {LandsatItemB, 50}} {
		dir := "landsat-8-l1/" + item.id + "/"
		for i, b := range LandsatBands {
			size := 2
			if b.GSD == 15 {
				size = 4
			}
			f[dir+item.id+"_"+b.Key+".TIF"] = GrayTIFF(size, size, uint16(100*(i+1))+item.offset)
		}
		f[dir+item.id+"_thumb_large.png"] = RGBPNG(3, 2, 10, 20, 30)
		f[dir+item.id+"_MTL.txt"] = []byte("GROUP = L1_METADATA_FILE\n  SPACECRAFT_ID = \"LANDSAT_8\"\nEND_GROUP = L1_METADATA_FILE\n")
	}
	return f
}
