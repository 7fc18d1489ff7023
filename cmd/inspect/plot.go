package main

import (
	"image/color"
	"os"
	"path/filepath"

	"github.com/Noofbiz/cityseg/categories"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// maskGrid adapts an int32 [H, W] mask to plotter.GridXYZ. Row 0 of the mask
// is the top of the image, so rows are flipped for the plot's upward Y axis.
type maskGrid struct {
	labels []int32
	h, w   int
}

func (g maskGrid) Dims() (c, r int)   { return g.w, g.h }
func (g maskGrid) X(c int) float64    { return float64(c) }
func (g maskGrid) Y(r int) float64    { return float64(r) }
func (g maskGrid) Z(c, r int) float64 { return float64(g.labels[(g.h-1-r)*g.w+c]) }

// categoryPalette implements palette.Palette with one color per category.
type categoryPalette []color.Color

func (p categoryPalette) Colors() []color.Color { return p }

// plotMask renders mask as a category heat map with a legend and saves it
// as an image at outPath.
func plotMask(outPath, title string, mask *tensors.Tensor) error {
	dims := mask.Shape().Dimensions
	g := maskGrid{h: dims[0], w: dims[1]}
	tensors.ConstFlatData[int32](mask, func(flat []int32) {
		g.labels = append([]int32(nil), flat...)
	})

	pal := categoryPalette(categories.Palette())
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	hm := plotter.NewHeatMap(g, pal)
	hm.Min = 0
	hm.Max = float64(categories.NumCategories - 1)
	p.Add(hm)

	for c, col := range pal {
		swatch, err := plotter.NewPolygon()
		if err != nil {
			return err
		}
		swatch.Color = col
		swatch.LineStyle.Width = 0
		p.Legend.Add(categories.Name(c), swatch)
	}
	p.Legend.Top = true
	p.X.Min, p.X.Max = -0.5, float64(g.w)-0.5
	p.Y.Min, p.Y.Max = -0.5, float64(g.h)-0.5

	if dir := filepath.Dir(outPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	width := 10 * vg.Inch
	height := width * vg.Length(g.h) / vg.Length(g.w) * 1.2
	return p.Save(width, height, outPath)
}
