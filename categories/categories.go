// Package categories holds the Cityscapes class table and its reduction from
// the 35 fine-grained classes to the 8 coarse categories used as training
// targets.
//
// The table is compiled-in constant data. Lookups go through an array indexed
// by raw id so the hot path in preprocessing never touches a map.
package categories

import (
	"fmt"
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// NumCategories is the size of the reduced label space.
const NumCategories = 8

// Void is the category that collects unlabeled and ignored pixels.
const Void = 0

// minRawID and maxRawID bound the raw id domain. -1 (license plate) never
// appears in rasterized masks but still has a table entry.
const (
	minRawID = -1
	maxRawID = 33
)

// ErrUnknownClass is returned when a raw id has no table entry.
var ErrUnknownClass = errors.New("raw class id not in Cityscapes table")

// Class describes one fine-grained Cityscapes class.
type Class struct {
	Name         string
	ID           int
	TrainID      int
	Category     string
	CategoryID   int
	HasInstances bool
	IgnoreInEval bool
	Color        color.RGBA
}

// Classes lists every Cityscapes class in raw id order, license plate last.
var Classes = [...]Class{
	{"unlabeled", 0, 255, "void", 0, false, true, color.RGBA{0, 0, 0, 255}},
	{"ego vehicle", 1, 255, "void", 0, false, true, color.RGBA{0, 0, 0, 255}},
	{"rectification border", 2, 255, "void", 0, false, true, color.RGBA{0, 0, 0, 255}},
	{"out of roi", 3, 255, "void", 0, false, true, color.RGBA{0, 0, 0, 255}},
	{"static", 4, 255, "void", 0, false, true, color.RGBA{0, 0, 0, 255}},
	{"dynamic", 5, 255, "void", 0, false, true, color.RGBA{111, 74, 0, 255}},
	{"ground", 6, 255, "void", 0, false, true, color.RGBA{81, 0, 81, 255}},
	{"road", 7, 0, "flat", 1, false, false, color.RGBA{128, 64, 128, 255}},
	{"sidewalk", 8, 1, "flat", 1, false, false, color.RGBA{244, 35, 232, 255}},
	{"parking", 9, 255, "flat", 1, false, true, color.RGBA{250, 170, 160, 255}},
	{"rail track", 10, 255, "flat", 1, false, true, color.RGBA{230, 150, 140, 255}},
	{"building", 11, 2, "construction", 2, false, false, color.RGBA{70, 70, 70, 255}},
	{"wall", 12, 3, "construction", 2, false, false, color.RGBA{102, 102, 156, 255}},
	{"fence", 13, 4, "construction", 2, false, false, color.RGBA{190, 153, 153, 255}},
	{"guard rail", 14, 255, "construction", 2, false, true, color.RGBA{180, 165, 180, 255}},
	{"bridge", 15, 255, "construction", 2, false, true, color.RGBA{150, 100, 100, 255}},
	{"tunnel", 16, 255, "construction", 2, false, true, color.RGBA{150, 120, 90, 255}},
	{"pole", 17, 5, "object", 3, false, false, color.RGBA{153, 153, 153, 255}},
	{"polegroup", 18, 255, "object", 3, false, true, color.RGBA{153, 153, 153, 255}},
	{"traffic light", 19, 6, "object", 3, false, false, color.RGBA{250, 170, 30, 255}},
	{"traffic sign", 20, 7, "object", 3, false, false, color.RGBA{220, 220, 0, 255}},
	{"vegetation", 21, 8, "nature", 4, false, false, color.RGBA{107, 142, 35, 255}},
	{"terrain", 22, 9, "nature", 4, false, false, color.RGBA{152, 251, 152, 255}},
	{"sky", 23, 10, "sky", 5, false, false, color.RGBA{70, 130, 180, 255}},
	{"person", 24, 11, "human", 6, true, false, color.RGBA{220, 20, 60, 255}},
	{"rider", 25, 12, "human", 6, true, false, color.RGBA{255, 0, 0, 255}},
	{"car", 26, 13, "vehicle", 7, true, false, color.RGBA{0, 0, 142, 255}},
	{"truck", 27, 14, "vehicle", 7, true, false, color.RGBA{0, 0, 70, 255}},
	{"bus", 28, 15, "vehicle", 7, true, false, color.RGBA{0, 60, 100, 255}},
	{"caravan", 29, 255, "vehicle", 7, true, true, color.RGBA{0, 0, 90, 255}},
	{"trailer", 30, 255, "vehicle", 7, true, true, color.RGBA{0, 0, 110, 255}},
	{"train", 31, 16, "vehicle", 7, true, false, color.RGBA{0, 80, 100, 255}},
	{"motorcycle", 32, 17, "vehicle", 7, true, false, color.RGBA{0, 0, 230, 255}},
	{"bicycle", 33, 18, "vehicle", 7, true, false, color.RGBA{119, 11, 32, 255}},
	{"license plate", -1, -1, "vehicle", 7, false, true, color.RGBA{0, 0, 142, 255}},
}

// byRawID maps raw id + 1 to the class index. It is filled in init from
// Classes so the two can never disagree.
var byRawID [maxRawID - minRawID + 1]int8

// remapLUT maps every 8-bit pixel value to its category, or -1 when the value
// is not a known raw id.
var remapLUT [256]int8

var categoryNames [NumCategories]string

func init() {
	for i := range byRawID {
		byRawID[i] = -1
	}
	for i := range remapLUT {
		remapLUT[i] = -1
	}
	for i, c := range Classes {
		if c.ID < minRawID || c.ID > maxRawID {
			panic(fmt.Sprintf("categories: class %q has raw id %d outside [%d, %d]", c.Name, c.ID, minRawID, maxRawID))
		}
		if c.CategoryID < 0 || c.CategoryID >= NumCategories {
			panic(fmt.Sprintf("categories: class %q has category id %d outside [0, %d)", c.Name, c.CategoryID, NumCategories))
		}
		byRawID[c.ID-minRawID] = int8(i)
		if c.ID >= 0 {
			remapLUT[c.ID] = int8(c.CategoryID)
		}
		categoryNames[c.CategoryID] = c.Category
	}
}

// Lookup returns the class with the given raw id.
func Lookup(rawID int) (Class, error) {
	if rawID < minRawID || rawID > maxRawID {
		return Class{}, errors.Wrapf(ErrUnknownClass, "raw id %d", rawID)
	}
	idx := byRawID[rawID-minRawID]
	if idx < 0 {
		return Class{}, errors.Wrapf(ErrUnknownClass, "raw id %d", rawID)
	}
	return Classes[idx], nil
}

// CategoryOf returns the reduced category id for a raw class id.
func CategoryOf(rawID int) (int, error) {
	c, err := Lookup(rawID)
	if err != nil {
		return 0, err
	}
	return c.CategoryID, nil
}

// Name returns the category name, e.g. "flat" for 1.
func Name(category int) string {
	if category < 0 || category >= NumCategories {
		return ""
	}
	return categoryNames[category]
}

// RawIDs returns the raw ids reduced to the given category, in table order.
func RawIDs(category int) []int {
	var ids []int
	for _, c := range Classes {
		if c.CategoryID == category {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Remap writes the category of every pixel of mask into dst, row-major.
// dst must hold at least width*height values. The first pixel whose value
// has no table entry aborts the remap.
func Remap(mask *image.Gray, dst []int32) error {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	if len(dst) < w*h {
		return errors.Errorf("remap destination holds %d values, mask needs %d", len(dst), w*h)
	}
	for y := 0; y < h; y++ {
		row := mask.Pix[y*mask.Stride : y*mask.Stride+w]
		out := dst[y*w : (y+1)*w]
		for x, v := range row {
			c := remapLUT[v]
			if c < 0 {
				return errors.Wrapf(ErrUnknownClass, "raw id %d at (%d, %d)", v, b.Min.X+x, b.Min.Y+y)
			}
			out[x] = int32(c)
		}
	}
	return nil
}

// Color returns a preview color for a category: the Lab-space mean of the
// colors of its member classes.
func Color(category int) color.Color {
	var (
		acc colorful.Color
		n   int
	)
	for _, c := range Classes {
		if c.CategoryID != category {
			continue
		}
		cc, _ := colorful.MakeColor(c.Color)
		if n == 0 {
			acc = cc
		} else {
			acc = acc.BlendLab(cc, 1/float64(n+1))
		}
		n++
	}
	return acc.Clamped()
}

// Palette returns the preview colors of all categories, indexed by category.
func Palette() []color.Color {
	p := make([]color.Color, NumCategories)
	for i := range p {
		p[i] = Color(i)
	}
	return p
}
