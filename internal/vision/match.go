package vision

import (
	"fmt"
	"image"
	"math"
)

// TemplateMatcher scans the source for the template by normalized
// cross-correlation on grayscale planes. Scores land in [-1, 1]; a
// pixel-identical placement scores 1.
type TemplateMatcher struct{}

func (TemplateMatcher) Match(src, tpl image.Image) (Match, error) {
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
	tw, th := tpl.Bounds().Dx(), tpl.Bounds().Dy()
	if tw == 0 || th == 0 {
		return Match{}, fmt.Errorf("%w: empty", ErrBadTemplate)
	}
	if tw > sw || th > sh {
		return Match{}, fmt.Errorf("%w: larger than source (%dx%d vs %dx%d)", ErrBadTemplate, tw, th, sw, sh)
	}

	source := grayPlane(src)
	template := grayPlane(tpl)

	n := float64(tw * th)
	var sumT, sumT2 float64
	for _, v := range template.pix {
		sumT += v
		sumT2 += v * v
	}
	tVar := sumT2 - sumT*sumT/n
	if tVar <= 0 {
		return Match{}, fmt.Errorf("%w: no contrast", ErrBadTemplate)
	}

	best := Match{Score: -1}
	for y := 0; y <= sh-th; y++ {
		for x := 0; x <= sw-tw; x++ {
			var sumW, sumW2, sumWT float64
			for ty := 0; ty < th; ty++ {
				srow := source.pix[(y+ty)*sw+x:]
				trow := template.pix[ty*tw:]
				for tx := 0; tx < tw; tx++ {
					w := srow[tx]
					t := trow[tx]
					sumW += w
					sumW2 += w * w
					sumWT += w * t
				}
			}
			wVar := sumW2 - sumW*sumW/n
			if wVar <= 0 {
				continue
			}
			score := (sumWT - sumW*sumT/n) / math.Sqrt(wVar*tVar)
			if score > best.Score {
				best = Match{Score: score, Location: image.Pt(x, y)}
			}
		}
	}
	return best, nil
}

type plane struct {
	w, h int
	pix  []float64
}

func grayPlane(img image.Image) plane {
	b := img.Bounds()
	p := plane{w: b.Dx(), h: b.Dy(), pix: make([]float64, b.Dx()*b.Dy())}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			p.pix[i] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
			i++
		}
	}
	return p
}
