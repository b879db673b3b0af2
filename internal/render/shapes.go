package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// Shape rasterisation is done with plain integer scanline fills so the
// same cell always produces the same bytes, on any platform. No
// anti-aliasing: the target is a crisp 1080px quiz card, and float
// rounding differences between builds would break reproducibility.

// drawShape renders the cell's shape centred in the given box.
func drawShape(dst *image.RGBA, box image.Rectangle, cell Cell, ink color.RGBA) {
	cx := (box.Min.X + box.Max.X) / 2
	cy := (box.Min.Y + box.Max.Y) / 2
	r := (box.Dx() / 2) * 7 / 10
	switch cell.Size {
	case "large":
		r = (box.Dx() / 2) * 9 / 10
	case "small":
		r = (box.Dx() / 2) * 5 / 10
	}
	if r < 2 {
		r = 2
	}

	switch cell.Shape {
	case "circle":
		drawCircle(dst, cx, cy, r, cell.Filled, ink)
	case "square":
		drawSquare(dst, cx, cy, r, cell.Filled, ink)
	case "triangle":
		drawTriangle(dst, cx, cy, r, cell.Filled, ink)
	case "diamond":
		drawDiamond(dst, cx, cy, r, cell.Filled, ink)
	case "star":
		drawStar(dst, cx, cy, r, cell.Filled, ink)
	}
}

const outlineWidth = 6

func drawCircle(dst *image.RGBA, cx, cy, r int, filled bool, ink color.RGBA) {
	rr := r * r
	inner := (r - outlineWidth) * (r - outlineWidth)
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			d := x*x + y*y
			if d > rr {
				continue
			}
			if filled || d >= inner {
				dst.SetRGBA(cx+x, cy+y, ink)
			}
		}
	}
}

func drawSquare(dst *image.RGBA, cx, cy, r int, filled bool, ink color.RGBA) {
	outer := image.Rect(cx-r, cy-r, cx+r, cy+r)
	if filled {
		draw.Draw(dst, outer, &image.Uniform{ink}, image.Point{}, draw.Src)
		return
	}
	inner := outer.Inset(outlineWidth)
	for y := outer.Min.Y; y < outer.Max.Y; y++ {
		for x := outer.Min.X; x < outer.Max.X; x++ {
			if !(image.Pt(x, y).In(inner)) {
				dst.SetRGBA(x, y, ink)
			}
		}
	}
}

func drawDiamond(dst *image.RGBA, cx, cy, r int, filled bool, ink color.RGBA) {
	pts := []image.Point{{cx, cy - r}, {cx + r, cy}, {cx, cy + r}, {cx - r, cy}}
	drawPolygon(dst, pts, filled, ink)
}

func drawTriangle(dst *image.RGBA, cx, cy, r int, filled bool, ink color.RGBA) {
	// Equilateral-ish, apex up, sized to sit on the same baseline as
	// the other shapes.
	h := r * 2
	pts := []image.Point{
		{cx, cy - h*4/7},
		{cx + r, cy + h*3/7},
		{cx - r, cy + h*3/7},
	}
	drawPolygon(dst, pts, filled, ink)
}

func drawStar(dst *image.RGBA, cx, cy, r int, filled bool, ink color.RGBA) {
	// Five-pointed star from precomputed unit offsets; math.Cos/Sin on
	// constant angles is deterministic, but the vertices are rounded to
	// integers before any pixel work.
	pts := make([]image.Point, 0, 10)
	inner := r * 2 / 5
	for i := 0; i < 10; i++ {
		angle := -math.Pi/2 + float64(i)*math.Pi/5
		rad := float64(r)
		if i%2 == 1 {
			rad = float64(inner)
		}
		pts = append(pts, image.Point{
			X: cx + int(math.Round(rad*math.Cos(angle))),
			Y: cy + int(math.Round(rad*math.Sin(angle))),
		})
	}
	drawPolygon(dst, pts, filled, ink)
}

// drawPolygon scanline-fills a polygon; outline-only shapes are drawn
// by filling the polygon and then carving out a shrunken copy.
func drawPolygon(dst *image.RGBA, pts []image.Point, filled bool, ink color.RGBA) {
	if filled {
		fillPolygon(dst, pts, ink)
		return
	}
	fillPolygon(dst, pts, ink)
	carvePolygon(dst, shrinkPolygon(pts, outlineWidth))
}

func fillPolygon(dst *image.RGBA, pts []image.Point, ink color.RGBA) {
	forEachPolygonPixel(pts, func(x, y int) {
		dst.SetRGBA(x, y, ink)
	})
}

func carvePolygon(dst *image.RGBA, pts []image.Point) {
	white := color.RGBA{255, 255, 255, 255}
	forEachPolygonPixel(pts, func(x, y int) {
		dst.SetRGBA(x, y, white)
	})
}

func forEachPolygonPixel(pts []image.Point, set func(x, y int)) {
	if len(pts) < 3 {
		return
	}
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts {
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	for y := minY; y <= maxY; y++ {
		// Even-odd rule over edge crossings at scanline y+0.5.
		var xs []int
		n := len(pts)
		for i := 0; i < n; i++ {
			a, b := pts[i], pts[(i+1)%n]
			if a.Y == b.Y {
				continue
			}
			y0, y1 := a.Y, b.Y
			if y0 > y1 {
				a, b = b, a
				y0, y1 = y1, y0
			}
			if y < y0 || y >= y1 {
				continue
			}
			// Integer interpolation with rounding.
			num := (y-a.Y)*(b.X-a.X)*2 + (b.Y-a.Y)
			x := a.X + num/((b.Y-a.Y)*2)
			xs = append(xs, x)
		}
		sortInts(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			for x := xs[i]; x <= xs[i+1]; x++ {
				set(x, y)
			}
		}
	}
}

func shrinkPolygon(pts []image.Point, by int) []image.Point {
	// Scale toward the centroid. Approximate but stable, which is all
	// the outline carve needs.
	var sx, sy int
	for _, p := range pts {
		sx += p.X
		sy += p.Y
	}
	cx, cy := sx/len(pts), sy/len(pts)

	maxDist := 1
	for _, p := range pts {
		dx, dy := p.X-cx, p.Y-cy
		d := int(math.Round(math.Hypot(float64(dx), float64(dy))))
		if d > maxDist {
			maxDist = d
		}
	}
	out := make([]image.Point, len(pts))
	for i, p := range pts {
		dx, dy := p.X-cx, p.Y-cy
		out[i] = image.Point{
			X: cx + dx*(maxDist-by)/maxDist,
			Y: cy + dy*(maxDist-by)/maxDist,
		}
	}
	return out
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j] < xs[j-1]; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}
