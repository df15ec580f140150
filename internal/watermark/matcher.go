package watermark

import (
	"image"
	"math"
	"runtime"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// Match is the best template placement found in a search region.
type Match struct {
	Score float64
	// Loc is the top-left corner in region-local coordinates.
	Loc      image.Point
	Scale    float64
	Size     image.Point
	Template *Template
	// Edge is set when the score came from the edge-map comparison.
	Edge bool
}

// Found reports whether any template/scale combination was evaluated.
func (m Match) Found() bool {
	return m.Template != nil
}

// Matcher runs the multi-scale template ensemble.
type Matcher struct {
	params Params
}

// NewMatcher creates a matcher with the given parameters.
func NewMatcher(p Params) *Matcher {
	return &Matcher{params: p}
}

type combination struct {
	tpl   *Template
	scale float64
}

// Match compares every template at every scale against the grayscale region
// and returns the highest scoring placement. Combinations run concurrently,
// but each writes its own slot and the reduction walks the slots in order,
// so equal inputs always produce the same Match.
func (m *Matcher) Match(region gocv.Mat, templates []*Template) Match {
	if region.Empty() || len(templates) == 0 {
		return Match{}
	}

	regionEdges := EdgeMap(region, m.params.EdgeMagnitude)
	defer regionEdges.Close()

	var combos []combination
	for _, tpl := range templates {
		for _, s := range m.params.Scales() {
			combos = append(combos, combination{tpl: tpl, scale: s})
		}
	}

	workers := m.params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]Match, len(combos))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, c := range combos {
		g.Go(func() error {
			results[i] = m.evaluate(region, regionEdges, c)
			return nil
		})
	}
	_ = g.Wait()

	var best Match
	for _, r := range results {
		if !r.Found() {
			continue
		}
		if !best.Found() || r.Score > best.Score {
			best = r
		}
	}

	if best.Found() {
		log.Debug().
			Float64("score", best.Score).
			Float64("scale", best.Scale).
			Str("template", best.Template.Name).
			Bool("edge", best.Edge).
			Int("combinations", len(combos)).
			Msg("best match")
	}
	return best
}

func (m *Matcher) evaluate(region, regionEdges gocv.Mat, c combination) Match {
	scaled := c.tpl.Scaled(c.scale)
	defer scaled.Close()
	if scaled.Empty() || scaled.Cols() < 4 || scaled.Rows() < 4 ||
		scaled.Cols() > region.Cols() || scaled.Rows() > region.Rows() {
		return Match{}
	}

	score, loc := matchScore(region, scaled)
	match := Match{
		Score:    score,
		Loc:      loc,
		Scale:    c.scale,
		Size:     image.Pt(scaled.Cols(), scaled.Rows()),
		Template: c.tpl,
	}
	if score >= m.params.EdgeFallbackBelow {
		return match
	}

	// Low contrast logos survive in the gradient even when intensity fails.
	tplEdges := EdgeMap(scaled, m.params.EdgeMagnitude)
	defer tplEdges.Close()
	if gocv.CountNonZero(tplEdges) == 0 {
		return match
	}
	if edgeScore, edgeLoc := matchScore(regionEdges, tplEdges); edgeScore > score {
		match.Score = edgeScore
		match.Loc = edgeLoc
		match.Edge = true
	}
	return match
}

// matchScore returns the maximum normalized correlation and its location.
func matchScore(region, templ gocv.Mat) (float64, image.Point) {
	result := gocv.NewMat()
	defer result.Close()
	noMask := gocv.NewMat()
	defer noMask.Close()

	gocv.MatchTemplate(region, templ, &result, gocv.TmCcoeffNormed, noMask)
	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)
	score := float64(maxVal)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return -1, maxLoc
	}
	return score, maxLoc
}

// EdgeMap thresholds the Sobel gradient magnitude of a grayscale image into a
// 0/255 map.
func EdgeMap(gray gocv.Mat, magnitude float32) gocv.Mat {
	gx := gocv.NewMat()
	defer gx.Close()
	gy := gocv.NewMat()
	defer gy.Close()
	mag := gocv.NewMat()
	defer mag.Close()

	gocv.Sobel(gray, &gx, gocv.MatTypeCV32F, 1, 0, 3, 1, 0, gocv.BorderReplicate)
	gocv.Sobel(gray, &gy, gocv.MatTypeCV32F, 0, 1, 3, 1, 0, gocv.BorderReplicate)
	gocv.Magnitude(gx, gy, &mag)
	gocv.Threshold(mag, &mag, magnitude, 255, gocv.ThresholdBinary)

	edges := gocv.NewMat()
	mag.ConvertTo(&edges, gocv.MatTypeCV8U)
	return edges
}

// ToGray converts a BGR plane to grayscale.
func ToGray(bgr gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)
	return gray
}
