package rating

import "math"

const (
	// SqIn2SqFt converts square inches to square feet.
	SqIn2SqFt = 0.00694444
	// CFS2GPM converts cubic feet per second to US gallons per minute.
	CFS2GPM = 448.8325660485
	// GPM2CFS converts US gallons per minute to cubic feet per second.
	GPM2CFS = 0.0026757275153786
	// CMS2GPM converts cubic metres per second to US gallons per minute.
	CMS2GPM = 15850.372483753

	gravity = 9.81
	inch    = 0.0254
	// headCorrection is the CTRSC head correction in metres.
	headCorrection = 0.0008
)

// PipeFlowResult is the discharge through a partially full pipe.
type PipeFlowResult struct {
	AreaSqFt float64
	CFS      float64
	GPM      float64
}

// PipeFlow computes discharge for a circular pipe of diameterIn inches with
// water stageIn inches deep moving at velocityFps feet per second. The
// stage is clamped to [0, diameter].
func PipeFlow(diameterIn, stageIn, velocityFps float64) PipeFlowResult {
	if diameterIn <= 0 {
		return PipeFlowResult{}
	}
	h := math.Max(0, math.Min(stageIn, diameterIn))
	r := diameterIn / 2
	theta := 2 * math.Acos((r-h)/r)
	areaIn := r * r * (theta - math.Sin(theta)) / 2
	area := areaIn * SqIn2SqFt
	cfs := area * velocityFps
	return PipeFlowResult{AreaSqFt: area, CFS: cfs, GPM: cfs * CFS2GPM}
}

// CompoundWeir describes a V-notch weir cut into the crest of a wider
// rectangular weir. Dimensions are in inches.
type CompoundWeir struct {
	VNotchDepth float64 `yaml:"vnotch_depth_in"`
	NotchWidth  float64 `yaml:"notch_width_in"`
	RectWidth   float64 `yaml:"rect_width_in"`
	// Ctd and Crd are the triangular and rectangular discharge coefficients.
	Ctd float64 `yaml:"ctd"`
	Crd float64 `yaml:"crd"`
}

// DefaultCompoundWeir is the 90° notch and 9 ft crest used at the MARB sites.
var DefaultCompoundWeir = CompoundWeir{
	VNotchDepth: 12,
	NotchWidth:  12,
	RectWidth:   108,
	Ctd:         0.579,
	Crd:         0.590,
}

// GPM returns discharge in gallons per minute for a head of levelIn inches,
// rounded to three decimals.
func (w CompoundWeir) GPM(levelIn float64) float64 {
	if levelIn <= 0 {
		return 0
	}
	h2 := levelIn * inch
	h2e := h2 + headCorrection
	h1 := math.Max(h2-w.VNotchDepth*inch, 0)
	h1e := h1 + headCorrection
	b1 := w.RectWidth * inch

	root2g := math.Sqrt(2 * gravity)
	tri := 8.0 / 15.0 * w.Ctd * root2g * math.Tan(math.Pi/4) *
		(math.Pow(h2e, 2.5) - math.Pow(h1e, 2.5))
	rect := 2.0 / 3.0 * w.Crd * root2g * (2 * b1) * math.Pow(h1, 1.5)

	return math.Round((tri+rect)*CMS2GPM*1000) / 1000
}
