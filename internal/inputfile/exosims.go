package inputfile

import (
	"fmt"
	"math"

	"github.com/ohler55/ojg/jp"

	"github.com/agentic-research/yieldtree/internal/units"
)

// exportRule copies one AYO parameter into an EXOSIMS script field.
type exportRule struct {
	path    string // JSONPath into the script
	key     string // AYO parameter
	unit    string // unit expected by EXOSIMS, "" for plain numbers
	perBand bool   // parameter may be an array indexed by the band of lambda
	def     any    // used when the parameter is absent; nil omits the field
}

var exportRules = []exportRule{
	{path: "$.pupilDiam", key: "D", unit: "m", def: 4.0},
	{path: "$.obscurFac", key: "obscuration", def: 0.0},
	{path: "$.missionLife", key: "total_survey_time", unit: "yr", def: 5.0},
	{path: "$.missionPortion", key: "survey_portion", def: 1.0},
	{path: "$.ppFact", key: "post_processing_factor", def: 1.0},
	{path: "$.nEZ", key: "nexozodis", def: 3.0},

	{path: "$.scienceInstruments[0].QE", key: "QE", perBand: true, def: 0.9},
	{path: "$.scienceInstruments[0].sread", key: "read_noise", def: 0.0},
	{path: "$.scienceInstruments[0].idark", key: "dark_current", unit: "count/s", def: 3e-5},
	{path: "$.scienceInstruments[0].CIC", key: "CIC", def: 1.3e-3},

	{path: "$.starlightSuppressionSystems[0].IWA", key: "IWA", unit: "arcsec", perBand: true},
	{path: "$.starlightSuppressionSystems[0].OWA", key: "OWA", unit: "arcsec", perBand: true},
	{path: "$.starlightSuppressionSystems[0].core_contrast", key: "raw_contrast", perBand: true, def: 1e-10},
	{path: "$.starlightSuppressionSystems[0].core_thruput", key: "coro_throughput", perBand: true, def: 0.1},

	{path: "$.observingModes[0].SNR", key: "SNR", def: 7.0},
	{path: "$.observingModes[0].lam", key: "lambda", unit: "nm", perBand: true, def: 550.0},
	{path: "$.observingModes[0].BW", key: "bandwidth", perBand: true, def: 0.2},
}

var defaultModules = map[string]any{
	"BackgroundSources":   " ",
	"Completeness":        "BrownCompleteness",
	"Observatory":         "WFIRSTObservatoryL2",
	"OpticalSystem":       "Nemati",
	"PlanetPhysicalModel": "FortneyMarleyCahoyMix1",
	"PlanetPopulation":    "EarthTwinHabZone1",
	"PostProcessing":      " ",
	"SimulatedUniverse":   "SolarSystemUniverse",
	"StarCatalog":         "EXOCAT1",
	"SurveyEnsemble":      " ",
	"SurveySimulation":    " ",
	"TargetList":          " ",
	"TimeKeeping":         " ",
	"ZodiacalLight":       "Stark",
}

// ExportEXOSIMS translates parsed AYO parameters into an EXOSIMS JSON script.
//
// Per-band arrays are indexed at the band of lambda nearest to lambda_ref
// (band 0 when lambda_ref is absent). Angles given in lambda/D are converted
// to arcsec with the detection wavelength and the pupil diameter.
func ExportEXOSIMS(f *File, uctx *units.Context) (map[string]any, error) {
	if uctx == nil {
		uctx = units.NewContext()
	}
	script := map[string]any{
		"scienceInstruments":          []any{map[string]any{"name": "imager"}},
		"starlightSuppressionSystems": []any{map[string]any{"name": "coronagraph"}},
		"observingModes": []any{map[string]any{
			"instName":      "imager",
			"systName":      "coronagraph",
			"detectionMode": true,
		}},
		"modules": copyModules(),
	}

	band, err := referenceBand(f, uctx)
	if err != nil {
		return nil, err
	}
	lam, diam, err := opticsScale(f, band, uctx)
	if err != nil {
		return nil, err
	}

	for _, rule := range exportRules {
		v, ok, err := exportValue(f, rule, band, lam, diam, uctx)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", rule.key, err)
		}
		if !ok {
			continue
		}
		x, err := jp.ParseString(rule.path)
		if err != nil {
			return nil, fmt.Errorf("export path %s: %w", rule.path, err)
		}
		if err := x.Set(script, v); err != nil {
			return nil, fmt.Errorf("set %s: %w", rule.path, err)
		}
	}
	return script, nil
}

func copyModules() map[string]any {
	out := make(map[string]any, len(defaultModules))
	for k, v := range defaultModules {
		out[k] = v
	}
	return out
}

// referenceBand picks the index of lambda nearest to lambda_ref.
func referenceBand(f *File, uctx *units.Context) (int, error) {
	lp, ok := f.Get("lambda")
	if !ok {
		return 0, nil
	}
	lams, arr, ok := numeric(lp.Value)
	if !ok || !arr || len(lams) == 0 {
		return 0, nil
	}
	rp, ok := f.Get("lambda_ref")
	if !ok {
		return 0, nil
	}
	refs, _, ok := numeric(rp.Value)
	if !ok {
		return 0, fmt.Errorf("lambda_ref is not numeric")
	}
	ref := refs[0]
	if lp.Unit != nil && rp.Unit != nil {
		r, err := units.Convert(ref, *rp.Unit, *lp.Unit)
		if err != nil {
			return 0, fmt.Errorf("lambda_ref: %w", err)
		}
		ref = r
	}
	return nearest(lams, ref), nil
}

func nearest(xs []float64, target float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, x := range xs {
		if d := math.Abs(x - target); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// opticsScale returns the detection wavelength and pupil diameter in meters,
// zero when unknown.
func opticsScale(f *File, band int, uctx *units.Context) (float64, float64, error) {
	meter, _ := uctx.Lookup("m")
	var lam, diam float64
	if p, ok := f.Get("lambda"); ok {
		v, err := bandValue(p, band)
		if err != nil {
			return 0, 0, fmt.Errorf("lambda: %w", err)
		}
		from := p.Unit
		if from == nil {
			um, _ := uctx.Lookup("um")
			from = &um
		}
		if lam, err = units.Convert(v, *from, meter); err != nil {
			return 0, 0, fmt.Errorf("lambda: %w", err)
		}
	}
	if p, ok := f.Get("D"); ok {
		v, err := bandValue(p, 0)
		if err != nil {
			return 0, 0, fmt.Errorf("D: %w", err)
		}
		diam = v
		if p.Unit != nil {
			if diam, err = units.Convert(v, *p.Unit, meter); err != nil {
				return 0, 0, fmt.Errorf("D: %w", err)
			}
		}
	}
	return lam, diam, nil
}

func bandValue(p Param, band int) (float64, error) {
	vs, arr, ok := numeric(p.Value)
	if !ok {
		return 0, fmt.Errorf("not numeric (%T)", p.Value)
	}
	if !arr {
		return vs[0], nil
	}
	if band >= len(vs) {
		return 0, fmt.Errorf("band %d out of range (%d values)", band, len(vs))
	}
	return vs[band], nil
}

func exportValue(f *File, rule exportRule, band int, lam, diam float64, uctx *units.Context) (any, bool, error) {
	p, ok := f.Get(rule.key)
	if !ok {
		return rule.def, rule.def != nil, nil
	}
	idx := 0
	if rule.perBand {
		idx = band
	}
	v, err := bandValue(p, idx)
	if err != nil {
		return nil, false, err
	}
	if rule.unit == "" || p.Unit == nil {
		return v, true, nil
	}
	to, err := uctx.Parse(rule.unit)
	if err != nil {
		return nil, false, err
	}
	if p.Unit.Dim[units.LambdaOverD] == 1 && to.Dim[units.Angle] == 1 {
		if lam == 0 || diam == 0 {
			return nil, false, fmt.Errorf("%s in lambda/D needs lambda and D", rule.key)
		}
		rad, _ := uctx.Lookup("rad")
		out, err := units.Convert(v*lam/diam, rad, to)
		if err != nil {
			return nil, false, err
		}
		return out, true, nil
	}
	out, err := units.Convert(v, *p.Unit, to)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}
