package tree

import (
	"fmt"
	"sort"
)

// DRMStarSummary folds a design reference mission (the observation list of
// an EXOSIMS run) into one row per target star: star index, number of
// visits, number of detected planets, and total detection and
// characterization time in days.
func DRMStarSummary(v Value) (Value, error) {
	obs, ok := v.Data.([]any)
	if !ok {
		if m, isMap := v.Data.([]map[string]any); isMap {
			obs = make([]any, len(m))
			for i := range m {
				obs[i] = m[i]
			}
		} else {
			return Value{}, fmt.Errorf("drm_star_summary: observations are %T", v.Data)
		}
	}

	type agg struct {
		visits, detections, detTime, charTime float64
	}
	stars := make(map[int64]*agg)
	for i, o := range obs {
		rec, ok := o.(map[string]any)
		if !ok {
			return Value{}, fmt.Errorf("drm_star_summary: observation %d is %T", i, o)
		}
		sind, ok := scalarFloat(rec["star_ind"])
		if !ok {
			return Value{}, fmt.Errorf("drm_star_summary: observation %d has no star_ind", i)
		}
		a := stars[int64(sind)]
		if a == nil {
			a = &agg{}
			stars[int64(sind)] = a
		}
		a.visits++
		if t, ok := scalarFloat(rec["det_time"]); ok {
			a.detTime += t
		}
		if t, ok := scalarFloat(rec["char_time"]); ok {
			a.charTime += t
		}
		a.detections += countDetections(rec["det_status"])
	}

	ids := make([]int64, 0, len(stars))
	for id := range stars {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	t := &Table{Columns: []string{"star_ind", "visits", "detections", "det_time", "char_time"}}
	for _, id := range ids {
		a := stars[id]
		t.Rows = append(t.Rows, []float64{float64(id), a.visits, a.detections, a.detTime, a.charTime})
	}
	return Value{Data: t}, nil
}

// scalarFloat reads a number, including a {"value": x} quantity record.
func scalarFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case []float64:
		if len(x) == 1 {
			return x[0], true
		}
	case map[string]any:
		return scalarFloat(x["value"])
	}
	return 0, false
}

// countDetections counts planets flagged 1 in det_status.
func countDetections(v any) float64 {
	var n float64
	switch x := v.(type) {
	case []float64:
		for _, s := range x {
			if s == 1 {
				n++
			}
		}
	case []any:
		for _, e := range x {
			if s, ok := scalarFloat(e); ok && s == 1 {
				n++
			}
		}
	default:
		if s, ok := scalarFloat(v); ok && s == 1 {
			n++
		}
	}
	return n
}
