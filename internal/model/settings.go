package model

import (
	"fmt"
	"math"
	"time"
)

// Settings field names, shared between patches, telemetry readings and the
// device_settings columns.
const (
	FieldTargetTemp   = "target_temp"
	FieldHotWaterTemp = "hot_water_temp"
	FieldCurveOffset  = "curve_offset"
	FieldMode         = "mode"
)

// FieldSpec declares the valid range for one settings field.
type FieldSpec struct {
	Min     float64
	Max     float64
	Integer bool
}

// Fields is the registry of patchable settings fields.
var Fields = map[string]FieldSpec{
	FieldTargetTemp:   {Min: 18, Max: 28},
	FieldHotWaterTemp: {Min: 40, Max: 65},
	FieldCurveOffset:  {Min: -5, Max: 5},
	FieldMode:         {Min: 0, Max: 3, Integer: true},
}

// Patch is a partial settings change: field name -> requested value.
// JSON numbers decode to float64, integer fields are validated as whole values.
type Patch map[string]float64

// Validate checks every patched field against the registry.
func (p Patch) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("empty patch")
	}
	for name, val := range p {
		spec, ok := Fields[name]
		if !ok {
			return fmt.Errorf("unknown field %q", name)
		}
		if val < spec.Min || val > spec.Max {
			return fmt.Errorf("field %q out of range: %v not in [%v, %v]", name, val, spec.Min, spec.Max)
		}
		if spec.Integer && val != math.Trunc(val) {
			return fmt.Errorf("field %q must be an integer, got %v", name, val)
		}
	}
	return nil
}

// MatchedBy reports whether a telemetry reading satisfies every field of the
// patch. Integer fields compare exactly, floats within tol. A field missing
// from the reading is a non-match, not an error.
func (p Patch) MatchedBy(reported map[string]float64, tol float64) bool {
	for name, want := range p {
		got, ok := reported[name]
		if !ok {
			return false
		}
		if Fields[name].Integer {
			if got != want {
				return false
			}
			continue
		}
		if math.Abs(got-want) > tol {
			return false
		}
	}
	return true
}

// Settings is the desired-settings row persisted in device_settings.
type Settings struct {
	DeviceID     string    `db:"device_id" json:"device_id"`
	TargetTemp   float64   `db:"target_temp" json:"target_temp"`
	HotWaterTemp float64   `db:"hot_water_temp" json:"hot_water_temp"`
	CurveOffset  float64   `db:"curve_offset" json:"curve_offset"`
	Mode         int       `db:"mode" json:"mode"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Apply overlays the patch onto the snapshot. The patch must already be valid.
func (s *Settings) Apply(p Patch) {
	for name, val := range p {
		switch name {
		case FieldTargetTemp:
			s.TargetTemp = val
		case FieldHotWaterTemp:
			s.HotWaterTemp = val
		case FieldCurveOffset:
			s.CurveOffset = val
		case FieldMode:
			s.Mode = int(val)
		}
	}
}
