package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchValidate(t *testing.T) {
	tests := []struct {
		name    string
		patch   Patch
		wantErr bool
	}{
		{"valid temp", Patch{FieldTargetTemp: 21.5}, false},
		{"valid combined", Patch{FieldTargetTemp: 18, FieldMode: 2}, false},
		{"range min boundary", Patch{FieldTargetTemp: 18}, false},
		{"range max boundary", Patch{FieldTargetTemp: 28}, false},
		{"below range", Patch{FieldTargetTemp: 17.9}, true},
		{"above range", Patch{FieldTargetTemp: 28.5}, true},
		{"negative curve offset ok", Patch{FieldCurveOffset: -3}, false},
		{"unknown field", Patch{"compressor_rpm": 3000}, true},
		{"mode fractional", Patch{FieldMode: 1.5}, true},
		{"mode out of range", Patch{FieldMode: 4}, true},
		{"empty patch", Patch{}, true},
		{"nil patch", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPatchMatchedBy(t *testing.T) {
	patch := Patch{FieldTargetTemp: 21.5, FieldMode: 1}

	t.Run("exact values match", func(t *testing.T) {
		assert.True(t, patch.MatchedBy(map[string]float64{
			FieldTargetTemp: 21.5,
			FieldMode:       1,
		}, 0.05))
	})

	t.Run("float within tolerance matches", func(t *testing.T) {
		assert.True(t, patch.MatchedBy(map[string]float64{
			FieldTargetTemp: 21.52,
			FieldMode:       1,
		}, 0.05))
	})

	t.Run("float outside tolerance does not match", func(t *testing.T) {
		assert.False(t, patch.MatchedBy(map[string]float64{
			FieldTargetTemp: 20.0,
			FieldMode:       1,
		}, 0.05))
	})

	t.Run("integer field compares exactly", func(t *testing.T) {
		assert.False(t, patch.MatchedBy(map[string]float64{
			FieldTargetTemp: 21.5,
			FieldMode:       2,
		}, 10))
	})

	t.Run("missing field is a non-match", func(t *testing.T) {
		assert.False(t, patch.MatchedBy(map[string]float64{
			FieldTargetTemp: 21.5,
		}, 0.05))
	})

	t.Run("extra reported fields are ignored", func(t *testing.T) {
		assert.True(t, patch.MatchedBy(map[string]float64{
			FieldTargetTemp: 21.5,
			FieldMode:       1,
			"outdoor_temp":  -7.2,
		}, 0.05))
	})
}

func TestSettingsApply(t *testing.T) {
	s := Settings{
		DeviceID:     "hp-01",
		TargetTemp:   21,
		HotWaterTemp: 50,
		CurveOffset:  0,
		Mode:         1,
	}

	s.Apply(Patch{FieldTargetTemp: 23.5, FieldMode: 2})

	require.Equal(t, 23.5, s.TargetTemp)
	require.Equal(t, 2, s.Mode)
	// untouched fields keep their values
	require.Equal(t, 50.0, s.HotWaterTemp)
	require.Equal(t, 0.0, s.CurveOffset)
}
