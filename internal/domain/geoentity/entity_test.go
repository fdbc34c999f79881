package geoentity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntity_Clusterable(t *testing.T) {
	tests := []struct {
		name string
		lat  *float64
		lng  *float64
		want bool
	}{
		{"both present", Float(40.4), Float(-3.7), true},
		{"zero coordinates", Float(0), Float(0), true},
		{"missing lat", nil, Float(-3.7), false},
		{"missing lng", Float(40.4), nil, false},
		{"both missing", nil, nil, false},
		{"NaN lat", Float(math.NaN()), Float(1), false},
		{"Inf lng", Float(1), Float(math.Inf(1)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Entity{ID: "e", Lat: tt.lat, Lng: tt.lng}
			assert.Equal(t, tt.want, e.Clusterable())

			lng, lat, ok := e.Coordinates()
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Equal(t, *tt.lng, lng)
				assert.Equal(t, *tt.lat, lat)
			}
		})
	}
}

func TestEntity_HasProduct(t *testing.T) {
	e := Entity{ProductIDs: []string{"p1", "p2"}}
	assert.True(t, e.HasProduct(map[string]struct{}{"p2": {}, "p9": {}}))
	assert.False(t, e.HasProduct(map[string]struct{}{"p9": {}}))
	assert.False(t, (&Entity{}).HasProduct(map[string]struct{}{"p1": {}}))
}

func TestScores_Vinculacion(t *testing.T) {
	var nilScores Scores
	_, ok := nilScores.Vinculacion("a")
	assert.False(t, ok)

	s := Scores{"a": 75}
	v, ok := s.Vinculacion("a")
	assert.True(t, ok)
	assert.Equal(t, 75.0, v)
}

func TestSnapshot_Len(t *testing.T) {
	var s *Snapshot
	assert.Zero(t, s.Len())
	assert.Equal(t, 2, (&Snapshot{Entities: make([]Entity, 2)}).Len())
}

//Personal.AI order the ending
