package cluster

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
	"github.com/turtacn/BizAtlas/internal/testutil"
)

func TestAbbreviateCount(t *testing.T) {
	cases := map[int]string{
		7:     "7",
		999:   "999",
		1000:  "1k",
		1234:  "1.2k",
		9999:  "10k",
		15499: "15k",
		15500: "16k",
	}
	for n, want := range cases {
		assert.Equal(t, want, AbbreviateCount(n), "n=%d", n)
	}
}

func TestItem_Feature(t *testing.T) {
	c := Item{Cluster: true, ClusterID: 321, Count: 1500, Lng: -3.7, Lat: 40.4}.Feature()
	assert.Equal(t, orb.Point{-3.7, 40.4}, c.Geometry)
	assert.Equal(t, true, c.Properties["cluster"])
	assert.Equal(t, 321, c.Properties["cluster_id"])
	assert.Equal(t, 1500, c.Properties["point_count"])
	assert.Equal(t, "1.5k", c.Properties["point_count_abbreviated"])

	p := Item{Count: 1, EntityID: "e1", Name: "Panadería", Lng: 1, Lat: 2}.Feature()
	assert.Equal(t, false, p.Properties["cluster"])
	assert.Equal(t, "e1", p.Properties["entity_id"])
	assert.Equal(t, "Panadería", p.Properties["name"])
	_, hasClusterID := p.Properties["cluster_id"]
	assert.False(t, hasClusterID)
}

func TestVisible_FeatureCollectionMarshals(t *testing.T) {
	v := &Visible{Items: []Item{
		{Cluster: true, ClusterID: 99, Count: 3, Lng: 0, Lat: 0},
		{Count: 1, EntityID: "e2", Lng: 1, Lat: 1},
	}}

	raw, err := json.Marshal(v.FeatureCollection())
	require.NoError(t, err)

	var decoded struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "FeatureCollection", decoded.Type)
	require.Len(t, decoded.Features, 2)
	assert.Equal(t, "Point", decoded.Features[0].Geometry.Type)
	assert.Equal(t, float64(3), decoded.Features[0].Properties["point_count"])
	assert.Equal(t, []float64{1, 1}, decoded.Features[1].Geometry.Coordinates)

	var nilVisible *Visible
	assert.Empty(t, nilVisible.FeatureCollection().Features)
}

func TestEntityFeatures(t *testing.T) {
	entities := []geoentity.Entity{
		testutil.NewEntity("a", testutil.At(40.4, -3.7), testutil.WithTurnover(1e6), testutil.InSector("4711")),
		testutil.NewEntity("b"),
		testutil.NewEntity("c", testutil.At(41.4, 2.2)),
	}
	fc := EntityFeatures(entities, geoentity.Scores{"a": 72.5})

	require.Len(t, fc.Features, 2)
	a := fc.Features[0]
	assert.Equal(t, "a", a.ID)
	assert.Equal(t, 1e6, a.Properties["turnover"])
	assert.Equal(t, 72.5, a.Properties["vinculacion"])
	assert.Equal(t, "4711", a.Properties["sector"])
	_, hasMargin := a.Properties["margin"]
	assert.False(t, hasMargin)

	_, hasScore := fc.Features[1].Properties["vinculacion"]
	assert.False(t, hasScore)
}

//Personal.AI order the ending
