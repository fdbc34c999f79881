package cluster

import (
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
)

// AbbreviateCount renders a cluster size the way map clients label it:
// 950, 1.2k, 15k.
func AbbreviateCount(n int) string {
	switch {
	case n >= 10000:
		return strconv.Itoa(int(math.Round(float64(n)/1000))) + "k"
	case n >= 1000:
		return strconv.FormatFloat(math.Round(float64(n)/100)/10, 'f', -1, 64) + "k"
	default:
		return strconv.Itoa(n)
	}
}

// Feature encodes one item.  Clusters carry cluster, cluster_id, point_count
// and point_count_abbreviated; points carry entity_id and name.
func (it Item) Feature() *geojson.Feature {
	f := geojson.NewFeature(orb.Point{it.Lng, it.Lat})
	if it.Cluster {
		f.ID = it.ClusterID
		f.Properties["cluster"] = true
		f.Properties["cluster_id"] = it.ClusterID
		f.Properties["point_count"] = it.Count
		f.Properties["point_count_abbreviated"] = AbbreviateCount(it.Count)
		return f
	}
	f.ID = it.EntityID
	f.Properties["cluster"] = false
	f.Properties["entity_id"] = it.EntityID
	if it.Name != "" {
		f.Properties["name"] = it.Name
	}
	return f
}

// FeatureCollection encodes the visible items.
func (v *Visible) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if v == nil {
		return fc
	}
	for _, it := range v.Items {
		fc.Append(it.Feature())
	}
	return fc
}

// EntityFeatures encodes entities as point features with their attributes.
// Entities without coordinates are left out.
func EntityFeatures(entities []geoentity.Entity, scores geoentity.Scores) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := range entities {
		e := &entities[i]
		lng, lat, ok := e.Coordinates()
		if !ok {
			continue
		}
		f := geojson.NewFeature(orb.Point{lng, lat})
		f.ID = e.ID
		f.Properties["entity_id"] = e.ID
		f.Properties["name"] = e.Name
		setIfNotEmpty(f.Properties, "address", e.Address)
		setIfNotEmpty(f.Properties, "sector", e.Sector)
		setIfNotEmpty(f.Properties, "parroquia", e.Parroquia)
		setIfNotEmpty(f.Properties, "status_id", e.StatusID)
		setIfNotEmpty(f.Properties, "owner_id", e.OwnerID)
		if len(e.ProductIDs) > 0 {
			f.Properties["product_ids"] = e.ProductIDs
		}
		if e.Turnover != nil {
			f.Properties["turnover"] = *e.Turnover
		}
		if e.Margin != nil {
			f.Properties["margin"] = *e.Margin
		}
		if v, ok := scores.Vinculacion(e.ID); ok {
			f.Properties["vinculacion"] = v
		}
		fc.Append(f)
	}
	return fc
}

func setIfNotEmpty(p geojson.Properties, key, val string) {
	if val != "" {
		p[key] = val
	}
}

//Personal.AI order the ending
