package fgddem

// GeographicBounds is the union extent of a set of tiles in degrees.
type GeographicBounds struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// ComputeBounds returns the union of the corners of metas. It returns the zero
// value if metas is empty.
func ComputeBounds(metas []TileMetadata) GeographicBounds {
	if len(metas) == 0 {
		return GeographicBounds{}
	}
	bounds := GeographicBounds{
		MinLat: metas[0].LowerCorner.Lat,
		MaxLat: metas[0].UpperCorner.Lat,
		MinLng: metas[0].LowerCorner.Lng,
		MaxLng: metas[0].UpperCorner.Lng,
	}
	for _, meta := range metas[1:] {
		bounds.MinLat = min(bounds.MinLat, meta.LowerCorner.Lat)
		bounds.MaxLat = max(bounds.MaxLat, meta.UpperCorner.Lat)
		bounds.MinLng = min(bounds.MinLng, meta.LowerCorner.Lng)
		bounds.MaxLng = max(bounds.MaxLng, meta.UpperCorner.Lng)
	}
	return bounds
}

// IsEmpty returns whether b has no area.
func (b GeographicBounds) IsEmpty() bool {
	return b.MaxLat <= b.MinLat || b.MaxLng <= b.MinLng
}
