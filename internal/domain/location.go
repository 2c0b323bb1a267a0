package domain

// GlobeLocation is a city pinned on the globe.
type GlobeLocation struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

var globeLocations = []GlobeLocation{
	{Name: "New York", Lat: 40.7128, Lng: -74.0060},
	{Name: "London", Lat: 51.5074, Lng: -0.1278},
	{Name: "Tokyo", Lat: 35.6762, Lng: 139.6503},
	{Name: "Hong Kong", Lat: 22.3193, Lng: 114.1694},
	{Name: "Singapore", Lat: 1.3521, Lng: 103.8198},
	{Name: "Shanghai", Lat: 31.2304, Lng: 121.4737},
	{Name: "Frankfurt", Lat: 50.1109, Lng: 8.6821},
	{Name: "Paris", Lat: 48.8566, Lng: 2.3522},
	{Name: "Zurich", Lat: 47.3769, Lng: 8.5417},
	{Name: "Toronto", Lat: 43.6532, Lng: -79.3832},
	{Name: "Sydney", Lat: -33.8688, Lng: 151.2093},
	{Name: "Mumbai", Lat: 19.0760, Lng: 72.8777},
	{Name: "Dubai", Lat: 25.2048, Lng: 55.2708},
	{Name: "Seoul", Lat: 37.5665, Lng: 126.9780},
}

// GlobeLocations returns a copy of the coordinate table.
func GlobeLocations() []GlobeLocation {
	out := make([]GlobeLocation, len(globeLocations))
	copy(out, globeLocations)
	return out
}

// FindGlobeLocation looks a location prefix up in the coordinate table.
func FindGlobeLocation(name string) (GlobeLocation, bool) {
	for _, loc := range globeLocations {
		if loc.Name == name {
			return loc, true
		}
	}
	return GlobeLocation{}, false
}
