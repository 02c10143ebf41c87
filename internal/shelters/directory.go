package shelters

import "github.com/garrellmacarilay/floodguard-agent/internal/geo"

func geoPoint(lat, lon float64) geo.Point {
	return geo.Point{Lat: lat, Lon: lon}
}

// Directory returns the evacuation center dataset for Apalit,
// Pampanga. Returned as a fresh slice so callers cannot mutate the
// seed data.
func Directory() []Shelter {
	out := make([]Shelter, len(directory))
	copy(out, directory)
	return out
}

var directory = []Shelter{
	{
		ID:       "1",
		Name:     "Sulipan Covered Court",
		Address:  "Sulipan Barangay, Apalit (Via Sulipan Road)",
		City:     "Apalit",
		Location: geoPoint(14.9368921, 120.7579668),
		Phone:    "(045) 302-7033",
		Status:   StatusOpen,
	},
	{
		ID:       "2",
		Name:     "Capalangan Permanent Evacuation Center",
		Address:  "525 Alauli Rd, Capalangan Barangay",
		City:     "Apalit",
		Location: geoPoint(14.9309, 120.7681),
		Phone:    "(045) 302-9999",
		Status:   StatusOpen,
	},
	{
		ID:       "3",
		Name:     "Apalit Municipal Covered Court",
		Address:  "San Juan (Poblacion), Municipal Center",
		City:     "Apalit",
		Location: geoPoint(14.949561, 120.758692),
		Phone:    "(045) 302-6001",
		Status:   StatusOpen,
	},
	{
		ID:       "4",
		Name:     "Apalit High School",
		Address:  "151 Sulipan Road, Sulipan/San Vicente",
		City:     "Apalit",
		Location: geoPoint(14.941889, 120.759722),
		Phone:    "(045) 302-5555",
		Status:   StatusFull,
	},
	{
		ID:       "5",
		Name:     "Jose Escaler Memorial School",
		Address:  "Governor Gonzales Avenue, San Juan",
		City:     "Apalit",
		Location: geoPoint(14.95, 120.758),
		Phone:    "(045) 302-4444",
		Status:   StatusOpen,
	},
	{
		ID:       "6",
		Name:     "Tabuyuc Barangay Covered Court",
		Address:  "Tabuyuc (Santo Rosario) Barangay",
		City:     "Apalit",
		Location: geoPoint(14.9738, 120.7486),
		Phone:    "(045) 302-2222",
		Status:   StatusOpen,
	},
}
