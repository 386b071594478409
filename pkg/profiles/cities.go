package profiles

import "github.com/riddle022/farmavision/pkg/registry"

// City is one entry of the reference city catalog. Profiles in "city" mode
// pin the city's fixed coordinate instead of asking the device.
type City struct {
	Name  string  `json:"nome"`
	State string  `json:"uf"`
	Lat   float64 `json:"latitude"`
	Lon   float64 `json:"longitude"`
}

// The price program behind the upstream API covers Paraná, so the catalog
// carries its largest cities.
var cities = []City{
	{Name: "Curitiba", State: "PR", Lat: -25.4284, Lon: -49.2733},
	{Name: "Londrina", State: "PR", Lat: -23.3045, Lon: -51.1696},
	{Name: "Maringá", State: "PR", Lat: -23.4205, Lon: -51.9333},
	{Name: "Ponta Grossa", State: "PR", Lat: -25.0945, Lon: -50.1633},
	{Name: "Cascavel", State: "PR", Lat: -24.9555, Lon: -53.4552},
	{Name: "Foz do Iguaçu", State: "PR", Lat: -25.5469, Lon: -54.5882},
}

// Cities lists the reference catalog.
func Cities() []City {
	out := make([]City, len(cities))
	copy(out, cities)
	return out
}

// CityByName finds a catalog city, ignoring case and accents ("maringa"
// matches "Maringá").
func CityByName(name string) (City, bool) {
	key := registry.NameKey(name)
	if key == "" {
		return City{}, false
	}
	for _, city := range cities {
		if registry.NameKey(city.Name) == key {
			return city, true
		}
	}
	return City{}, false
}
