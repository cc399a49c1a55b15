package models

// Therapist is read-only roster data, loaded from configs/therapists.yaml.
type Therapist struct {
	ID         string  `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	Email      string  `json:"email" yaml:"email"`
	Lat        float64 `json:"lat" yaml:"lat"`
	Lon        float64 `json:"lon" yaml:"lon"`
	Available  bool    `json:"available" yaml:"available"`
	HourlyRate float64 `json:"hourly_rate" yaml:"hourly_rate"`
}

func (t Therapist) Location() Coordinates {
	return Coordinates{Lat: t.Lat, Lon: t.Lon}
}
