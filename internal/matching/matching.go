package matching

import (
	"math"
	"sort"

	"soothe/internal/models"
)

// Candidate is a roster therapist with the computed distance to the customer.
type Candidate struct {
	Therapist  models.Therapist
	DistanceKm float64
}

// FilterAndOrder keeps available therapists within radiusKm of origin and
// returns them nearest first. Ties keep roster order (stable sort). A zero
// origin means geocoding never produced a point, so nobody is in range —
// callers must surface that instead of substituting a default location.
func FilterAndOrder(origin models.Coordinates, roster []models.Therapist, radiusKm float64) []Candidate {
	if origin.IsZero() {
		return nil
	}
	if radiusKm <= 0 {
		radiusKm = models.DefaultRadiusKm
	}

	candidates := make([]Candidate, 0, len(roster))
	for _, t := range roster {
		if !t.Available {
			continue
		}
		d := haversine(origin.Lat, origin.Lon, t.Lat, t.Lon)
		if d > radiusKm {
			continue
		}
		candidates = append(candidates, Candidate{Therapist: t, DistanceKm: d})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DistanceKm < candidates[j].DistanceKm
	})

	return candidates
}

// CandidateOrder flattens candidates into the dispatch order for a booking.
// The customer's selected therapist gets first right of refusal regardless of
// distance; everyone else follows nearest first. An unknown selectedID leaves
// the distance order untouched.
func CandidateOrder(selectedID string, candidates []Candidate) []string {
	order := make([]string, 0, len(candidates))
	if selectedID != "" {
		for _, c := range candidates {
			if c.Therapist.ID == selectedID {
				order = append(order, selectedID)
				break
			}
		}
	}
	for _, c := range candidates {
		if c.Therapist.ID == selectedID {
			continue
		}
		order = append(order, c.Therapist.ID)
	}
	return order
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371
	dLat := (lat2 - lat1) * (math.Pi / 180)
	dLon := (lon2 - lon1) * (math.Pi / 180)
	lat1Rad := lat1 * (math.Pi / 180)
	lat2Rad := lat2 * (math.Pi / 180)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
