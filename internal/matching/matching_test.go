package matching

import (
	"testing"

	"soothe/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sydney CBD; offsets of 0.01 degrees latitude are roughly 1.1 km.
var origin = models.Coordinates{Lat: -33.8688, Lon: 151.2093}

func therapist(id string, latOffset float64, available bool) models.Therapist {
	return models.Therapist{
		ID:        id,
		Name:      id,
		Email:     id + "@example.com",
		Lat:       origin.Lat + latOffset,
		Lon:       origin.Lon,
		Available: available,
	}
}

func TestFilterAndOrder(t *testing.T) {
	roster := []models.Therapist{
		therapist("t-far", 0.20, true),    // ~22 km, out of range
		therapist("t-mid", 0.045, true),   // ~5 km
		therapist("t-near", 0.018, true),  // ~2 km
		therapist("t-busy", 0.009, false), // ~1 km but unavailable
	}

	got := FilterAndOrder(origin, roster, 10)
	require.Len(t, got, 2)
	assert.Equal(t, "t-near", got[0].Therapist.ID)
	assert.Equal(t, "t-mid", got[1].Therapist.ID)
	assert.Less(t, got[0].DistanceKm, got[1].DistanceKm)

	t.Run("Idempotent", func(t *testing.T) {
		again := FilterAndOrder(origin, roster, 10)
		require.Len(t, again, 2)
		assert.Equal(t, got[0].Therapist.ID, again[0].Therapist.ID)
		assert.Equal(t, got[1].Therapist.ID, again[1].Therapist.ID)
	})

	t.Run("UnavailableNeverAppears", func(t *testing.T) {
		for _, c := range got {
			assert.True(t, c.Therapist.Available)
		}
	})
}

func TestFilterAndOrderZeroOrigin(t *testing.T) {
	roster := []models.Therapist{therapist("t1", 0.01, true)}
	got := FilterAndOrder(models.Coordinates{}, roster, 10)
	assert.Empty(t, got, "missing geocode must yield no candidates, not a default location")
}

func TestFilterAndOrderStableTies(t *testing.T) {
	// Identical coordinates: roster order decides.
	roster := []models.Therapist{
		therapist("t-a", 0.02, true),
		therapist("t-b", 0.02, true),
	}
	got := FilterAndOrder(origin, roster, 10)
	require.Len(t, got, 2)
	assert.Equal(t, "t-a", got[0].Therapist.ID)
	assert.Equal(t, "t-b", got[1].Therapist.ID)
}

func TestCandidateOrder(t *testing.T) {
	candidates := FilterAndOrder(origin, []models.Therapist{
		therapist("t-near", 0.018, true),
		therapist("t-mid", 0.045, true),
	}, 10)
	require.Len(t, candidates, 2)

	t.Run("SelectedFirst", func(t *testing.T) {
		order := CandidateOrder("t-mid", candidates)
		assert.Equal(t, []string{"t-mid", "t-near"}, order)
	})

	t.Run("NoSelection", func(t *testing.T) {
		order := CandidateOrder("", candidates)
		assert.Equal(t, []string{"t-near", "t-mid"}, order)
	})

	t.Run("UnknownSelection", func(t *testing.T) {
		order := CandidateOrder("t-ghost", candidates)
		assert.Equal(t, []string{"t-near", "t-mid"}, order)
	})
}
