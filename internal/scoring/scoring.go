// Package scoring computes how well a tenant matches a listing. The score
// orders the waitlist and is frozen on the interest when it is created.
package scoring

import (
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"roommate/server/internal/models"
)

const (
	MaxScore = 100

	weightGender     = 20
	weightAge        = 20
	weightOccupation = 15
	weightSmoking    = 15
	weightPets       = 10
	weightBudget     = 10
	weightDistance   = 10

	// points lost per year outside the preferred age range
	agePenaltyPerYear = 4

	defaultSearchRadiusKm = 10.0
)

// Criteria is everything about a listing the scorer looks at
type Criteria struct {
	Preferences models.ListingPreferences
	Rent        int
	Latitude    *float64
	Longitude   *float64
}

func ForListing(l *models.Listing) Criteria {
	return Criteria{
		Preferences: l.Preferences,
		Rent:        l.Rent,
		Latitude:    l.Latitude,
		Longitude:   l.Longitude,
	}
}

// Score returns a match score in [0, 100]. Preferences the landlord left
// empty award full points; unknown tenant data earns half.
func Score(p models.Profile, c Criteria) int {
	total := genderPoints(p, c) +
		agePoints(p, c) +
		occupationPoints(p, c) +
		smokingPoints(p, c) +
		petPoints(p, c) +
		budgetPoints(p, c) +
		distancePoints(p, c)

	return clamp(total, 0, MaxScore)
}

// ScoreGroup scores a group as the rounded mean of its members' scores.
func ScoreGroup(profiles []models.Profile, c Criteria) int {
	if len(profiles) == 0 {
		return 0
	}
	sum := 0
	for _, p := range profiles {
		sum += Score(p, c)
	}
	n := len(profiles)
	return (sum + n/2) / n
}

func anyPreference(v string) bool {
	return v == "" || strings.EqualFold(v, "ANY")
}

func genderPoints(p models.Profile, c Criteria) int {
	pref := c.Preferences.Gender
	switch {
	case anyPreference(pref):
		return weightGender
	case p.Gender == "":
		return weightGender / 2
	case strings.EqualFold(pref, p.Gender):
		return weightGender
	}
	return 0
}

func agePoints(p models.Profile, c Criteria) int {
	lo, hi := c.Preferences.MinAge, c.Preferences.MaxAge
	if lo <= 0 && hi <= 0 {
		return weightAge
	}
	if p.Age <= 0 {
		return weightAge / 2
	}

	outside := 0
	switch {
	case lo > 0 && p.Age < lo:
		outside = lo - p.Age
	case hi > 0 && p.Age > hi:
		outside = p.Age - hi
	}
	return clamp(weightAge-outside*agePenaltyPerYear, 0, weightAge)
}

func occupationPoints(p models.Profile, c Criteria) int {
	pref := c.Preferences.Occupation
	switch {
	case anyPreference(pref):
		return weightOccupation
	case p.Occupation == "":
		return weightOccupation / 2
	case strings.EqualFold(pref, p.Occupation):
		return weightOccupation
	}
	return 0
}

func smokingPoints(p models.Profile, c Criteria) int {
	if !p.Smoker || c.Preferences.SmokersAllowed {
		return weightSmoking
	}
	return 0
}

func petPoints(p models.Profile, c Criteria) int {
	if !p.HasPets || c.Preferences.PetsAllowed {
		return weightPets
	}
	return 0
}

// budgetPoints falls off linearly: a rent 50% over budget earns nothing
func budgetPoints(p models.Profile, c Criteria) int {
	if c.Rent <= 0 {
		return weightBudget
	}
	if p.MaxBudget <= 0 {
		return weightBudget / 2
	}
	if c.Rent <= p.MaxBudget {
		return weightBudget
	}
	over := float64(c.Rent-p.MaxBudget) / float64(p.MaxBudget)
	return clamp(weightBudget-int(math.Ceil(over*2*weightBudget)), 0, weightBudget)
}

// distancePoints is full inside the tenant's search radius and decays with
// the inverse of the distance outside it.
func distancePoints(p models.Profile, c Criteria) int {
	if p.Latitude == nil || p.Longitude == nil || c.Latitude == nil || c.Longitude == nil {
		return weightDistance / 2
	}

	radius := p.SearchRadiusKm
	if radius <= 0 {
		radius = defaultSearchRadiusKm
	}

	km := geo.Distance(
		orb.Point{*p.Longitude, *p.Latitude},
		orb.Point{*c.Longitude, *c.Latitude},
	) / 1000
	if km <= radius {
		return weightDistance
	}
	return clamp(int(math.Floor(weightDistance*radius/km)), 0, weightDistance)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
