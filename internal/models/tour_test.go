package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSameDayIgnoresTimeOfDay(t *testing.T) {
	a := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2025, 6, 1, 23, 59, 59, 0, time.UTC)
	c := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	assert.True(t, SameDay(a, b))
	assert.False(t, SameDay(b, c))
}

func TestNormalizeStartDates(t *testing.T) {
	in := []StartDate{
		{Date: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), Participants: 3},
		{Date: time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC), Participants: 4},
		{Date: day("2025-07-01"), Participants: 0, SoldOut: true},
	}
	out := NormalizeStartDates(in, 5)

	require.Len(t, out, 2)
	assert.Equal(t, day("2025-06-01"), out[0].Date)
	assert.Equal(t, 7, out[0].Participants)
	assert.True(t, out[0].SoldOut)
	assert.False(t, out[1].SoldOut, "sold out is derived from participants")
}

func TestFindStartDate(t *testing.T) {
	tour := &Tour{MaxGroupSize: 10, StartDates: []StartDate{
		{Date: day("2025-06-01")},
		{Date: day("2025-07-01")},
	}}

	assert.Equal(t, 1, tour.FindStartDate(time.Date(2025, 7, 1, 15, 30, 0, 0, time.UTC)))
	assert.Equal(t, -1, tour.FindStartDate(day("2025-08-01")))
}

func TestTourBeforeCreateDefaults(t *testing.T) {
	tour := &Tour{Name: "The Forest Hiker", MaxGroupSize: 2, StartDates: []StartDate{
		{Date: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), Participants: 2},
	}}
	require.NoError(t, tour.BeforeCreate())

	assert.False(t, tour.ID.IsZero())
	assert.Equal(t, DefaultRatingsAverage, tour.RatingsAverage)
	assert.True(t, tour.StartDates[0].SoldOut)
	assert.Equal(t, day("2025-06-01"), tour.StartDates[0].Date)
}

func TestTourValidation(t *testing.T) {
	tour := Tour{
		Name:         "The Sea Explorer",
		Duration:     7,
		MaxGroupSize: 15,
		Difficulty:   DifficultyMedium,
		Price:        497,
		Summary:      "Exploring the jaw-dropping US east coast",
	}
	require.NoError(t, Validate.Struct(tour))

	tour.Difficulty = "extreme"
	assert.Error(t, Validate.Struct(tour))

	tour.Difficulty = DifficultyEasy
	tour.PriceDiscount = 600
	assert.Error(t, Validate.Struct(tour), "discount must stay below price")
}
