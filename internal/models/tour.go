package models

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DifficultyEasy      = "easy"
	DifficultyMedium    = "medium"
	DifficultyDifficult = "difficult"

	DefaultRatingsAverage = 4.5
)

// StartDate is one departure of a tour and its seat counter. The cap comes
// from the parent tour's MaxGroupSize.
type StartDate struct {
	Date         time.Time `bson:"date" json:"date"`
	Participants int       `bson:"participants" json:"participants"`
	SoldOut      bool      `bson:"soldOut" json:"soldOut"`
}

type Location struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
	Address     string    `bson:"address,omitempty" json:"address,omitempty"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	Day         int       `bson:"day,omitempty" json:"day,omitempty"`
}

type Tour struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name            string               `bson:"name" json:"name" validate:"required,min=10,max=40"`
	Slug            string               `bson:"slug" json:"slug"`
	Duration        int                  `bson:"duration" json:"duration" validate:"required,min=1"`
	MaxGroupSize    int                  `bson:"maxGroupSize" json:"maxGroupSize" validate:"required,min=1"`
	Difficulty      string               `bson:"difficulty" json:"difficulty" validate:"required,oneof=easy medium difficult"`
	RatingsAverage  float64              `bson:"ratingsAverage" json:"ratingsAverage" validate:"omitempty,min=1,max=5"`
	RatingsQuantity int                  `bson:"ratingsQuantity" json:"ratingsQuantity"`
	Price           int64                `bson:"price" json:"price" validate:"required,gt=0"`
	PriceDiscount   int64                `bson:"priceDiscount,omitempty" json:"priceDiscount,omitempty" validate:"omitempty,gte=0,ltfield=Price"`
	Summary         string               `bson:"summary" json:"summary" validate:"required"`
	Description     string               `bson:"description,omitempty" json:"description,omitempty"`
	ImageCover      string               `bson:"imageCover,omitempty" json:"imageCover,omitempty"`
	Images          []string             `bson:"images,omitempty" json:"images,omitempty"`
	StartDates      []StartDate          `bson:"startDates" json:"startDates"`
	StartLocation   *Location            `bson:"startLocation,omitempty" json:"startLocation,omitempty"`
	Locations       []Location           `bson:"locations,omitempty" json:"locations,omitempty"`
	Guides          []primitive.ObjectID `bson:"guides,omitempty" json:"guides,omitempty"`
	SecretTour      bool                 `bson:"secretTour" json:"secretTour"`
	CreatedAt       time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time            `bson:"updatedAt" json:"updatedAt"`
}

func (t *Tour) BeforeCreate() error {
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.RatingsAverage == 0 {
		t.RatingsAverage = DefaultRatingsAverage
	}
	t.StartDates = NormalizeStartDates(t.StartDates, t.MaxGroupSize)
	return nil
}

// FindStartDate returns the index of the departure falling on the same UTC
// calendar day as day, or -1.
func (t *Tour) FindStartDate(day time.Time) int {
	for i, sd := range t.StartDates {
		if SameDay(sd.Date, day) {
			return i
		}
	}
	return -1
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func SameDay(a, b time.Time) bool {
	return DayStart(a).Equal(DayStart(b))
}

// NormalizeStartDates truncates every departure to its UTC day, merges
// duplicates and recomputes sold-out flags.
func NormalizeStartDates(dates []StartDate, maxGroupSize int) []StartDate {
	out := make([]StartDate, 0, len(dates))
	seen := make(map[time.Time]int, len(dates))
	for _, sd := range dates {
		day := DayStart(sd.Date)
		if i, ok := seen[day]; ok {
			out[i].Participants += sd.Participants
			out[i].SoldOut = out[i].Participants >= maxGroupSize
			continue
		}
		seen[day] = len(out)
		out = append(out, StartDate{
			Date:         day,
			Participants: sd.Participants,
			SoldOut:      sd.Participants >= maxGroupSize,
		})
	}
	return out
}

type TourFilter struct {
	Search        string
	Difficulty    string
	MaxPrice      int64
	Sort          string
	IncludeSecret bool
}

type TourStat struct {
	Difficulty string  `bson:"difficulty" json:"difficulty"`
	NumTours   int     `bson:"numTours" json:"numTours"`
	NumRatings int     `bson:"numRatings" json:"numRatings"`
	AvgRating  float64 `bson:"avgRating" json:"avgRating"`
	AvgPrice   float64 `bson:"avgPrice" json:"avgPrice"`
	MinPrice   int64   `bson:"minPrice" json:"minPrice"`
	MaxPrice   int64   `bson:"maxPrice" json:"maxPrice"`
}

type PlannedTour struct {
	Name      string    `bson:"name" json:"name"`
	Price     int64     `bson:"price" json:"price"`
	StartDate time.Time `bson:"startDate" json:"startDate"`
}

type MonthlyPlan struct {
	Month         int           `bson:"month" json:"month"`
	NumTourStarts int           `bson:"numTourStarts" json:"numTourStarts"`
	Tours         []PlannedTour `bson:"tours" json:"tours"`
}

type TourDistance struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	Name     string             `bson:"name" json:"name"`
	Distance float64            `bson:"distance" json:"distance"`
}

type TourRepo interface {
	CreateTour(ctx context.Context, tour *Tour) (*Tour, error)
	GetTourByID(ctx context.Context, id primitive.ObjectID) (*Tour, error)
	ListTours(ctx context.Context, filter TourFilter, offset, limit int) ([]*Tour, int64, error)
	UpdateTour(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) (*Tour, error)
	DeleteTour(ctx context.Context, id primitive.ObjectID) error
	// AdjustStartDate adds delta to the participants of the departure on
	// day and recomputes its sold-out flag in a single atomic write.
	AdjustStartDate(ctx context.Context, tourID primitive.ObjectID, day time.Time, delta int) (*StartDate, error)
	UpdateRatings(ctx context.Context, tourID primitive.ObjectID, average float64, quantity int) error
	TourStats(ctx context.Context) ([]TourStat, error)
	MonthlyPlan(ctx context.Context, year int) ([]MonthlyPlan, error)
	ToursWithin(ctx context.Context, lng, lat, radius float64) ([]*Tour, error)
	Distances(ctx context.Context, lng, lat, multiplier float64) ([]TourDistance, error)
}
