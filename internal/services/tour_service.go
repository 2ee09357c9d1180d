package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joshua-takyi/tourbook/internal/helpers"
	"github.com/joshua-takyi/tourbook/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	earthRadiusMi = 3963.2
	earthRadiusKm = 6378.1
	metersToMiles = 0.000621371
	metersToKm    = 0.001
)

// TourUpdate carries a partial edit. Nil fields are left alone.
type TourUpdate struct {
	Name          *string  `json:"name" validate:"omitempty,min=10,max=40"`
	Duration      *int     `json:"duration" validate:"omitempty,min=1"`
	MaxGroupSize  *int     `json:"maxGroupSize" validate:"omitempty,min=1"`
	Difficulty    *string  `json:"difficulty" validate:"omitempty,oneof=easy medium difficult"`
	Price         *int64   `json:"price" validate:"omitempty,gt=0"`
	PriceDiscount *int64   `json:"priceDiscount" validate:"omitempty,gte=0"`
	Summary       *string  `json:"summary" validate:"omitempty,min=1"`
	Description   *string  `json:"description"`
	ImageCover    *string  `json:"imageCover"`
	Images        []string `json:"images"`
	StartDates    []string `json:"startDates"`
	SecretTour    *bool    `json:"secretTour"`
}

type TourService struct {
	tours  models.TourRepo
	upload ImageUploader
}

func NewTourService(tours models.TourRepo, upload ImageUploader) *TourService {
	return &TourService{tours: tours, upload: upload}
}

func (ts *TourService) CreateTour(ctx context.Context, tour *models.Tour) (*models.Tour, error) {
	tour.Name = strings.TrimSpace(tour.Name)
	if err := models.Validate.Struct(tour); err != nil {
		return nil, validationError(err)
	}
	for i := range tour.StartDates {
		tour.StartDates[i].Participants = 0
	}
	tour.RatingsQuantity = 0
	tour.Slug = helpers.GenerateSlug(tour.Name)

	if err := ts.uploadImages(ctx, &tour.ImageCover, tour.Images); err != nil {
		return nil, err
	}
	created, err := ts.tours.CreateTour(ctx, tour)
	if err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, fmt.Errorf("a tour named %q already exists: %w", tour.Name, models.ErrConflict)
		}
		return nil, err
	}
	return created, nil
}

func (ts *TourService) uploadImages(ctx context.Context, cover *string, images []string) error {
	if ts.upload == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	if cover != nil && *cover != "" {
		urls, err := ts.upload(ctx, []string{*cover}, helpers.TourFolder)
		if err != nil {
			return fmt.Errorf("failed to upload cover image: %v: %w", err, models.ErrTransientUpstream)
		}
		if len(urls) > 0 {
			*cover = urls[0]
		}
	}
	if len(images) == 0 {
		return nil
	}
	urls, err := ts.upload(ctx, images, helpers.TourFolder)
	if err != nil {
		return fmt.Errorf("failed to upload images: %v: %w", err, models.ErrTransientUpstream)
	}
	copy(images, urls)
	return nil
}

func (ts *TourService) GetTour(ctx context.Context, id primitive.ObjectID) (*models.Tour, error) {
	return ts.tours.GetTourByID(ctx, id)
}

func (ts *TourService) ListTours(ctx context.Context, filter models.TourFilter, page Page) ([]*models.Tour, int64, error) {
	if filter.Difficulty != "" {
		if err := models.Validate.Var(filter.Difficulty, "oneof=easy medium difficult"); err != nil {
			return nil, 0, fmt.Errorf("unknown difficulty %q: %w", filter.Difficulty, models.ErrBadRequest)
		}
	}
	page = page.Normalize()
	return ts.tours.ListTours(ctx, filter, page.Offset(), page.Limit)
}

// TopCheap is the best rated tours, cheapest first among equals.
func (ts *TourService) TopCheap(ctx context.Context) ([]*models.Tour, error) {
	tours, _, err := ts.tours.ListTours(ctx, models.TourFilter{Sort: "-ratingsAverage,price"}, 0, 5)
	return tours, err
}

func (ts *TourService) Search(ctx context.Context, key string, page Page) ([]*models.Tour, int64, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, 0, fmt.Errorf("search key is required: %w", models.ErrBadRequest)
	}
	return ts.ListTours(ctx, models.TourFilter{Search: key}, page)
}

// UpdateTour applies a partial edit. Changing the start dates keeps the
// counters of days that survive; dropping a day that holds participants is
// a conflict.
func (ts *TourService) UpdateTour(ctx context.Context, id primitive.ObjectID, upd TourUpdate) (*models.Tour, error) {
	if err := models.Validate.Struct(upd); err != nil {
		return nil, validationError(err)
	}
	current, err := ts.tours.GetTourByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		updates["name"] = name
		updates["slug"] = helpers.GenerateSlug(name)
	}
	if upd.Duration != nil {
		updates["duration"] = *upd.Duration
	}
	if upd.Difficulty != nil {
		updates["difficulty"] = *upd.Difficulty
	}
	if upd.Summary != nil {
		updates["summary"] = strings.TrimSpace(*upd.Summary)
	}
	if upd.Description != nil {
		updates["description"] = strings.TrimSpace(*upd.Description)
	}
	if upd.SecretTour != nil {
		updates["secretTour"] = *upd.SecretTour
	}

	price := current.Price
	if upd.Price != nil {
		price = *upd.Price
		updates["price"] = price
	}
	discount := current.PriceDiscount
	if upd.PriceDiscount != nil {
		discount = *upd.PriceDiscount
		updates["priceDiscount"] = discount
	}
	if discount >= price && discount > 0 {
		return nil, fmt.Errorf("discount %d must be below the price %d: %w", discount, price, models.ErrBadRequest)
	}

	if upd.ImageCover != nil || upd.Images != nil {
		if err := ts.uploadImages(ctx, upd.ImageCover, upd.Images); err != nil {
			return nil, err
		}
		if upd.ImageCover != nil {
			updates["imageCover"] = *upd.ImageCover
		}
		if upd.Images != nil {
			updates["images"] = upd.Images
		}
	}

	maxGroup := current.MaxGroupSize
	if upd.MaxGroupSize != nil {
		maxGroup = *upd.MaxGroupSize
		updates["maxGroupSize"] = maxGroup
	}
	if upd.StartDates != nil || upd.MaxGroupSize != nil {
		dates, err := mergeStartDates(current, upd.StartDates)
		if err != nil {
			return nil, err
		}
		updates["startDates"] = models.NormalizeStartDates(dates, maxGroup)
	}

	if len(updates) == 0 {
		return current, nil
	}
	tour, err := ts.tours.UpdateTour(ctx, id, updates)
	if err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, fmt.Errorf("tour name already taken: %w", models.ErrConflict)
		}
		return nil, err
	}
	return tour, nil
}

func mergeStartDates(current *models.Tour, raw []string) ([]models.StartDate, error) {
	if raw == nil {
		return current.StartDates, nil
	}
	out := make([]models.StartDate, 0, len(raw))
	keep := make(map[time.Time]bool, len(raw))
	for _, s := range raw {
		day, err := helpers.ParseDate(s)
		if err != nil {
			return nil, validationError(err)
		}
		day = models.DayStart(day)
		keep[day] = true
		sd := models.StartDate{Date: day}
		if i := current.FindStartDate(day); i >= 0 {
			sd.Participants = current.StartDates[i].Participants
		}
		out = append(out, sd)
	}
	for _, sd := range current.StartDates {
		if !keep[models.DayStart(sd.Date)] && sd.Participants > 0 {
			return nil, fmt.Errorf("departure on %s already has %d participants: %w",
				sd.Date.Format("2006-01-02"), sd.Participants, models.ErrConflict)
		}
	}
	return out, nil
}

func (ts *TourService) DeleteTour(ctx context.Context, id primitive.ObjectID) error {
	return ts.tours.DeleteTour(ctx, id)
}

func (ts *TourService) Stats(ctx context.Context) ([]models.TourStat, error) {
	return ts.tours.TourStats(ctx)
}

func (ts *TourService) MonthlyPlan(ctx context.Context, rawYear string) ([]models.MonthlyPlan, error) {
	year, err := strconv.Atoi(strings.TrimSpace(rawYear))
	if err != nil || year < 1970 || year > 9999 {
		return nil, fmt.Errorf("invalid year %q: %w", rawYear, models.ErrBadRequest)
	}
	return ts.tours.MonthlyPlan(ctx, year)
}

// parseLatLng reads "lat,lng".
func parseLatLng(raw string) (lat, lng float64, err error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected lat,lng but got %q: %w", raw, models.ErrBadRequest)
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("invalid latitude %q: %w", parts[0], models.ErrBadRequest)
	}
	lng, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || lng < -180 || lng > 180 {
		return 0, 0, fmt.Errorf("invalid longitude %q: %w", parts[1], models.ErrBadRequest)
	}
	return lat, lng, nil
}

func (ts *TourService) ToursWithin(ctx context.Context, rawDistance, latlng, unit string) ([]*models.Tour, error) {
	distance, err := strconv.ParseFloat(rawDistance, 64)
	if err != nil || distance <= 0 {
		return nil, fmt.Errorf("invalid distance %q: %w", rawDistance, models.ErrBadRequest)
	}
	lat, lng, err := parseLatLng(latlng)
	if err != nil {
		return nil, err
	}
	var radius float64
	switch unit {
	case "mi":
		radius = distance / earthRadiusMi
	case "km":
		radius = distance / earthRadiusKm
	default:
		return nil, fmt.Errorf("unit must be mi or km: %w", models.ErrBadRequest)
	}
	return ts.tours.ToursWithin(ctx, lng, lat, radius)
}

func (ts *TourService) Distances(ctx context.Context, latlng, unit string) ([]models.TourDistance, error) {
	lat, lng, err := parseLatLng(latlng)
	if err != nil {
		return nil, err
	}
	var multiplier float64
	switch unit {
	case "mi":
		multiplier = metersToMiles
	case "km":
		multiplier = metersToKm
	default:
		return nil, fmt.Errorf("unit must be mi or km: %w", models.ErrBadRequest)
	}
	return ts.tours.Distances(ctx, lng, lat, multiplier)
}
