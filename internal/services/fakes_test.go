package services

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/payment"
	"github.com/joshua-takyi/tourbook/internal/realtime"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memStore implements every repository interface in memory. Each method
// holds the mutex for its whole body, which gives the same single-document
// atomicity the Mongo implementation relies on.
type memStore struct {
	mu sync.Mutex

	bookings      map[primitive.ObjectID]*models.Booking
	tours         map[primitive.ObjectID]*models.Tour
	transactions  []*models.Transaction
	users         map[primitive.ObjectID]*models.User
	roles         map[primitive.ObjectID]*models.Role
	reviews       map[primitive.ObjectID]*models.Review
	favourites    map[primitive.ObjectID]*models.Favourite
	notifications []*models.Notification
	conversations map[string]*models.Conversation
	messages      []*models.Message

	failCreateTransaction error
	failMarkPaid          error
}

func newMemStore() *memStore {
	return &memStore{
		bookings:      map[primitive.ObjectID]*models.Booking{},
		tours:         map[primitive.ObjectID]*models.Tour{},
		users:         map[primitive.ObjectID]*models.User{},
		roles:         map[primitive.ObjectID]*models.Role{},
		reviews:       map[primitive.ObjectID]*models.Review{},
		favourites:    map[primitive.ObjectID]*models.Favourite{},
		conversations: map[string]*models.Conversation{},
	}
}

var (
	_ models.BookingRepo      = (*memStore)(nil)
	_ models.TourRepo         = (*memStore)(nil)
	_ models.TransactionRepo  = (*memStore)(nil)
	_ models.UserRepo         = (*memStore)(nil)
	_ models.RoleRepo         = (*memStore)(nil)
	_ models.ReviewsRepo      = (*memStore)(nil)
	_ models.FavouriteRepo    = (*memStore)(nil)
	_ models.NotificationRepo = (*memStore)(nil)
	_ models.ChatRepo         = (*memStore)(nil)
)

// bookings

func (m *memStore) CreateBooking(_ context.Context, b *models.Booking) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := b.BeforeCreate(); err != nil {
		return nil, err
	}
	for _, other := range m.bookings {
		if other.OrderCode == b.OrderCode {
			return nil, fmt.Errorf("order code %s: %w", b.OrderCode, models.ErrDuplicate)
		}
	}
	cp := *b
	m.bookings[b.ID] = &cp
	return b, nil
}

func (m *memStore) GetBookingByID(_ context.Context, id primitive.ObjectID) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking: %w", models.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) GetBookingByOrderCode(_ context.Context, code string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.OrderCode == code {
			cp := *b
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("booking: %w", models.ErrNotFound)
}

func (m *memStore) ListBookings(_ context.Context, f models.BookingFilter, offset, limit int) ([]*models.Booking, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*models.Booking
	for _, b := range m.bookings {
		if !f.User.IsZero() && b.User != f.User {
			continue
		}
		if !f.Tour.IsZero() && b.Tour != f.Tour {
			continue
		}
		if f.PaymentStatus != "" && b.PaymentStatus != f.PaymentStatus {
			continue
		}
		cp := *b
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].OrderCode < all[j].OrderCode })
	return window(all, offset, limit), int64(len(all)), nil
}

func (m *memStore) MarkPaid(_ context.Context, id primitive.ObjectID, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMarkPaid != nil {
		return false, m.failMarkPaid
	}
	b, ok := m.bookings[id]
	if !ok || b.PaymentStatus != models.PaymentUnpaid {
		return false, nil
	}
	b.PaymentStatus = models.PaymentPaid
	b.PaymentTime = &paidAt
	return true, nil
}

func (m *memStore) UpdateBookingIf(_ context.Context, id primitive.ObjectID, match, updates map[string]interface{}) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking: %w", models.ErrNotFound)
	}
	for k, v := range match {
		switch k {
		case "paymentStatus":
			if b.PaymentStatus != v.(string) {
				return nil, fmt.Errorf("changed concurrently: %w", models.ErrConflict)
			}
		case "participants":
			if b.Participants != v.(int) {
				return nil, fmt.Errorf("changed concurrently: %w", models.ErrConflict)
			}
		default:
			panic("unsupported match key " + k)
		}
	}
	for k, v := range updates {
		switch k {
		case "paymentStatus":
			b.PaymentStatus = v.(string)
		case "participants":
			b.Participants = v.(int)
		case "specialRequirements":
			b.SpecialRequirements = v.(string)
		case "refundAmount":
			b.RefundAmount = v.(int64)
		case "refundReason":
			b.RefundReason = v.(string)
		case "refundDate":
			t := v.(time.Time)
			b.RefundDate = &t
		default:
			panic("unsupported update key " + k)
		}
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) DeleteBookingIf(_ context.Context, id primitive.ObjectID, statuses []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return fmt.Errorf("booking: %w", models.ErrNotFound)
	}
	if !slices.Contains(statuses, b.PaymentStatus) {
		return fmt.Errorf("booking cannot be deleted: %w", models.ErrConflict)
	}
	delete(m.bookings, id)
	return nil
}

func (m *memStore) StatusRatio(context.Context) ([]models.StatusCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, b := range m.bookings {
		counts[b.PaymentStatus]++
	}
	out := make([]models.StatusCount, 0, len(counts))
	for s, n := range counts {
		out = append(out, models.StatusCount{Status: s, Count: n})
	}
	return out, nil
}

func (m *memStore) MonthlyRevenue(context.Context) ([]models.MonthlyRevenue, error) {
	return []models.MonthlyRevenue{}, nil
}

func (m *memStore) TopBooked(context.Context, int) ([]models.TopBookedTour, error) {
	return []models.TopBookedTour{}, nil
}

// tours

func (m *memStore) CreateTour(_ context.Context, t *models.Tour) (*models.Tour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := t.BeforeCreate(); err != nil {
		return nil, err
	}
	for _, other := range m.tours {
		if other.Name == t.Name {
			return nil, fmt.Errorf("tour %q: %w", t.Name, models.ErrDuplicate)
		}
	}
	m.tours[t.ID] = cloneTour(t)
	return cloneTour(t), nil
}

func cloneTour(t *models.Tour) *models.Tour {
	cp := *t
	cp.StartDates = slices.Clone(t.StartDates)
	cp.Images = slices.Clone(t.Images)
	return &cp
}

func (m *memStore) GetTourByID(_ context.Context, id primitive.ObjectID) (*models.Tour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tours[id]
	if !ok {
		return nil, fmt.Errorf("tour %s: %w", id.Hex(), models.ErrNotFound)
	}
	return cloneTour(t), nil
}

func (m *memStore) ListTours(_ context.Context, f models.TourFilter, offset, limit int) ([]*models.Tour, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*models.Tour
	for _, t := range m.tours {
		if t.SecretTour && !f.IncludeSecret {
			continue
		}
		all = append(all, cloneTour(t))
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].RatingsAverage != all[j].RatingsAverage {
			return all[i].RatingsAverage > all[j].RatingsAverage
		}
		return all[i].Price < all[j].Price
	})
	return window(all, offset, limit), int64(len(all)), nil
}

func (m *memStore) UpdateTour(_ context.Context, id primitive.ObjectID, updates map[string]interface{}) (*models.Tour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tours[id]
	if !ok {
		return nil, fmt.Errorf("tour %s: %w", id.Hex(), models.ErrNotFound)
	}
	for k, v := range updates {
		switch k {
		case "name":
			t.Name = v.(string)
		case "slug":
			t.Slug = v.(string)
		case "price":
			t.Price = v.(int64)
		case "maxGroupSize":
			t.MaxGroupSize = v.(int)
		case "startDates":
			t.StartDates = v.([]models.StartDate)
		case "secretTour":
			t.SecretTour = v.(bool)
		case "summary":
			t.Summary = v.(string)
		}
	}
	return cloneTour(t), nil
}

func (m *memStore) DeleteTour(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tours[id]; !ok {
		return fmt.Errorf("tour %s: %w", id.Hex(), models.ErrNotFound)
	}
	delete(m.tours, id)
	return nil
}

func (m *memStore) AdjustStartDate(_ context.Context, tourID primitive.ObjectID, day time.Time, delta int) (*models.StartDate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tours[tourID]
	if !ok {
		return nil, fmt.Errorf("tour %s: %w", tourID.Hex(), models.ErrNotFound)
	}
	i := t.FindStartDate(day)
	if i < 0 {
		return nil, fmt.Errorf("start date: %w", models.ErrNotFound)
	}
	sd := &t.StartDates[i]
	if sd.Participants+delta < 0 {
		return nil, models.ErrCapacityUnderflow
	}
	sd.Participants += delta
	sd.SoldOut = sd.Participants >= t.MaxGroupSize
	out := *sd
	return &out, nil
}

func (m *memStore) UpdateRatings(_ context.Context, tourID primitive.ObjectID, average float64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tours[tourID]
	if !ok {
		return fmt.Errorf("tour %s: %w", tourID.Hex(), models.ErrNotFound)
	}
	t.RatingsAverage = average
	t.RatingsQuantity = quantity
	return nil
}

func (m *memStore) TourStats(context.Context) ([]models.TourStat, error) { return nil, nil }

func (m *memStore) MonthlyPlan(context.Context, int) ([]models.MonthlyPlan, error) { return nil, nil }

func (m *memStore) ToursWithin(context.Context, float64, float64, float64) ([]*models.Tour, error) {
	return nil, nil
}

func (m *memStore) Distances(context.Context, float64, float64, float64) ([]models.TourDistance, error) {
	return nil, nil
}

// transactions

func (m *memStore) CreateTransaction(_ context.Context, tx *models.Transaction) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateTransaction != nil {
		return nil, m.failCreateTransaction
	}
	if err := tx.BeforeCreate(); err != nil {
		return nil, err
	}
	cp := *tx
	m.transactions = append(m.transactions, &cp)
	return tx, nil
}

func (m *memStore) AppendTransactionNote(_ context.Context, id primitive.ObjectID, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.transactions {
		if tx.ID == id {
			if tx.Note != "" {
				tx.Note += "; " + note
			} else {
				tx.Note = note
			}
			return nil
		}
	}
	return fmt.Errorf("transaction: %w", models.ErrNotFound)
}

func (m *memStore) ListTransactions(_ context.Context, offset, limit int) ([]*models.Transaction, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*models.Transaction, 0, len(m.transactions))
	for _, tx := range m.transactions {
		cp := *tx
		all = append(all, &cp)
	}
	return window(all, offset, limit), int64(len(all)), nil
}

// users

func (m *memStore) CreateUser(_ context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := u.BeforeCreate(); err != nil {
		return nil, err
	}
	for _, other := range m.users {
		if other.Email == u.Email {
			return nil, fmt.Errorf("email already in use: %w", models.ErrDuplicate)
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return u, nil
}

func (m *memStore) GetUserByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", models.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user: %w", models.ErrNotFound)
}

func (m *memStore) ListUsers(_ context.Context, offset, limit int) ([]*models.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.Hex() < all[j].ID.Hex() })
	return window(all, offset, limit), int64(len(all)), nil
}

func (m *memStore) UpdateUser(_ context.Context, id primitive.ObjectID, updates map[string]interface{}) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", models.ErrNotFound)
	}
	if email, ok := updates["email"].(string); ok {
		for _, other := range m.users {
			if other.ID != id && other.Email == email {
				return nil, fmt.Errorf("email already in use: %w", models.ErrDuplicate)
			}
		}
	}
	for k, v := range updates {
		switch k {
		case "name":
			u.Name = v.(string)
		case "email":
			u.Email = v.(string)
		case "role":
			u.Role = v.(string)
		case "active":
			u.Active = v.(bool)
		case "photo":
			u.Photo = v.(string)
		case "password":
			u.Password = v.(string)
		case "passwordChangedAt":
			t := v.(time.Time)
			u.PasswordChangedAt = &t
		}
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) DeleteUser(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return fmt.Errorf("user: %w", models.ErrNotFound)
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) RecordFailedLogin(_ context.Context, id primitive.ObjectID, now time.Time) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", models.ErrNotFound)
	}
	u.FailedAttempts++
	if u.FailedAttempts >= models.MaxLoginAttempts {
		until := now.Add(models.LoginLockTime)
		u.LockUntil = &until
		u.FailedAttempts = 0
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) ResetLoginAttempts(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.FailedAttempts = 0
		u.LockUntil = nil
	}
	return nil
}

func (m *memStore) SetOnline(_ context.Context, id primitive.ObjectID, online bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user: %w", models.ErrNotFound)
	}
	u.Online = online
	u.LastSeen = &at
	return nil
}

// roles

func (m *memStore) CreateRole(_ context.Context, r *models.Role) (*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := r.BeforeCreate(); err != nil {
		return nil, err
	}
	for _, other := range m.roles {
		if other.Name == r.Name {
			return nil, fmt.Errorf("role %q: %w", r.Name, models.ErrDuplicate)
		}
	}
	cp := *r
	m.roles[r.ID] = &cp
	return r, nil
}

func (m *memStore) GetRoleByName(_ context.Context, name string) (*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name == name {
			cp := *r
			cp.Permissions = slices.Clone(r.Permissions)
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("role: %w", models.ErrNotFound)
}

func (m *memStore) GetRoleByID(_ context.Context, id primitive.ObjectID) (*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, fmt.Errorf("role: %w", models.ErrNotFound)
	}
	cp := *r
	cp.Permissions = slices.Clone(r.Permissions)
	return &cp, nil
}

func (m *memStore) ListRoles(context.Context) ([]*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Role, 0, len(m.roles))
	for _, r := range m.roles {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) DeleteRole(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return fmt.Errorf("role: %w", models.ErrNotFound)
	}
	delete(m.roles, id)
	return nil
}

func (m *memStore) AddPermission(_ context.Context, id primitive.ObjectID, p models.Permission) (*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, fmt.Errorf("role: %w", models.ErrNotFound)
	}
	if !slices.Contains(r.Permissions, p) {
		r.Permissions = append(r.Permissions, p)
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) RemovePermission(_ context.Context, id primitive.ObjectID, p models.Permission) (*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, fmt.Errorf("role: %w", models.ErrNotFound)
	}
	r.Permissions = slices.DeleteFunc(r.Permissions, func(x models.Permission) bool { return x == p })
	cp := *r
	return &cp, nil
}

func (m *memStore) SeedRole(_ context.Context, r *models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.roles {
		if other.Name == r.Name {
			return nil
		}
	}
	if err := r.BeforeCreate(); err != nil {
		return err
	}
	cp := *r
	m.roles[r.ID] = &cp
	return nil
}

// reviews

func (m *memStore) CreateReview(_ context.Context, r *models.Review) (*models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Sanitize()
	if err := r.BeforeCreate(); err != nil {
		return nil, err
	}
	for _, other := range m.reviews {
		if other.Tour == r.Tour && other.User == r.User {
			return nil, fmt.Errorf("tour already reviewed: %w", models.ErrDuplicate)
		}
	}
	cp := *r
	m.reviews[r.ID] = &cp
	return r, nil
}

func (m *memStore) GetReviewByID(_ context.Context, id primitive.ObjectID) (*models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, fmt.Errorf("review: %w", models.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListReviewsByTour(_ context.Context, tourID primitive.ObjectID, offset, limit int) ([]*models.Review, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*models.Review
	for _, r := range m.reviews {
		if r.Tour == tourID {
			cp := *r
			all = append(all, &cp)
		}
	}
	return window(all, offset, limit), int64(len(all)), nil
}

func (m *memStore) UpdateReview(_ context.Context, id primitive.ObjectID, updates map[string]interface{}) (*models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, fmt.Errorf("review: %w", models.ErrNotFound)
	}
	if v, ok := updates["review"]; ok {
		r.Review = v.(string)
	}
	if v, ok := updates["rating"]; ok {
		r.Rating = v.(int)
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) DeleteReview(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reviews[id]; !ok {
		return fmt.Errorf("review: %w", models.ErrNotFound)
	}
	delete(m.reviews, id)
	return nil
}

func (m *memStore) SummarizeRatings(_ context.Context, tourID primitive.ObjectID) (*models.RatingSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum, n := 0, 0
	for _, r := range m.reviews {
		if r.Tour == tourID {
			sum += r.Rating
			n++
		}
	}
	if n == 0 {
		return &models.RatingSummary{Average: models.DefaultRatingsAverage}, nil
	}
	return &models.RatingSummary{Average: float64(sum) / float64(n), Quantity: n}, nil
}

// favourites

func (m *memStore) AddToFavourites(_ context.Context, userID, tourID primitive.ObjectID) (*models.Favourite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fav, ok := m.favourites[userID]
	if !ok {
		fav = &models.Favourite{ID: primitive.NewObjectID(), UserID: userID, Items: map[string]models.SavedTour{}}
		m.favourites[userID] = fav
	}
	fav.Items[tourID.Hex()] = models.SavedTour{TourID: tourID, AddedAt: time.Now().UTC()}
	return cloneFavourite(fav), nil
}

func cloneFavourite(f *models.Favourite) *models.Favourite {
	cp := *f
	cp.Items = make(map[string]models.SavedTour, len(f.Items))
	for k, v := range f.Items {
		cp.Items[k] = v
	}
	return &cp
}

func (m *memStore) RemoveFromFavourites(_ context.Context, userID, tourID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fav, ok := m.favourites[userID]; ok {
		delete(fav.Items, tourID.Hex())
	}
	return nil
}

func (m *memStore) GetFavouritesByUserID(_ context.Context, userID primitive.ObjectID) (*models.Favourite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fav, ok := m.favourites[userID]
	if !ok {
		return &models.Favourite{UserID: userID, Items: map[string]models.SavedTour{}}, nil
	}
	return cloneFavourite(fav), nil
}

// notifications

func (m *memStore) CreateNotifications(_ context.Context, ns []*models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range ns {
		if err := n.BeforeCreate(); err != nil {
			return err
		}
		cp := *n
		m.notifications = append(m.notifications, &cp)
	}
	return nil
}

func (m *memStore) ListNotifications(_ context.Context, userID primitive.ObjectID, unreadOnly bool, offset, limit int) ([]*models.Notification, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*models.Notification
	for _, n := range m.notifications {
		if n.User == userID && (!unreadOnly || !n.IsRead) {
			cp := *n
			all = append(all, &cp)
		}
	}
	return window(all, offset, limit), int64(len(all)), nil
}

func (m *memStore) MarkNotificationRead(_ context.Context, id, userID primitive.ObjectID) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.ID == id && n.User == userID {
			n.IsRead = true
			cp := *n
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("notification: %w", models.ErrNotFound)
}

func (m *memStore) MarkAllNotificationsRead(_ context.Context, userID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, x := range m.notifications {
		if x.User == userID && !x.IsRead {
			x.IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteNotification(_ context.Context, id, userID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.notifications {
		if n.ID == id && n.User == userID {
			m.notifications = slices.Delete(m.notifications, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("notification: %w", models.ErrNotFound)
}

func (m *memStore) DeleteAllNotifications(_ context.Context, userID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.notifications)
	m.notifications = slices.DeleteFunc(m.notifications, func(n *models.Notification) bool { return n.User == userID })
	return int64(before - len(m.notifications)), nil
}

// chat

func (m *memStore) FindOrCreateConversation(_ context.Context, a, b primitive.ObjectID) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, pair := models.ConversationKey(a, b)
	conv, ok := m.conversations[key]
	if !ok {
		now := time.Now().UTC()
		conv = &models.Conversation{
			ID:           primitive.NewObjectID(),
			Key:          key,
			Participants: pair,
			UnreadCount:  map[string]int{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		m.conversations[key] = conv
	}
	cp := *conv
	return &cp, nil
}

func (m *memStore) GetConversation(_ context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conversations {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("conversation: %w", models.ErrNotFound)
}

func (m *memStore) ListConversations(_ context.Context, userID primitive.ObjectID) ([]*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Conversation, 0)
	for _, c := range m.conversations {
		if slices.Contains(c.Participants, userID) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) AppendMessage(_ context.Context, msg *models.Message) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := msg.BeforeCreate(); err != nil {
		return nil, err
	}
	cp := *msg
	m.messages = append(m.messages, &cp)
	for _, c := range m.conversations {
		if c.ID == msg.ConversationID {
			c.LastMessage = &models.LastMessage{Text: msg.Text, Sender: msg.Sender, CreatedAt: msg.CreatedAt}
			c.UnreadCount[msg.Recipient.Hex()]++
		}
	}
	return msg, nil
}

func (m *memStore) ListMessages(_ context.Context, convID primitive.ObjectID, offset, limit int) ([]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*models.Message
	for _, msg := range m.messages {
		if msg.ConversationID == convID {
			cp := *msg
			all = append(all, &cp)
		}
	}
	return window(all, offset, limit), nil
}

func (m *memStore) MarkSeen(_ context.Context, convID, reader primitive.ObjectID) ([]primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]primitive.ObjectID, 0)
	for _, msg := range m.messages {
		if msg.ConversationID == convID && msg.Recipient == reader && !msg.IsSeen {
			msg.IsSeen = true
			ids = append(ids, msg.ID)
		}
	}
	for _, c := range m.conversations {
		if c.ID == convID {
			c.UnreadCount[reader.Hex()] = 0
		}
	}
	return ids, nil
}

func window[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end]
}

// helpers shared by the service tests

func (m *memStore) seedTour(price int64, maxGroup int, days ...time.Time) *models.Tour {
	dates := make([]models.StartDate, 0, len(days))
	for _, d := range days {
		dates = append(dates, models.StartDate{Date: d})
	}
	t := &models.Tour{
		Name:         fmt.Sprintf("Tour number %s", primitive.NewObjectID().Hex()),
		Duration:     3,
		MaxGroupSize: maxGroup,
		Difficulty:   models.DifficultyEasy,
		Price:        price,
		Summary:      "A test tour",
		StartDates:   dates,
	}
	created, err := m.CreateTour(context.Background(), t)
	if err != nil {
		panic(err)
	}
	return created
}

func (m *memStore) seedBooking(tour *models.Tour, day time.Time, participants int, code string) *models.Booking {
	b, err := m.CreateBooking(context.Background(), &models.Booking{
		Tour:          tour.ID,
		User:          primitive.NewObjectID(),
		Amount:        tour.Price * int64(participants),
		Participants:  participants,
		StartDate:     day,
		OrderCode:     code,
		PaymentMethod: models.MethodSePay,
	})
	if err != nil {
		panic(err)
	}
	return b
}

func (m *memStore) startDate(tourID primitive.ObjectID, day time.Time) models.StartDate {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tours[tourID]
	return t.StartDates[t.FindStartDate(day)]
}

func (m *memStore) transactionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}

func (m *memStore) storedTransactions() []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Transaction, 0, len(m.transactions))
	for _, tx := range m.transactions {
		out = append(out, *tx)
	}
	return out
}

// recordingPusher captures realtime pushes per user.
type recordingPusher struct {
	mu     sync.Mutex
	online map[string]bool
	sent   map[string][]realtime.Outbound
}

func newRecordingPusher(online ...string) *recordingPusher {
	p := &recordingPusher{online: map[string]bool{}, sent: map[string][]realtime.Outbound{}}
	for _, id := range online {
		p.online[id] = true
	}
	return p
}

func (p *recordingPusher) SendToUser(userID string, msg realtime.Outbound) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[userID] {
		return 0
	}
	p.sent[userID] = append(p.sent[userID], msg)
	return 1
}

func (p *recordingPusher) events(userID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent[userID]))
	for _, m := range p.sent[userID] {
		out = append(out, m.Event)
	}
	return out
}

// stubGateway hands out a fixed intent or error.
type stubGateway struct {
	name string
	err  error
}

func (g *stubGateway) Name() string { return g.name }

func (g *stubGateway) CreatePaymentIntent(_ context.Context, req payment.PaymentIntentRequest) (*payment.PaymentIntent, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &payment.PaymentIntent{
		Gateway:   g.name,
		QRCodeURL: "https://qr.example/img?des=" + req.OrderCode,
		Amount:    req.Amount,
		OrderCode: req.OrderCode,
	}, nil
}

func (g *stubGateway) VerifyWebhook(*http.Request, []byte) error { return nil }

func (g *stubGateway) ParseWebhook([]byte) (*payment.WebhookPayload, error) {
	return nil, payment.ErrInvalidPayload
}
