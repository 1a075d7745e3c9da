package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/geocode"
	"github.com/event-admin-services/common/logger"
	common "github.com/event-admin-services/common/models"
	"github.com/event-admin-services/common/pagination"
	"github.com/event-admin-services/common/scheduler"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/common/store"
	"github.com/event-admin-services/services/event-lambda/models"
)

const monthLayout = "2006-01"

// Repository is the backend event API
type Repository interface {
	ListEvents(ctx context.Context, sess *session.Session, search string) ([]models.Event, error)
	GetEvent(ctx context.Context, sess *session.Session, id string) (*models.Event, error)
	CreateEvent(ctx context.Context, sess *session.Session, form models.EventForm) (*models.Event, error)
	UpdateEvent(ctx context.Context, sess *session.Session, id string, form models.EventForm) (*models.Event, error)
	DeleteEvent(ctx context.Context, sess *session.Session, id string) error
	ListCategories(ctx context.Context, sess *session.Session) ([]models.Category, error)
	CreateCategory(ctx context.Context, sess *session.Session, req models.CategoryRequest) (*models.Category, error)
	UpdateCategory(ctx context.Context, sess *session.Session, id string, req models.CategoryRequest) (*models.Category, error)
	DeleteCategory(ctx context.Context, sess *session.Session, id string) error
}

// Geocoder suggests places for the location field
type Geocoder interface {
	Autocomplete(ctx context.Context, query string) ([]geocode.Place, error)
}

// EventUseCase handles event and category business logic
type EventUseCase struct {
	repo     Repository
	store    *store.Store
	geocoder Geocoder
	clock    scheduler.Clock
	log      *logger.Logger
}

// NewEventUseCase creates a new event use case
func NewEventUseCase(repo Repository, st *store.Store, geocoder Geocoder, clock scheduler.Clock) *EventUseCase {
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	return &EventUseCase{
		repo:     repo,
		store:    st,
		geocoder: geocoder,
		clock:    clock,
		log:      logger.Default().With("component", "events"),
	}
}

// Now is the reference time for schedule validation
func (uc *EventUseCase) Now() time.Time {
	return uc.clock.Now()
}

func (uc *EventUseCase) loadEvents(ctx context.Context, sess *session.Session) ([]models.Event, error) {
	v, err := uc.store.Dispatch(ctx, sess.ID, store.Events, func(ctx context.Context) (interface{}, error) {
		return uc.repo.ListEvents(ctx, sess, "")
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Event), nil
}

// ListEvents returns one page of events filtered by name, location or
// category and by status.
func (uc *EventUseCase) ListEvents(ctx context.Context, sess *session.Session, q common.ListQuery) (pagination.Result[models.Event], error) {
	all, err := uc.loadEvents(ctx, sess)
	if err != nil {
		return pagination.Result[models.Event]{}, err
	}
	rows := common.Filter(all, func(e models.Event) bool {
		return q.MatchesStatus(e.Status) && q.Matches(e.Name, e.Location, e.CategoryName)
	})
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].StartTime.After(rows[j].StartTime) })
	return pagination.Of(rows, q.PageSize, q.Page), nil
}

// GetEvent returns one event
func (uc *EventUseCase) GetEvent(ctx context.Context, sess *session.Session, id string) (*models.Event, error) {
	return uc.repo.GetEvent(ctx, sess, id)
}

// Calendar groups the events starting in month ("2006-01") per day in loc.
// An empty month means the current one.
func (uc *EventUseCase) Calendar(ctx context.Context, sess *session.Session, month string, loc *time.Location) (*models.Calendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	var first time.Time
	if month == "" {
		now := uc.clock.Now().In(loc)
		first = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	} else {
		t, err := time.ParseInLocation(monthLayout, month, loc)
		if err != nil {
			return nil, apperrors.InvalidInput("month", "Month must look like 2026-05")
		}
		first = t
	}
	next := first.AddDate(0, 1, 0)

	all, err := uc.loadEvents(ctx, sess)
	if err != nil {
		return nil, err
	}

	byDay := map[int][]models.Event{}
	total := 0
	for _, e := range all {
		start := e.StartTime.In(loc)
		if start.Before(first) || !start.Before(next) {
			continue
		}
		byDay[start.Day()] = append(byDay[start.Day()], e)
		total++
	}

	cal := &models.Calendar{Month: first.Format(monthLayout), Days: []models.CalendarDay{}, Total: total}
	for d := first; d.Before(next); d = d.AddDate(0, 0, 1) {
		evs, ok := byDay[d.Day()]
		if !ok {
			continue
		}
		sort.Slice(evs, func(i, j int) bool { return evs[i].StartTime.Before(evs[j].StartTime) })
		cal.Days = append(cal.Days, models.CalendarDay{Date: d.Format("2006-01-02"), Day: d.Day(), Events: evs})
	}
	return cal, nil
}

// CreateEvent submits a validated form
func (uc *EventUseCase) CreateEvent(ctx context.Context, sess *session.Session, form models.EventForm) (*models.Event, error) {
	event, err := uc.repo.CreateEvent(ctx, sess, form)
	if err != nil {
		return nil, err
	}
	uc.log.Info("event created", "eventId", event.ID.String(), "images", len(form.Images))
	uc.refreshEvents(ctx, sess)
	return event, nil
}

// UpdateEvent submits an edited form
func (uc *EventUseCase) UpdateEvent(ctx context.Context, sess *session.Session, id string, form models.EventForm) (*models.Event, error) {
	event, err := uc.repo.UpdateEvent(ctx, sess, id, form)
	if err != nil {
		return nil, err
	}
	uc.log.Info("event updated", "eventId", id)
	uc.refreshEvents(ctx, sess)
	return event, nil
}

// DeleteEvent removes an event
func (uc *EventUseCase) DeleteEvent(ctx context.Context, sess *session.Session, id string) error {
	if err := uc.repo.DeleteEvent(ctx, sess, id); err != nil {
		return err
	}
	uc.log.Info("event deleted", "eventId", id)
	uc.refreshEvents(ctx, sess)
	return nil
}

// refreshEvents reloads the events slice after a write. A failure is kept
// in the slice and does not fail the write.
func (uc *EventUseCase) refreshEvents(ctx context.Context, sess *session.Session) {
	if _, err := uc.loadEvents(ctx, sess); err != nil {
		uc.log.WithError(err).Warn("events refresh failed")
	}
}

// ListCategories returns all categories sorted by name
func (uc *EventUseCase) ListCategories(ctx context.Context, sess *session.Session) ([]models.Category, error) {
	v, err := uc.store.Dispatch(ctx, sess.ID, store.Categories, func(ctx context.Context) (interface{}, error) {
		return uc.repo.ListCategories(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	categories := v.([]models.Category)
	out := make([]models.Category, len(categories))
	copy(out, categories)
	sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

// CreateCategory adds a category
func (uc *EventUseCase) CreateCategory(ctx context.Context, sess *session.Session, req models.CategoryRequest) (*models.Category, error) {
	req, err := validateCategory(req)
	if err != nil {
		return nil, err
	}
	c, err := uc.repo.CreateCategory(ctx, sess, req)
	if err != nil {
		return nil, err
	}
	uc.refreshCategories(ctx, sess)
	return c, nil
}

// UpdateCategory renames a category
func (uc *EventUseCase) UpdateCategory(ctx context.Context, sess *session.Session, id string, req models.CategoryRequest) (*models.Category, error) {
	req, err := validateCategory(req)
	if err != nil {
		return nil, err
	}
	c, err := uc.repo.UpdateCategory(ctx, sess, id, req)
	if err != nil {
		return nil, err
	}
	uc.refreshCategories(ctx, sess)
	return c, nil
}

// DeleteCategory removes a category
func (uc *EventUseCase) DeleteCategory(ctx context.Context, sess *session.Session, id string) error {
	if err := uc.repo.DeleteCategory(ctx, sess, id); err != nil {
		return err
	}
	uc.refreshCategories(ctx, sess)
	return nil
}

func (uc *EventUseCase) refreshCategories(ctx context.Context, sess *session.Session) {
	if _, err := uc.ListCategories(ctx, sess); err != nil {
		uc.log.WithError(err).Warn("categories refresh failed")
	}
}

func validateCategory(req models.CategoryRequest) (models.CategoryRequest, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	errs := apperrors.FieldErrors{}
	switch {
	case req.Name == "":
		errs.Add("name", "Category name is required")
	case len([]rune(req.Name)) > 100:
		errs.Add("name", "Category name must be at most 100 characters")
	}
	return req, errs.Err()
}

// SuggestLocations proxies the location autocomplete
func (uc *EventUseCase) SuggestLocations(ctx context.Context, query string) ([]geocode.Place, error) {
	if uc.geocoder == nil {
		return []geocode.Place{}, nil
	}
	return uc.geocoder.Autocomplete(ctx, query)
}
