package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/event-admin-services/common/backend"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/services/event-lambda/models"
)

// EventRepository talks to the backend event and category API
type EventRepository struct {
	client *backend.Client
}

// NewEventRepository creates a new event repository
func NewEventRepository(client *backend.Client) *EventRepository {
	return &EventRepository{client: client}
}

// ListEvents returns every event matching search
func (r *EventRepository) ListEvents(ctx context.Context, sess *session.Session, search string) ([]models.Event, error) {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	var events []models.Event
	if err := r.client.Get(ctx, sess, "/events", q, &events); err != nil {
		return nil, err
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

// GetEvent returns one event
func (r *EventRepository) GetEvent(ctx context.Context, sess *session.Session, id string) (*models.Event, error) {
	var event models.Event
	if err := r.client.Get(ctx, sess, "/events/"+url.PathEscape(id), nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// CreateEvent uploads a new event with its images
func (r *EventRepository) CreateEvent(ctx context.Context, sess *session.Session, form models.EventForm) (*models.Event, error) {
	return r.sendEvent(ctx, sess, http.MethodPost, "/events", form)
}

// UpdateEvent replaces an event; images not listed in KeepImages are dropped
func (r *EventRepository) UpdateEvent(ctx context.Context, sess *session.Session, id string, form models.EventForm) (*models.Event, error) {
	return r.sendEvent(ctx, sess, http.MethodPut, "/events/"+url.PathEscape(id), form)
}

// DeleteEvent removes an event
func (r *EventRepository) DeleteEvent(ctx context.Context, sess *session.Session, id string) error {
	return r.client.Delete(ctx, sess, "/events/"+url.PathEscape(id))
}

func (r *EventRepository) sendEvent(ctx context.Context, sess *session.Session, method, path string, form models.EventForm) (*models.Event, error) {
	body, err := multipartForm(form)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(ctx, backend.Request{Method: method, Path: path, Multipart: body, Session: sess})
	if err != nil {
		return nil, err
	}
	var event models.Event
	if err := resp.Decode(&event); err != nil {
		return nil, err
	}
	return &event, nil
}

func multipartForm(form models.EventForm) (*backend.Multipart, error) {
	speakers, err := json.Marshal(form.Speakers)
	if err != nil {
		return nil, err
	}
	fields := map[string]string{
		"name":        form.Name,
		"description": form.Description,
		"startTime":   form.StartTime.Format(timeLayout),
		"endTime":     form.EndTime.Format(timeLayout),
		"location":    form.Location,
		"price":       form.Price.StringFixed(2),
		"seatCount":   itoa(form.SeatCount),
		"categoryId":  form.CategoryID,
		"speakers":    string(speakers),
	}
	if form.Latitude != 0 || form.Longitude != 0 {
		fields["latitude"] = ftoa(form.Latitude)
		fields["longitude"] = ftoa(form.Longitude)
	}
	if form.KeepImages != nil {
		keep, err := json.Marshal(form.KeepImages)
		if err != nil {
			return nil, err
		}
		fields["keepImages"] = string(keep)
	}

	m := &backend.Multipart{Fields: fields}
	for _, img := range form.Images {
		m.Files = append(m.Files, backend.File{Field: "images", Name: img.Name, ContentType: img.ContentType, Data: img.Data})
	}
	return m, nil
}

// ListCategories returns all categories
func (r *EventRepository) ListCategories(ctx context.Context, sess *session.Session) ([]models.Category, error) {
	var categories []models.Category
	if err := r.client.Get(ctx, sess, "/categories", nil, &categories); err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []models.Category{}
	}
	return categories, nil
}

// CreateCategory adds a category
func (r *EventRepository) CreateCategory(ctx context.Context, sess *session.Session, req models.CategoryRequest) (*models.Category, error) {
	var c models.Category
	if err := r.client.Post(ctx, sess, "/categories", req, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCategory renames a category
func (r *EventRepository) UpdateCategory(ctx context.Context, sess *session.Session, id string, req models.CategoryRequest) (*models.Category, error) {
	var c models.Category
	if err := r.client.Put(ctx, sess, "/categories/"+url.PathEscape(id), req, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCategory removes a category
func (r *EventRepository) DeleteCategory(ctx context.Context, sess *session.Session, id string) error {
	return r.client.Delete(ctx, sess, "/categories/"+url.PathEscape(id))
}
