package repository

import (
	"context"
	"net/url"

	"github.com/event-admin-services/common/backend"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/services/booking-lambda/models"
)

// BookingRepository reads bookings, transactions and customers from the backend
type BookingRepository struct {
	client *backend.Client
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(client *backend.Client) *BookingRepository {
	return &BookingRepository{client: client}
}

// ListBookings returns every booking visible to the session
func (r *BookingRepository) ListBookings(ctx context.Context, sess *session.Session) ([]models.Booking, error) {
	var bookings []models.Booking
	if err := r.client.Get(ctx, sess, "/bookings", nil, &bookings); err != nil {
		return nil, err
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	return bookings, nil
}

// GetBooking returns one booking
func (r *BookingRepository) GetBooking(ctx context.Context, sess *session.Session, id string) (*models.Booking, error) {
	var b models.Booking
	if err := r.client.Get(ctx, sess, "/bookings/"+url.PathEscape(id), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListTransactions returns every transaction
func (r *BookingRepository) ListTransactions(ctx context.Context, sess *session.Session) ([]models.Transaction, error) {
	var txs []models.Transaction
	if err := r.client.Get(ctx, sess, "/transactions", nil, &txs); err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	return txs, nil
}

// ListCustomers returns every customer
func (r *BookingRepository) ListCustomers(ctx context.Context, sess *session.Session) ([]models.Customer, error) {
	var customers []models.Customer
	if err := r.client.Get(ctx, sess, "/customers", nil, &customers); err != nil {
		return nil, err
	}
	if customers == nil {
		customers = []models.Customer{}
	}
	return customers, nil
}
