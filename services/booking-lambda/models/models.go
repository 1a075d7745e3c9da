package models

import (
	"time"

	"github.com/shopspring/decimal"

	common "github.com/event-admin-services/common/models"
)

// Payment statuses reported by the backend
const (
	PaymentPaid      = "PAID"
	PaymentPending   = "PENDING"
	PaymentFailed    = "FAILED"
	PaymentRefunded  = "REFUNDED"
	PaymentCancelled = "CANCELLED"
)

// ============================================================
// Booking - seats bought by a customer for one event
// GET /api/bookings, GET /api/bookings/{id}
// ============================================================
type Booking struct {
	ID            common.ID       `json:"id"`
	EventID       common.ID       `json:"eventId"`
	EventName     string          `json:"eventName"`
	EventStart    time.Time       `json:"eventStart"`
	EventEnd      time.Time       `json:"eventEnd"`
	Location      string          `json:"location,omitempty"`
	CustomerID    common.ID       `json:"customerId"`
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail,omitempty"`
	Seats         []string        `json:"seats,omitempty"`
	SeatsBooked   int             `json:"seatsBooked"`
	PaymentStatus string          `json:"paymentStatus"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// BookingDetail adds the check-in QR code to a booking
type BookingDetail struct {
	Booking
	QRCode string `json:"qrCode"` // data URI
}

// ============================================================
// Transaction - one payment attempt
// GET /api/transactions
// ============================================================
type Transaction struct {
	ID            common.ID       `json:"id"`
	BookingID     common.ID       `json:"bookingId"`
	EventName     string          `json:"eventName"`
	CustomerName  string          `json:"customerName"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// ============================================================
// Customer - a buyer with lifetime totals
// GET /api/customers
// ============================================================
type Customer struct {
	ID           common.ID       `json:"id"`
	FullName     string          `json:"fullName"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone,omitempty"`
	BookingCount int             `json:"bookingCount"`
	TotalSpent   decimal.Decimal `json:"totalSpent"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// ============================================================
// Analytics - dashboard widgets
// GET /api/analytics
// ============================================================
type Analytics struct {
	Currency         string          `json:"currency"`
	TotalRevenue     decimal.Decimal `json:"totalRevenue"`
	TotalBookings    int             `json:"totalBookings"`
	PaidBookings     int             `json:"paidBookings"`
	SeatsSold        int             `json:"seatsSold"`
	Customers        int             `json:"customers"`
	AverageOrder     decimal.Decimal `json:"averageOrder"`
	RevenueByMonth   []MonthRevenue  `json:"revenueByMonth"`
	BookingsByStatus map[string]int  `json:"bookingsByStatus"`
	TopEvents        []EventRevenue  `json:"topEvents"`
}

// MonthRevenue is the paid revenue of one month ("2006-01")
type MonthRevenue struct {
	Month    string          `json:"month"`
	Revenue  decimal.Decimal `json:"revenue"`
	Bookings int             `json:"bookings"`
}

// EventRevenue ranks events by paid revenue
type EventRevenue struct {
	EventID   common.ID       `json:"eventId"`
	EventName string          `json:"eventName"`
	Revenue   decimal.Decimal `json:"revenue"`
	Seats     int             `json:"seats"`
}
