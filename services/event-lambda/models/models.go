package models

import (
	"time"

	"github.com/shopspring/decimal"

	common "github.com/event-admin-services/common/models"
)

// Event statuses
const (
	StatusDraft     = "DRAFT"
	StatusOpen      = "OPEN"
	StatusClosed    = "CLOSED"
	StatusCancelled = "CANCELLED"
)

// Speaker presents at an event
type Speaker struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	Bio   string `json:"bio,omitempty"`
}

// Event as answered by the backend
type Event struct {
	ID           common.ID       `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	StartTime    time.Time       `json:"startTime"`
	EndTime      time.Time       `json:"endTime"`
	Location     string          `json:"location"`
	Latitude     float64         `json:"latitude,omitempty"`
	Longitude    float64         `json:"longitude,omitempty"`
	Price        decimal.Decimal `json:"price"`
	SeatCount    int             `json:"seatCount"`
	BookedSeats  int             `json:"bookedSeats"`
	Speakers     []Speaker       `json:"speakers"`
	Images       []string        `json:"images"`
	CategoryID   common.ID       `json:"categoryId"`
	CategoryName string          `json:"categoryName,omitempty"`
	Status       string          `json:"status"`
	Boosted      bool            `json:"boosted"`
}

// Image is one uploaded event picture
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// EventForm is the create/edit form after parsing
type EventForm struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	StartTime   time.Time       `json:"startTime"`
	EndTime     time.Time       `json:"endTime"`
	Location    string          `json:"location"`
	Latitude    float64         `json:"latitude,omitempty"`
	Longitude   float64         `json:"longitude,omitempty"`
	Price       decimal.Decimal `json:"price"`
	SeatCount   int             `json:"seatCount"`
	CategoryID  string          `json:"categoryId"`
	Speakers    []Speaker       `json:"speakers"`
	// KeepImages lists existing image URLs that survive an edit
	KeepImages []string `json:"keepImages,omitempty"`
	Images     []Image  `json:"-"`
}

// CalendarDay groups the events starting on one day
type CalendarDay struct {
	Date   string  `json:"date"`
	Day    int     `json:"day"`
	Events []Event `json:"events"`
}

// Calendar is one month of events
type Calendar struct {
	Month string        `json:"month"`
	Days  []CalendarDay `json:"days"`
	Total int           `json:"total"`
}

// Category groups events
type Category struct {
	ID          common.ID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	EventCount  int       `json:"eventCount"`
}

// CategoryRequest creates or renames a category
type CategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
