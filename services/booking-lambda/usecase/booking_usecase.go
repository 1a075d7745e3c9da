package usecase

import (
	"context"
	"encoding/base64"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/logger"
	common "github.com/event-admin-services/common/models"
	"github.com/event-admin-services/common/pagination"
	"github.com/event-admin-services/common/pdf"
	"github.com/event-admin-services/common/qrcode"
	"github.com/event-admin-services/common/scheduler"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/common/store"
	"github.com/event-admin-services/services/booking-lambda/models"
)

const topEventsLimit = 5

// Repository is the backend booking API
type Repository interface {
	ListBookings(ctx context.Context, sess *session.Session) ([]models.Booking, error)
	GetBooking(ctx context.Context, sess *session.Session, id string) (*models.Booking, error)
	ListTransactions(ctx context.Context, sess *session.Session) ([]models.Transaction, error)
	ListCustomers(ctx context.Context, sess *session.Session) ([]models.Customer, error)
}

// TransactionQuery filters the transactions table and report
type TransactionQuery struct {
	common.ListQuery
	From time.Time // inclusive, zero means open
	To   time.Time // exclusive, zero means open
}

// Document is a rendered export
type Document struct {
	Filename string
	Content  []byte
}

// Base64 is the body form API Gateway expects for binary responses
func (d *Document) Base64() string {
	return base64.StdEncoding.EncodeToString(d.Content)
}

// BookingUseCase handles the read side of bookings, payments and customers
type BookingUseCase struct {
	repo     Repository
	store    *store.Store
	clock    scheduler.Clock
	currency string
	log      *logger.Logger
}

// NewBookingUseCase creates a new booking use case. currency is the ISO code
// printed on exports.
func NewBookingUseCase(repo Repository, st *store.Store, clock scheduler.Clock, currency string) *BookingUseCase {
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	return &BookingUseCase{
		repo:     repo,
		store:    st,
		clock:    clock,
		currency: strings.ToUpper(currency),
		log:      logger.Default().With("component", "bookings"),
	}
}

// FormatMoney renders an amount with two decimals and the currency code
func FormatMoney(amount decimal.Decimal, currency string) string {
	s := amount.StringFixed(2)
	if currency == "" {
		return s
	}
	return s + " " + strings.ToUpper(currency)
}

func (uc *BookingUseCase) loadBookings(ctx context.Context, sess *session.Session) ([]models.Booking, error) {
	v, err := uc.store.Dispatch(ctx, sess.ID, store.Bookings, func(ctx context.Context) (interface{}, error) {
		return uc.repo.ListBookings(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Booking), nil
}

func (uc *BookingUseCase) loadTransactions(ctx context.Context, sess *session.Session) ([]models.Transaction, error) {
	v, err := uc.store.Dispatch(ctx, sess.ID, store.Transactions, func(ctx context.Context) (interface{}, error) {
		return uc.repo.ListTransactions(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Transaction), nil
}

// ListBookings returns one page of bookings, newest first
func (uc *BookingUseCase) ListBookings(ctx context.Context, sess *session.Session, q common.ListQuery) (pagination.Result[models.Booking], error) {
	all, err := uc.loadBookings(ctx, sess)
	if err != nil {
		return pagination.Result[models.Booking]{}, err
	}
	rows := common.Filter(all, func(b models.Booking) bool {
		return q.MatchesStatus(b.PaymentStatus) && q.Matches(b.ID.String(), b.EventName, b.CustomerName, b.CustomerEmail)
	})
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return pagination.Of(rows, q.PageSize, q.Page), nil
}

// GetBooking returns a booking with its check-in QR code
func (uc *BookingUseCase) GetBooking(ctx context.Context, sess *session.Session, id string) (*models.BookingDetail, error) {
	b, err := uc.repo.GetBooking(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	uri, err := qrcode.DataURI(qrcode.BookingContent(b.ID.String()), qrcode.SizeStandard)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to render QR code")
	}
	return &models.BookingDetail{Booking: *b, QRCode: uri}, nil
}

// Receipt renders the booking receipt PDF
func (uc *BookingUseCase) Receipt(ctx context.Context, sess *session.Session, id string) (*Document, error) {
	b, err := uc.repo.GetBooking(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	qr, err := qrcode.PNG(qrcode.BookingContent(b.ID.String()), qrcode.SizeStandard)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to render QR code")
	}

	seats := b.Seats
	if len(seats) == 0 && b.SeatsBooked > 0 {
		seats = []string{pluralSeats(b.SeatsBooked)}
	}
	content, err := pdf.GenerateReceipt(pdf.ReceiptData{
		BookingID:      b.ID.String(),
		EventName:      b.EventName,
		EventStart:     b.EventStart,
		EventEnd:       b.EventEnd,
		Location:       b.Location,
		CustomerName:   b.CustomerName,
		CustomerEmail:  b.CustomerEmail,
		Seats:          seats,
		PaymentStatus:  b.PaymentStatus,
		Total:          FormatMoney(b.TotalPrice, uc.currency),
		IssuedAt:       uc.clock.Now(),
		QRCodePngBytes: qr,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to render receipt")
	}
	uc.log.Info("receipt exported", "bookingId", b.ID.String(), "user_id", sess.User.ID)
	return &Document{Filename: "booking-" + b.ID.String() + ".pdf", Content: content}, nil
}

func pluralSeats(n int) string {
	if n == 1 {
		return "1 seat"
	}
	return strconv.Itoa(n) + " seats"
}

func (uc *BookingUseCase) filterTransactions(all []models.Transaction, q TransactionQuery) []models.Transaction {
	rows := common.Filter(all, func(t models.Transaction) bool {
		if !q.From.IsZero() && t.CreatedAt.Before(q.From) {
			return false
		}
		if !q.To.IsZero() && !t.CreatedAt.Before(q.To) {
			return false
		}
		return q.MatchesStatus(t.Status) && q.Matches(t.ID.String(), t.BookingID.String(), t.EventName, t.CustomerName)
	})
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows
}

// ListTransactions returns one page of transactions, newest first
func (uc *BookingUseCase) ListTransactions(ctx context.Context, sess *session.Session, q TransactionQuery) (pagination.Result[models.Transaction], error) {
	all, err := uc.loadTransactions(ctx, sess)
	if err != nil {
		return pagination.Result[models.Transaction]{}, err
	}
	return pagination.Of(uc.filterTransactions(all, q), q.PageSize, q.Page), nil
}

// TransactionReport renders every transaction matching q as a PDF. The
// total only counts paid transactions.
func (uc *BookingUseCase) TransactionReport(ctx context.Context, sess *session.Session, q TransactionQuery) (*Document, error) {
	all, err := uc.loadTransactions(ctx, sess)
	if err != nil {
		return nil, err
	}
	rows := uc.filterTransactions(all, q)

	total := decimal.Zero
	report := make([]pdf.ReportRow, 0, len(rows))
	for _, t := range rows {
		if strings.EqualFold(t.Status, models.PaymentPaid) {
			total = total.Add(t.Amount)
		}
		report = append(report, pdf.ReportRow{
			ID:       t.ID.String(),
			Date:     t.CreatedAt,
			Customer: t.CustomerName,
			Event:    t.EventName,
			Status:   t.Status,
			Amount:   FormatMoney(t.Amount, uc.currency),
		})
	}

	now := uc.clock.Now()
	content, err := pdf.GenerateTransactionReport(pdf.ReportData{
		Title:       "Transactions",
		PeriodLabel: periodLabel(q.From, q.To),
		Rows:        report,
		Total:       FormatMoney(total, uc.currency),
		GeneratedAt: now,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to render report")
	}
	uc.log.Info("transaction report exported", "rows", len(report), "user_id", sess.User.ID)
	return &Document{Filename: "transactions-" + now.Format("20060102") + ".pdf", Content: content}, nil
}

func periodLabel(from, to time.Time) string {
	switch {
	case from.IsZero() && to.IsZero():
		return "All time"
	case to.IsZero():
		return "From " + from.Format("2006-01-02")
	case from.IsZero():
		return "Until " + to.AddDate(0, 0, -1).Format("2006-01-02")
	}
	return from.Format("2006-01-02") + " to " + to.AddDate(0, 0, -1).Format("2006-01-02")
}

// ListCustomers returns one page of customers sorted by name
func (uc *BookingUseCase) ListCustomers(ctx context.Context, sess *session.Session, q common.ListQuery) (pagination.Result[models.Customer], error) {
	v, err := uc.store.Dispatch(ctx, sess.ID, store.Customers, func(ctx context.Context) (interface{}, error) {
		return uc.repo.ListCustomers(ctx, sess)
	})
	if err != nil {
		return pagination.Result[models.Customer]{}, err
	}
	rows := common.Filter(v.([]models.Customer), func(c models.Customer) bool {
		return q.Matches(c.FullName, c.Email, c.Phone)
	})
	sort.SliceStable(rows, func(i, j int) bool {
		return strings.ToLower(rows[i].FullName) < strings.ToLower(rows[j].FullName)
	})
	return pagination.Of(rows, q.PageSize, q.Page), nil
}

// Analytics summarizes bookings: revenue counts paid bookings only, months
// are those of the booking date in loc.
func (uc *BookingUseCase) Analytics(ctx context.Context, sess *session.Session, loc *time.Location) (*models.Analytics, error) {
	if loc == nil {
		loc = time.UTC
	}
	v, err := uc.store.Dispatch(ctx, sess.ID, store.Analytics, func(ctx context.Context) (interface{}, error) {
		bookings, err := uc.loadBookings(ctx, sess)
		if err != nil {
			return nil, err
		}
		return Summarize(bookings, uc.currency, loc), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Analytics), nil
}

// Summarize computes the analytics widgets from a booking list
func Summarize(bookings []models.Booking, currency string, loc *time.Location) *models.Analytics {
	if loc == nil {
		loc = time.UTC
	}
	a := &models.Analytics{
		Currency:         strings.ToUpper(currency),
		TotalRevenue:     decimal.Zero,
		AverageOrder:     decimal.Zero,
		TotalBookings:    len(bookings),
		BookingsByStatus: map[string]int{},
		RevenueByMonth:   []models.MonthRevenue{},
		TopEvents:        []models.EventRevenue{},
	}

	months := map[string]*models.MonthRevenue{}
	eventsByID := map[common.ID]*models.EventRevenue{}
	customers := map[string]struct{}{}

	for _, b := range bookings {
		status := strings.ToUpper(b.PaymentStatus)
		a.BookingsByStatus[status]++
		if status != models.PaymentPaid {
			continue
		}

		a.PaidBookings++
		a.TotalRevenue = a.TotalRevenue.Add(b.TotalPrice)
		a.SeatsSold += seatCount(b)
		key := b.CustomerID.String()
		if key == "" {
			key = strings.ToLower(b.CustomerEmail)
		}
		customers[key] = struct{}{}

		month := b.CreatedAt.In(loc).Format("2006-01")
		m, ok := months[month]
		if !ok {
			m = &models.MonthRevenue{Month: month, Revenue: decimal.Zero}
			months[month] = m
		}
		m.Revenue = m.Revenue.Add(b.TotalPrice)
		m.Bookings++

		e, ok := eventsByID[b.EventID]
		if !ok {
			e = &models.EventRevenue{EventID: b.EventID, EventName: b.EventName, Revenue: decimal.Zero}
			eventsByID[b.EventID] = e
		}
		e.Revenue = e.Revenue.Add(b.TotalPrice)
		e.Seats += seatCount(b)
	}

	a.Customers = len(customers)
	if a.PaidBookings > 0 {
		a.AverageOrder = a.TotalRevenue.Div(decimal.NewFromInt(int64(a.PaidBookings))).Round(2)
	}

	for _, m := range months {
		a.RevenueByMonth = append(a.RevenueByMonth, *m)
	}
	sort.Slice(a.RevenueByMonth, func(i, j int) bool { return a.RevenueByMonth[i].Month < a.RevenueByMonth[j].Month })

	for _, e := range eventsByID {
		a.TopEvents = append(a.TopEvents, *e)
	}
	sort.Slice(a.TopEvents, func(i, j int) bool {
		if c := a.TopEvents[i].Revenue.Cmp(a.TopEvents[j].Revenue); c != 0 {
			return c > 0
		}
		return a.TopEvents[i].EventName < a.TopEvents[j].EventName
	})
	if len(a.TopEvents) > topEventsLimit {
		a.TopEvents = a.TopEvents[:topEventsLimit]
	}
	return a
}

func seatCount(b models.Booking) int {
	if b.SeatsBooked > 0 {
		return b.SeatsBooked
	}
	return len(b.Seats)
}
