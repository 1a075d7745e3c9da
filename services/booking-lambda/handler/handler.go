package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/event-admin-services/common/bootstrap"
	"github.com/event-admin-services/common/config"
	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/middleware"
	common "github.com/event-admin-services/common/models"
	"github.com/event-admin-services/common/permission"
	"github.com/event-admin-services/common/response"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/services/booking-lambda/repository"
	"github.com/event-admin-services/services/booking-lambda/usecase"
)

const contentTypePDF = "application/pdf"

// BookingHandler serves bookings, transactions, customers and analytics
type BookingHandler struct {
	useCase *usecase.BookingUseCase
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(uc *usecase.BookingUseCase) *BookingHandler {
	return &BookingHandler{useCase: uc}
}

// New wires the booking handler onto a shared runtime
func New(app *bootstrap.App) *BookingHandler {
	repo := repository.NewBookingRepository(app.Backend)
	return NewBookingHandler(usecase.NewBookingUseCase(repo, app.Store, app.Clock, app.Payments.Currency()))
}

// Routes lists the booking endpoints
func (h *BookingHandler) Routes() []middleware.Route {
	return []middleware.Route{
		{Method: http.MethodGet, Path: "/api/bookings", Handler: h.HandleListBookings, Feature: permission.FeatureBookings, Permission: permission.View},
		{Method: http.MethodGet, Path: "/api/bookings/{id}", Handler: h.HandleGetBooking, Feature: permission.FeatureBookings, Permission: permission.View},
		{Method: http.MethodGet, Path: "/api/bookings/{id}/receipt", Handler: h.HandleReceipt, Feature: permission.FeatureBookings, Permission: permission.Export},
		{Method: http.MethodGet, Path: "/api/transactions", Handler: h.HandleListTransactions, Feature: permission.FeatureTransactions, Permission: permission.View},
		{Method: http.MethodGet, Path: "/api/transactions/report", Handler: h.HandleTransactionReport, Feature: permission.FeatureTransactions, Permission: permission.Export},
		{Method: http.MethodGet, Path: "/api/customers", Handler: h.HandleListCustomers, Feature: permission.FeatureCustomers, Permission: permission.View},
		{Method: http.MethodGet, Path: "/api/analytics", Handler: h.HandleAnalytics, Feature: permission.FeatureAnalytics, Permission: permission.View},
	}
}

// HandleListBookings handles GET /api/bookings?search=&status=&page=&pageSize=
func (h *BookingHandler) HandleListBookings(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	q := common.ParseListQuery(request.QueryStringParameters, config.GetConfig().DefaultPageSize)
	result, err := h.useCase.ListBookings(ctx, sess, q)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, result)
}

// HandleGetBooking handles GET /api/bookings/{id}
func (h *BookingHandler) HandleGetBooking(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	id, err := middleware.PathParam(request, "id")
	if err != nil {
		return response.Error(err)
	}
	detail, err := h.useCase.GetBooking(ctx, sess, id)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, detail)
}

// HandleReceipt handles GET /api/bookings/{id}/receipt
func (h *BookingHandler) HandleReceipt(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	id, err := middleware.PathParam(request, "id")
	if err != nil {
		return response.Error(err)
	}
	doc, err := h.useCase.Receipt(ctx, sess, id)
	if err != nil {
		return response.Error(err)
	}
	return response.Binary(contentTypePDF, doc.Filename, doc.Base64()), nil
}

// HandleListTransactions handles GET /api/transactions?search=&status=&from=&to=&page=&pageSize=
func (h *BookingHandler) HandleListTransactions(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	q, err := transactionQuery(request)
	if err != nil {
		return response.Error(err)
	}
	result, err := h.useCase.ListTransactions(ctx, sess, q)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, result)
}

// HandleTransactionReport handles GET /api/transactions/report with the list filters
func (h *BookingHandler) HandleTransactionReport(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	q, err := transactionQuery(request)
	if err != nil {
		return response.Error(err)
	}
	doc, err := h.useCase.TransactionReport(ctx, sess, q)
	if err != nil {
		return response.Error(err)
	}
	return response.Binary(contentTypePDF, doc.Filename, doc.Base64()), nil
}

// HandleListCustomers handles GET /api/customers?search=&page=&pageSize=
func (h *BookingHandler) HandleListCustomers(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	q := common.ParseListQuery(request.QueryStringParameters, config.GetConfig().DefaultPageSize)
	result, err := h.useCase.ListCustomers(ctx, sess, q)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, result)
}

// HandleAnalytics handles GET /api/analytics?tz=
func (h *BookingHandler) HandleAnalytics(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	loc := time.UTC
	if tz := request.QueryStringParameters["tz"]; tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return response.Error(apperrors.InvalidInput("tz", "Unknown time zone"))
		}
		loc = l
	}
	summary, err := h.useCase.Analytics(ctx, sess, loc)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, summary)
}

// transactionQuery reads the list filters plus from/to dates (2006-01-02).
// to is inclusive for the user, so the query ends the day after.
func transactionQuery(request events.APIGatewayProxyRequest) (usecase.TransactionQuery, error) {
	params := request.QueryStringParameters
	q := usecase.TransactionQuery{ListQuery: common.ParseListQuery(params, config.GetConfig().DefaultPageSize)}
	if v := params["from"]; v != "" {
		from, err := time.Parse("2006-01-02", v)
		if err != nil {
			return q, apperrors.InvalidInput("from", "Date must look like 2026-05-31")
		}
		q.From = from
	}
	if v := params["to"]; v != "" {
		to, err := time.Parse("2006-01-02", v)
		if err != nil {
			return q, apperrors.InvalidInput("to", "Date must look like 2026-05-31")
		}
		q.To = to.AddDate(0, 0, 1)
	}
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return q, apperrors.InvalidInput("to", "End date must not be before start date")
	}
	return q, nil
}
