package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gorilla/mux"

	"github.com/event-admin-services/common/bootstrap"
	"github.com/event-admin-services/common/config"
	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/logger"
	"github.com/event-admin-services/common/metrics"
	"github.com/event-admin-services/common/middleware"
	"github.com/event-admin-services/common/response"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/common/store"
	authHandler "github.com/event-admin-services/services/auth-lambda/handler"
	bookingHandler "github.com/event-admin-services/services/booking-lambda/handler"
	boostHandler "github.com/event-admin-services/services/boost-lambda/handler"
	eventHandler "github.com/event-admin-services/services/event-lambda/handler"
	userHandler "github.com/event-admin-services/services/user-lambda/handler"
)

const shutdownTimeout = 15 * time.Second

// dashboardState handles GET /api/dashboard/state?slice=. It reports the
// loading, error and data of each slice cached for the caller's session.
func dashboardState(st *store.Store) middleware.Handler {
	return func(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		sess, _ := session.FromContext(ctx)
		if name := request.QueryStringParameters["slice"]; name != "" {
			for _, known := range store.AllSlices {
				if string(known) == name {
					return response.Success(http.StatusOK, st.Get(sess.ID, known))
				}
			}
			return response.Error(apperrors.InvalidInput("slice", "Unknown slice "+name))
		}
		return response.Success(http.StatusOK, st.Snapshot(sess.ID))
	}
}

// routes collects every service's endpoints in one table. Static paths are
// listed before templated ones inside each service.
func routes(app *bootstrap.App) []middleware.Route {
	var all []middleware.Route
	all = append(all, authHandler.New(app).Routes()...)
	all = append(all, eventHandler.New(app).Routes()...)
	all = append(all, bookingHandler.New(app).Routes()...)
	all = append(all, userHandler.New(app).Routes()...)
	all = append(all, boostHandler.New(app).Routes()...)
	all = append(all, middleware.Route{Method: http.MethodGet, Path: "/api/dashboard/state", Handler: dashboardState(app.Store)})
	return all
}

func newRouter(app *bootstrap.App) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.CORS(app.Config.AllowOrigin))

	guards := app.Guards()
	for _, rt := range routes(app) {
		r.Handle(rt.Path, middleware.Adapter(guards.Wrap(rt))).Methods(rt.Method, http.MethodOptions)
	}
	if app.Config.EnableMetrics {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

func main() {
	log := logger.Default().With("component", "main")
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatal("failed to start gateway", "error", err)
	}
	defer app.Close()

	janitor := app.Janitor()
	janitor.Start()
	defer janitor.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("admin gateway listening", "port", cfg.Port, "backend", cfg.BackendBaseURL, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
