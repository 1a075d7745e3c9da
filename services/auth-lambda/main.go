package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/event-admin-services/common/bootstrap"
	"github.com/event-admin-services/common/config"
	"github.com/event-admin-services/common/logger"
	"github.com/event-admin-services/common/middleware"
	"github.com/event-admin-services/services/auth-lambda/handler"
)

func main() {
	app, err := bootstrap.New(context.Background(), config.Load())
	if err != nil {
		logger.Default().Fatal("failed to start auth lambda", "error", err)
	}
	app.Janitor().Start()

	lambda.Start(middleware.Dispatcher(app.Guards(), handler.New(app).Routes()))
}
