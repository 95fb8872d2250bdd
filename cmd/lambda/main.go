package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/your-org/filebackup/internal/app"
	"github.com/your-org/filebackup/internal/backup"
)

func main() {
	// Configuration is read once per execution environment and reused by
	// every invocation it serves.
	a, err := app.Bootstrap(context.Background())
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	handler := backup.NewLambdaHandler(a.Dispatcher, a.Logger)
	lambda.StartWithOptions(handler.Invoke, lambda.WithEnableSIGTERM(func() {
		if err := a.Close(context.Background()); err != nil {
			a.Logger.Sugar().Errorw("shutdown failed", "error", err)
		}
	}))
}
