package main

import (
	"log"

	"limoride/webhook-service/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatalf("webhook service failed: %v", err)
	}
}
