package main

import (
	"log"

	"github.com/joho/godotenv"

	"frserver/internal/app"
)

func main() {
	// Optional .env; real deployments set the environment directly
	_ = godotenv.Load()

	application, err := app.NewApp()
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}
	defer application.Close()

	if err := application.Run(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
