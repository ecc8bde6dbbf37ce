package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"frserver/internal/identity/sqlite"
)

// Creates or migrates the identity database without starting the server.
func main() {
	_ = godotenv.Load()

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = filepath.Join(".", "identities.db")
	}

	db, err := sqlite.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	defer db.Close()

	var identities, visits int
	if err := db.Conn().QueryRow(`SELECT COUNT(*) FROM identities`).Scan(&identities); err != nil {
		log.Fatalf("Failed to count identities: %v", err)
	}
	if err := db.Conn().QueryRow(`SELECT COUNT(*) FROM visits`).Scan(&visits); err != nil {
		log.Fatalf("Failed to count visits: %v", err)
	}

	fmt.Printf("Database %s ready: %d identities, %d visit entries\n", dbPath, identities, visits)
}
