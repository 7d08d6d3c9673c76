package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"chatpot/database"
	"chatpot/economy"
	"chatpot/web"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	// Load environment variables
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Connect to database
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "./chatpot.db"
	}

	db, err := sqlx.Connect("sqlite3", dbURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := database.EnsureSchema(db); err != nil {
		log.Fatal("Failed to ensure database schema:", err)
	}

	// Token signing secret is required; everything else has defaults
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	tokenTTL := 30 * time.Minute
	if raw := os.Getenv("TOKEN_TTL_MINUTES"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil {
			log.Fatal("Invalid TOKEN_TTL_MINUTES:", err)
		}
		tokenTTL = time.Duration(minutes) * time.Minute
	}

	// Initialize components
	repo := database.NewRepository(db)
	engine := economy.NewEngine(repo)
	server := web.NewServer(repo, engine, jwtSecret, tokenTTL)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("💰 Pot is open for business!")

	// Start server (this blocks)
	if err := server.Start(port); err != nil {
		log.Fatal("Failed to start web server:", err)
	}
}
