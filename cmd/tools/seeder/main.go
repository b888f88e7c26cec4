package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/alexedwards/argon2id"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedUsers(db)
	seedRateConfig(db)
	seedClients(db)

	log.Println("Seeding completed successfully!")
}

func seedUsers(db *sql.DB) {
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		password = "password123"
	}

	users := []struct {
		Name  string
		Email string
		Role  string
	}{
		{"Admin", "admin@imexpress.com", "admin"},
		{"Operator", "ops@imexpress.com", "user"},
	}

	fmt.Println("Seeding Users...")
	for _, u := range users {
		hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		_, err = db.Exec(`
			INSERT INTO users (name, email, password_hash, role)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (lower(email)) DO NOTHING;
		`, u.Name, u.Email, hash, u.Role)
		if err != nil {
			log.Printf("Failed to seed user %s: %v", u.Email, err)
		}
	}
}

func seedRateConfig(db *sql.DB) {
	fmt.Println("Seeding Rate Config...")
	_, err := db.Exec(`
		INSERT INTO rate_config (id, rate_per_kg, usd_surcharge, base_rate, extra_rate_per_kg, discount_type, discount_value)
		VALUES (1, 100, 0, 0, 0, 'percentage', 0)
		ON CONFLICT (id) DO NOTHING;
	`)
	if err != nil {
		log.Printf("Failed to seed rate config: %v", err)
	}
}

func seedClients(db *sql.DB) {
	clients := []struct {
		Code      string
		Name      string
		Address   string
		RatePerKg int64
	}{
		{"IM001", "PT Maju Bersama", "Jl. Sudirman No. 1, Jakarta", 95},
		{"IM002", "CV Sinar Abadi", "Jl. Gatot Subroto No. 12, Bandung", 110},
		{"IM003", "UD Cahaya Baru", "Jl. Ahmad Yani No. 5, Surabaya", 0},
	}

	fmt.Println("Seeding Clients...")
	for _, c := range clients {
		_, err := db.Exec(`
			INSERT INTO clients (client_id, name, address, client_type, rate_per_kg, discount_type, discount_value)
			VALUES ($1, $2, $3, 'NEW', $4, 'percentage', 0)
			ON CONFLICT DO NOTHING;
		`, c.Code, c.Name, c.Address, c.RatePerKg)
		if err != nil {
			log.Printf("Failed to seed client %s: %v", c.Code, err)
		}
	}
}
