// Command seed creates the database schema and the initial admin
// account. Intended for fresh deployments and local development.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sklapp/skl-api/pkg/config"
	"github.com/sklapp/skl-api/pkg/database"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id BIGSERIAL PRIMARY KEY,
		nisn TEXT NOT NULL UNIQUE,
		nis TEXT NOT NULL,
		full_name TEXT NOT NULL,
		birth_place TEXT NOT NULL,
		birth_date DATE NOT NULL,
		parent_name TEXT NOT NULL DEFAULT '',
		class_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		verified_by BIGINT,
		verified_at TIMESTAMPTZ,
		verification_note TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL,
		student_id BIGINT REFERENCES students(id),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS subjects (
		id BIGSERIAL PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS grades (
		id BIGSERIAL PRIMARY KEY,
		student_id BIGINT NOT NULL REFERENCES students(id),
		subject_id BIGINT NOT NULL REFERENCES subjects(id),
		value DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (student_id, subject_id)
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id BIGINT PRIMARY KEY,
		school_name TEXT NOT NULL,
		school_address TEXT NOT NULL DEFAULT '',
		headmaster_name TEXT NOT NULL,
		headmaster_nip TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL,
		certificate_title TEXT NOT NULL DEFAULT '',
		opening_text TEXT NOT NULL DEFAULT '',
		closing_text TEXT NOT NULL DEFAULT '',
		use_header_image BOOLEAN NOT NULL DEFAULT FALSE,
		header_image_path TEXT NOT NULL DEFAULT '',
		use_digital_signature BOOLEAN NOT NULL DEFAULT FALSE,
		signature_image_path TEXT NOT NULL DEFAULT '',
		updated_by BIGINT,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id UUID PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		token TEXT NOT NULL UNIQUE,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		revoked BOOLEAN NOT NULL DEFAULT FALSE,
		revoked_at TIMESTAMPTZ,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY,
		user_id BIGINT,
		action TEXT NOT NULL,
		resource TEXT NOT NULL,
		resource_id TEXT,
		old_values JSONB,
		new_values JSONB,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_students_status ON students(status)`,
	`CREATE INDEX IF NOT EXISTS idx_grades_student ON grades(student_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_user ON audit_logs(user_id)`,
}

func main() {
	var (
		adminUsername string
		adminPassword string
		adminName     string
		timeout       time.Duration
	)

	flag.StringVar(&adminUsername, "admin-user", "admin", "Initial admin username")
	flag.StringVar(&adminPassword, "admin-pass", "", "Initial admin password (required on first run)")
	flag.StringVar(&adminName, "admin-name", "Administrator", "Initial admin display name")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Fatalf("failed to apply schema: %v", err)
		}
	}
	log.Println("schema applied")

	var adminCount int
	if err := db.GetContext(ctx, &adminCount, `SELECT COUNT(*) FROM users WHERE role = 'ADMIN'`); err != nil {
		log.Fatalf("failed to check admin accounts: %v", err)
	}
	if adminCount > 0 {
		log.Println("admin account already present, nothing to seed")
		return
	}

	if adminPassword == "" {
		log.Fatal("-admin-pass is required when no admin account exists")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, full_name, role, active) VALUES ($1, $2, $3, 'ADMIN', TRUE)`,
		adminUsername, string(hash), adminName)
	if err != nil {
		log.Fatalf("failed to create admin account: %v", err)
	}
	log.Printf("admin account %q created", adminUsername)
}
