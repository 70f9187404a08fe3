package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinic-scheduler/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedClinicians(context.Background(), pool, 12); err != nil {
		log.Fatalf("seed clinicians: %v", err)
	}
	if err := seedRooms(context.Background(), pool, 8); err != nil {
		log.Fatalf("seed rooms: %v", err)
	}
	if err := seedServices(context.Background(), pool); err != nil {
		log.Fatalf("seed services: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 500); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedClinicians(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d clinicians", count)

	specialties := []string{
		"Physiotherapy",
		"Sports Rehabilitation",
		"Orthopedics",
		"Neurological Rehabilitation",
		"Pediatric Physiotherapy",
		"Geriatric Care",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO clinicians (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("clinicians seeded")
	return nil
}

func seedRooms(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d rooms", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO rooms (id, name, created_at, updated_at)
			VALUES ($1, $2, now(), now())
		`, uuid.New(), gofakeit.Numerify("Room 1##"))
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("rooms seeded")
	return nil
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) error {
	services := []struct {
		name    string
		minutes int
	}{
		{"Initial consultation", 45},
		{"Follow-up session", 30},
		{"Manual therapy", 60},
		{"Post-surgical rehabilitation", 60},
		{"Group session", 90},
	}

	log.Printf("seeding %d services", len(services))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, svc := range services {
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, description, duration_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, uuid.New(), svc.name, gofakeit.Sentence(8), svc.minutes)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("services seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 100

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
