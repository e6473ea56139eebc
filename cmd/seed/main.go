// Seeds a development database with clinic settings, a doctor roster and a
// pool of patients.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/dentalops/booking-engine/internal/clinic"
	"github.com/dentalops/booking-engine/internal/doctors"
	"github.com/dentalops/booking-engine/internal/patients"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	_ = godotenv.Load()
	log.Println("seed starting")

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping postgres: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedSettings(ctx, pool); err != nil {
		log.Fatalf("seed settings: %v", err)
	}
	if err := seedDoctors(ctx, pool, 4); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(ctx, pool, 50); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedSettings(ctx context.Context, pool *pgxpool.Pool) error {
	log.Println("seeding clinic settings")
	store := clinic.NewStore(pool, nil, nil)
	return store.Update(ctx, clinic.DefaultSettings())
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d doctors", count)
	store := doctors.NewStore(pool)

	for i := 0; i < count; i++ {
		d := &doctors.Doctor{
			Name:        fmt.Sprintf("Dr. %s", gofakeit.LastName()),
			IsActive:    true,
			CalendarRef: fmt.Sprintf("cal-%s", uuid.NewString()[:8]),
		}
		if err := store.Create(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)
	store := patients.NewStore(pool)

	for i := 0; i < count; i++ {
		if _, err := store.Upsert(ctx, gofakeit.Name(), gofakeit.Phone(), gofakeit.Email()); err != nil {
			return err
		}
	}
	return nil
}
