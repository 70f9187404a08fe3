package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinic-scheduler/internal/db"
)

// simulate hammers one clinician slot with concurrent booking requests.
// With the schedule lock and the exclusion constraints in place exactly one
// request should win; everything else must come back as a 409.

type counters struct {
	created  int64
	conflict int64
	busy     int64
	other    int64
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	baseURL := getenv("API_BASE_URL", "http://127.0.0.1:8080")
	workers := getenvInt("SIM_WORKERS", 25)
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

	clinicianID, err := pickOne(ctx, pool, "clinicians")
	if err != nil {
		log.Fatalf("pick clinician: %v", err)
	}
	patients, err := pickMany(ctx, pool, "patients", workers)
	if err != nil {
		log.Fatalf("pick patients: %v", err)
	}
	if len(patients) < workers {
		log.Fatalf("need %d patients, found %d (run cmd/seed first)", workers, len(patients))
	}

	date := nextBusinessDay(time.Now())
	log.Printf("targeting clinician=%s date=%s start=10:00 with %d workers", clinicianID, date, workers)

	var (
		c  counters
		wg sync.WaitGroup
	)
	client := &http.Client{Timeout: 10 * time.Second}

	start := time.Now()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			status, code := book(client, baseURL, patientID, clinicianID, date)
			switch {
			case status == http.StatusCreated:
				atomic.AddInt64(&c.created, 1)
			case status == http.StatusConflict && code == "schedule_busy":
				atomic.AddInt64(&c.busy, 1)
			case status == http.StatusConflict:
				atomic.AddInt64(&c.conflict, 1)
			default:
				atomic.AddInt64(&c.other, 1)
			}
		}(patients[i])
	}
	wg.Wait()

	log.Printf("done in %s", time.Since(start))
	log.Printf("created=%d conflict=%d busy=%d other=%d",
		atomic.LoadInt64(&c.created),
		atomic.LoadInt64(&c.conflict),
		atomic.LoadInt64(&c.busy),
		atomic.LoadInt64(&c.other))

	if n := atomic.LoadInt64(&c.created); n != 1 {
		log.Printf("WARNING: expected exactly 1 created booking, got %d", n)
		os.Exit(1)
	}
	log.Println("schedule held: exactly one booking won the slot")
}

func book(client *http.Client, baseURL string, patientID, clinicianID uuid.UUID, date string) (int, string) {
	payload := map[string]any{
		"patient_id":   patientID.String(),
		"clinician_id": clinicianID.String(),
		"date":         date,
		"start_time":   "10:00",
		"reason":       "simulated booking",
	}
	body, _ := json.Marshal(payload)

	resp, err := client.Post(baseURL+"/appointments", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("request error: %v", err)
		return 0, ""
	}
	defer resp.Body.Close()

	var errBody struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &errBody)

	return resp.StatusCode, errBody.Error
}

func pickOne(ctx context.Context, pool *pgxpool.Pool, table string) (uuid.UUID, error) {
	var id uuid.UUID
	err := pool.QueryRow(ctx, fmt.Sprintf(`SELECT id FROM %s LIMIT 1`, table)).Scan(&id)
	return id, err
}

func pickMany(ctx context.Context, pool *pgxpool.Pool, table string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, fmt.Sprintf(`SELECT id FROM %s LIMIT $1`, table), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// nextBusinessDay returns the next weekday as YYYY-MM-DD, skipping today.
func nextBusinessDay(now time.Time) string {
	d := now.AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format("2006-01-02")
}
