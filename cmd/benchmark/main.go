package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/punchamoorthee/hostelops/internal/auth"
	"golang.org/x/sync/errgroup"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	students    int
	rooms       int
	firstUserID int64
	jwtSecret   string
	jwtIssuer   string
)

// Outcome counters, keyed by response status
var (
	totalRequests uint64
	booked201     uint64
	vacated200    uint64
	denied422     uint64 // RoomFull, AlreadyAllocated, GenderMismatch
	unpaid403     uint64
	conflict409   uint64 // LockTimeout, SerializationFailure
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&students, "students", 400, "Seeded student count")
	flag.IntVar(&rooms, "rooms", 100, "Seeded room count")
	flag.Int64Var(&firstUserID, "first-user", 1000, "User id of the first seeded student")
	flag.StringVar(&jwtSecret, "secret", os.Getenv("JWT_SECRET"), "JWT signing secret shared with the server")
	flag.StringVar(&jwtIssuer, "issuer", "hostelops", "JWT issuer")
}

func main() {
	flag.Parse()
	if jwtSecret == "" {
		log.Fatal("JWT secret required (-secret or JWT_SECRET)")
	}
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	tokens := auth.NewJWTManager(jwtSecret, jwtIssuer, duration+time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		w := i
		g.Go(func() error { return worker(ctx, tokens, w) })
	}
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
	printResults(time.Since(start))
}

// worker alternates booking and vacating as one student. A failed vacate is
// retried before the next booking.
func worker(ctx context.Context, tokens *auth.JWTManager, w int) error {
	client := &http.Client{Timeout: 5 * time.Second}
	userID := firstUserID + int64(w%students)
	token, err := tokens.GenerateToken(userID, auth.RoleStudent)
	if err != nil {
		return fmt.Errorf("token for user %d: %w", userID, err)
	}

	holding := false
	for ctx.Err() == nil {
		if holding {
			status, err := post(ctx, client, token, "/api/v1/student/vacate", nil)
			if err != nil {
				countFailure(ctx)
				continue
			}
			record(status)
			holding = status != http.StatusOK && status != http.StatusNotFound
			continue
		}
		status, err := post(ctx, client, token, "/api/v1/student/bookings", map[string]int64{"room_id": pickRoom()})
		if err != nil {
			countFailure(ctx)
			continue
		}
		record(status)
		holding = status == http.StatusCreated
	}
	return nil
}

// countFailure ignores errors caused by the run ending.
func countFailure(ctx context.Context) {
	if ctx.Err() == nil {
		atomic.AddUint64(&failOther, 1)
	}
}

func post(ctx context.Context, client *http.Client, token, path string, payload any) (int, error) {
	var body []byte
	if payload != nil {
		body, _ = json.Marshal(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func record(status int) {
	atomic.AddUint64(&totalRequests, 1)
	switch status {
	case http.StatusCreated:
		atomic.AddUint64(&booked201, 1)
	case http.StatusOK:
		atomic.AddUint64(&vacated200, 1)
	case http.StatusUnprocessableEntity:
		atomic.AddUint64(&denied422, 1)
	case http.StatusForbidden:
		atomic.AddUint64(&unpaid403, 1)
	case http.StatusConflict:
		atomic.AddUint64(&conflict409, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
}

func pickRoom() int64 {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic goes to rooms 1 & 2
		if rand.Float32() < 0.90 {
			return int64(rand.Intn(2) + 1)
		}
	}
	return int64(rand.Intn(rooms) + 1)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	f409 := atomic.LoadUint64(&conflict409)

	var abortRate float64
	if total > 0 {
		abortRate = float64(f409) / float64(total) * 100
	}

	results := map[string]any{
		"workload":         workload,
		"duration_sec":     d.Seconds(),
		"total_requests":   total,
		"throughput_tps":   float64(total) / d.Seconds(),
		"booked":           atomic.LoadUint64(&booked201),
		"vacated":          atomic.LoadUint64(&vacated200),
		"denied":           atomic.LoadUint64(&denied422),
		"payment_required": atomic.LoadUint64(&unpaid403),
		"aborts_conflict":  f409,
		"abort_rate_pct":   abortRate,
		"errors":           atomic.LoadUint64(&failOther),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("write %s: %v", filename, err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
