// Command deviceauth-loadtest measures session store latency for the
// per-request paths: the validator's single GET and the session directory's
// SMEMBERS + pipelined GET fan-out.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/deviceauth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type seeded struct {
	userID string
	jtis   []string
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to seed")
		devices     = flag.Int("devices", 4, "sessions per user")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "", "session key prefix")
	)
	flag.Parse()

	if *users <= 0 || *devices <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, devices, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := session.NewStore(client, *prefix, session.DefaultSetTTLBuffer)

	fmt.Printf("seeding %d users x %d sessions...\n", *users, *devices)
	startSeed := time.Now()
	states, err := seed(ctx, store, *users, *devices)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	getStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		u := states[r.Intn(len(states))]
		_, err := store.Get(ctx, u.jtis[r.Intn(len(u.jtis))])
		return err
	})
	listStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		u := states[r.Intn(len(states))]
		jtis, err := store.Members(ctx, u.userID)
		if err != nil {
			return err
		}
		_, err = store.GetMany(ctx, jtis)
		return err
	})

	fmt.Println("---- results ----")
	printStats("validate-get", getStats)
	printStats("list-sessions", listStats)
}

func seed(ctx context.Context, store *session.Store, users, devices int) ([]seeded, error) {
	now := time.Now()
	out := make([]seeded, users)
	for i := range out {
		out[i].userID = uuid.NewString()
		for d := 0; d < devices; d++ {
			rec := &session.Record{
				JTI:          uuid.NewString(),
				UserID:       out[i].userID,
				TokenVersion: 1,
				Device:       session.Device{Name: fmt.Sprintf("device-%d", d), IP: "198.51.100.1", UserAgent: "loadtest"},
				CreatedAt:    now.Unix(),
				ExpiresAt:    now.Add(time.Hour).Unix(),
			}
			if err := store.Save(ctx, rec, time.Hour); err != nil {
				return nil, err
			}
			out[i].jtis = append(out[i].jtis, rec.JTI)
		}
	}
	return out, nil
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
