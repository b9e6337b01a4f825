// Command twofa-loadtest measures the two-factor auth engine under
// concurrent load.
//
// It seeds N users with committed SMS credentials, then runs two timed
// phases: login-code dispatch (SendLoginCode) and code verification
// (CheckLoginCode), each across a configurable number of workers. Without
// -redis-addr (or REDIS_ADDR) an embedded miniredis is used, which measures
// engine overhead rather than network latency.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	twofa "github.com/5giotlead/twofa"
)

const tenantID = "loadtest"

// captureSender hands the latest dispatched code back to the worker instead
// of sending it anywhere.
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string // destination -> code
}

func newCaptureSender() *captureSender {
	return &captureSender{codes: make(map[string]string)}
}

func (s *captureSender) SendCode(_ context.Context, destination, message string) error {
	code := message[strings.LastIndexByte(message, ' ')+1:]
	s.mu.Lock()
	s.codes[destination] = code
	s.mu.Unlock()
	return nil
}

func (s *captureSender) code(destination string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[destination]
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to enroll")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (send + check)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "tfa", "redis key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	var client *redis.Client
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	sender := newCaptureSender()
	engine, err := twofa.New().
		WithRedis(client).
		WithConfigStore(twofa.NewRedisConfigStore(client, *prefix)).
		WithSMSSender(sender).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	settings := twofa.TwoFactorAuthSettings{Providers: []twofa.ProviderConfig{
		{Type: twofa.ProviderSMS, SMS: &twofa.SMSProviderConfig{
			VerificationMessageTemplate: "code: ${verificationCode}",
		}},
	}}
	if err := engine.SaveSettings(ctx, tenantID, settings); err != nil {
		fmt.Fprintf(os.Stderr, "save settings failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("enrolling %d users...\n", *users)
	startSeed := time.Now()
	if err := seedUsers(ctx, engine, sender, *users, *concurrency); err != nil {
		fmt.Fprintf(os.Stderr, "seeding failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("enrolled in %s\n", time.Since(startSeed).Round(time.Millisecond))

	runPhase(ctx, "send login code", *ops, *concurrency, func(ctx context.Context, _ int, r *rand.Rand) error {
		return engine.SendLoginCode(ctx, loadUser(r.Intn(*users)), twofa.ProviderSMS)
	})

	// Workers own disjoint user stripes so concurrent send/check pairs never
	// race on the same pending challenge.
	runPhase(ctx, "check login code", *ops, *concurrency, func(ctx context.Context, w int, r *rand.Rand) error {
		stripe := *users / *concurrency
		if stripe == 0 {
			stripe = 1
		}
		user := loadUser((w*stripe + r.Intn(stripe)) % *users)
		if err := engine.SendLoginCode(ctx, user, twofa.ProviderSMS); err != nil {
			return err
		}
		return engine.CheckLoginCode(ctx, user, twofa.ProviderSMS, sender.code(phone(user)))
	})

	snap := engine.MetricsSnapshot()
	fmt.Printf("login codes sent=%d accepted=%d rejected=%d\n",
		snap.Counters[twofa.MetricLoginCodeSent],
		snap.Counters[twofa.MetricLoginCodeAccepted],
		snap.Counters[twofa.MetricLoginCodeRejected])
}

func loadUser(i int) twofa.User {
	id := fmt.Sprintf("u%d", i)
	return twofa.User{TenantID: tenantID, UserID: id, Identifier: id + "@load.test"}
}

func phone(user twofa.User) string {
	return "+1555" + user.UserID[1:]
}

func seedUsers(ctx context.Context, engine *twofa.Engine, sender *captureSender, users, concurrency int) error {
	var next atomic.Int64
	var wg sync.WaitGroup

	var errMu sync.Mutex
	var firstErr error
	record := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	wg.Add(concurrency)
	for w := 0; w < concurrency; w++ {
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= users {
					return
				}
				user := loadUser(i)
				candidate := twofa.AccountConfig{
					Type: twofa.ProviderSMS,
					SMS:  &twofa.SMSAccountConfig{PhoneNumber: phone(user)},
				}
				if err := engine.SubmitAccountConfig(ctx, user, candidate); err != nil {
					record(err)
					return
				}
				if _, err := engine.VerifyAndSaveAccountConfig(ctx, user, candidate, sender.code(phone(user))); err != nil {
					record(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func runPhase(ctx context.Context, name string, ops, concurrency int, op func(context.Context, int, *rand.Rand) error) {
	fmt.Printf("phase %q: %d ops across %d workers\n", name, ops, concurrency)

	latencies := make([][]time.Duration, concurrency)
	var next atomic.Int64
	var failures atomic.Int64
	var wg sync.WaitGroup

	start := time.Now()
	wg.Add(concurrency)
	for w := 0; w < concurrency; w++ {
		go func(w int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(w) + 1))
			for {
				if int(next.Add(1)) > ops {
					return
				}
				opStart := time.Now()
				if err := op(ctx, w, r); err != nil {
					failures.Add(1)
				}
				latencies[w] = append(latencies[w], time.Since(opStart))
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	var all []time.Duration
	for _, ls := range latencies {
		all = append(all, ls...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	fmt.Printf("  %.0f ops/s, failures=%d\n", float64(len(all))/elapsed.Seconds(), failures.Load())
	if len(all) > 0 {
		fmt.Printf("  p50=%s p95=%s p99=%s max=%s\n",
			percentile(all, 0.50), percentile(all, 0.95), percentile(all, 0.99), all[len(all)-1])
	}
}

func percentile(sorted []time.Duration, q float64) time.Duration {
	idx := int(float64(len(sorted)-1) * q)
	return sorted[idx]
}
