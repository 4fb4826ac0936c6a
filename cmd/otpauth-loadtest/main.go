// Command otpauth-loadtest logs in a population of accounts through the
// password + OTP flow and then drives concurrent Authenticate and Refresh
// traffic against the resulting sessions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/otpAuth"
	"github.com/MrEthical07/otpAuth/accountstore/memory"
	"github.com/MrEthical07/otpAuth/password"
)

const loadPassword = "Secret1!load"

var codePattern = regexp.MustCompile(`login code is (\d+)`)

// codeCatcher is a Mailer that remembers the last login code per address.
type codeCatcher struct {
	codes sync.Map
}

func (c *codeCatcher) Send(_ context.Context, msg otpAuth.Message) error {
	if m := codePattern.FindStringSubmatch(msg.Text); len(m) == 2 {
		c.codes.Store(msg.To, m[1])
	}
	return nil
}

func (c *codeCatcher) code(email string) (string, bool) {
	v, ok := c.codes.Load(email)
	if !ok {
		return "", false
	}
	return v.(string), true
}

type sessionState struct {
	access  atomic.Pointer[string]
	refresh string
}

func main() {
	var (
		sessions    = flag.Int("sessions", 500, "number of accounts to log in")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (authenticate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt:", "redis key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
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

	engine, mailer, err := newEngine(ctx, client, *prefix, *sessions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine setup failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("logging in %d accounts...\n", *sessions)
	startSeed := time.Now()
	states, err := seed(ctx, engine, mailer, *sessions, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runPhase(ctx, states, *ops, *concurrency, 7919, func(ctx context.Context, s *sessionState) error {
		_, err := engine.Authenticate(ctx, *s.access.Load())
		return err
	})
	refreshStats := runPhase(ctx, states, *ops, *concurrency, 6151, func(ctx context.Context, s *sessionState) error {
		res, err := engine.Refresh(ctx, s.refresh)
		if err != nil {
			return err
		}
		s.access.Store(&res.AccessToken)
		return nil
	})

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("metrics: authenticate_success=%d authenticate_failure=%d refresh_success=%d refresh_failure=%d projection_hit=%d projection_miss=%d\n",
		snap.Counters[otpAuth.MetricAuthenticateSuccess],
		snap.Counters[otpAuth.MetricAuthenticateFailure],
		snap.Counters[otpAuth.MetricRefreshSuccess],
		snap.Counters[otpAuth.MetricRefreshFailure],
		snap.Counters[otpAuth.MetricProjectionCacheHit],
		snap.Counters[otpAuth.MetricProjectionCacheMiss],
	)
}

// newEngine builds an engine over an in-memory account store holding n
// accounts that share one password hash.
func newEngine(ctx context.Context, client redis.UniversalClient, prefix string, n int) (*otpAuth.Engine, *codeCatcher, error) {
	cfg := otpAuth.DefaultConfig()
	cfg.Session.RedisPrefix = prefix
	cfg.Tokens.AccessSecret = []byte(uuid.NewString())
	cfg.Tokens.RefreshSecret = []byte(uuid.NewString())
	cfg.Tokens.ResetSecret = []byte(uuid.NewString())
	cfg.Tokens.VerificationSecret = []byte(uuid.NewString())
	cfg.Registration.Cooldown = 0
	cfg.Login.Cooldown = 0
	cfg.Password = otpAuth.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
	cfg.Metrics.EnableLatencyHistograms = true

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, nil, err
	}
	hash, err := hasher.Hash(loadPassword)
	if err != nil {
		return nil, nil, err
	}

	accounts := memory.New()
	for i := 0; i < n; i++ {
		err := accounts.Create(ctx, &otpAuth.Account{
			ID:            uuid.NewString(),
			Username:      fmt.Sprintf("load%06d", i),
			Email:         emailFor(i),
			PasswordHash:  hash,
			Role:          otpAuth.RoleUser,
			EmailVerified: true,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	mailer := &codeCatcher{}
	engine, err := otpAuth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(accounts).
		WithMailer(mailer).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return engine, mailer, nil
}

func emailFor(i int) string {
	return fmt.Sprintf("load%06d@example.com", i)
}

func seed(ctx context.Context, engine *otpAuth.Engine, mailer *codeCatcher, n, concurrency int) ([]*sessionState, error) {
	states := make([]*sessionState, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			email := emailFor(i)
			challenge, err := engine.Login(gctx, email, loadPassword)
			if err != nil {
				return fmt.Errorf("login %s: %w", email, err)
			}
			code, ok := mailer.code(email)
			if !ok {
				return errors.New("no login code mailed to " + email)
			}
			est, err := engine.VerifyOTP(gctx, challenge.VerificationSessionID, code)
			if err != nil {
				return fmt.Errorf("verify %s: %w", email, err)
			}
			s := &sessionState{refresh: est.RefreshToken}
			s.access.Store(&est.AccessToken)
			states[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return states, nil
}

func runPhase(ctx context.Context, states []*sessionState, ops, concurrency int, salt int64, op func(context.Context, *sessionState) error) phaseStats {
	var (
		g         errgroup.Group
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)*salt))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return nil
				}
				s := states[r.Intn(len(states))]
				t0 := time.Now()
				err := op(ctx, s)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		})
	}
	_ = g.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
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
