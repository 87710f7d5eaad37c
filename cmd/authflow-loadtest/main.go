package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/memidp"
	"github.com/MrEthical07/authflow/step"
)

const loadPassword = "load-test-orbit-lantern-7731"

func main() {
	cfg, err := loadSettings(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	client, cleanup, err := connectRedis(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	provider := memidp.New(memidp.Options{})
	engineCfg := authflow.DefaultConfig()
	engineCfg.Store.RedisPrefix = cfg.Prefix
	engine, err := authflow.New().
		WithConfig(engineCfg).
		WithRedis(client).
		WithIdentityProvider(provider).
		WithUserDirectory(memidp.NewDirectory()).
		WithLogger(logger).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	emails := make([]string, cfg.Users)
	for i := range emails {
		emails[i] = fmt.Sprintf("user-%d@load.test", i)
	}

	signupStats := runPhase(cfg.Users, cfg.Concurrency, func(i int, _ *rand.Rand) error {
		return signUp(ctx, engine, provider, emails[i])
	})
	checkStats := runPhase(cfg.Ops, cfg.Concurrency, func(_ int, r *rand.Rand) error {
		_, err := engine.SmartCheck(ctx, emails[r.IntN(len(emails))])
		return err
	})
	limiterStats := runPhase(cfg.Ops, cfg.Concurrency, func(_ int, r *rand.Rand) error {
		id := emails[r.IntN(len(emails))]
		d, err := engine.IsAttemptAllowed(ctx, id, step.OpEmailCheck)
		if err != nil {
			return err
		}
		if !d.Allowed {
			return nil
		}
		return engine.RecordAttempt(ctx, id, step.OpEmailCheck, r.IntN(10) != 0)
	})

	fmt.Println("---- results ----")
	printStats("signup", signupStats)
	printStats("smart_check", checkStats)
	printStats("limiter", limiterStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("flows completed=%d rate_limited=%d degraded=%d\n",
		snap.Counters[authflow.MetricFlowCompleted],
		snap.Counters[authflow.MetricRateLimited],
		snap.Counters[authflow.MetricLimiterDegraded],
	)
	logger.Info("load test finished", zap.Int("users", cfg.Users), zap.Int("ops", cfg.Ops))
}

func connectRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Printf("using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}

// signUp walks a new account from email entry to Signin.
func signUp(ctx context.Context, engine *authflow.Engine, provider *memidp.Provider, email string) error {
	f, _, err := engine.Start(ctx, email)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SetPassword(ctx, loadPassword); err != nil {
		return err
	}
	code, ok := provider.LastCode(email, memidp.PurposeSignUp)
	if !ok {
		return fmt.Errorf("no signup code for %s", email)
	}
	return f.ConfirmEmail(ctx, code)
}

func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    atomic.Int64
		failures  atomic.Int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(worker)*7919))
			for {
				i := int(cursor.Add(1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i, r)
				d := time.Since(t0)
				if err != nil {
					failures.Add(1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures.Load())
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
