// Command ctxauth-loadtest drives an Engine against Redis (or miniredis) and
// reports per-phase latency percentiles.
//
// Phases run in order: trusted-context logins, Authenticate on the issued
// tokens, and logins from an unknown browser that each open a challenge.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	ctxAuth "github.com/MrEthical07/ctxAuth"
	"github.com/MrEthical07/ctxAuth/internal/memdir"
	"github.com/MrEthical07/ctxAuth/internal/stores"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	homeUA   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	travelUA = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
)

type account struct {
	email string
	ip    string
	token atomic.Pointer[string]
}

type phase struct {
	name string
	fn   func(*rand.Rand) error
}

func main() {
	users := flag.Int("users", 10000, "accounts to seed")
	concurrency := flag.Int("concurrency", 128, "concurrent workers")
	ops := flag.Int("ops", 50000, "operations per phase")
	redisAddr := flag.String("redis-addr", os.Getenv("REDIS_ADDR"), "redis address; miniredis when empty")
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency and ops must be > 0")
		os.Exit(2)
	}
	if err := run(*redisAddr, *users, *concurrency, *ops, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(redisAddr string, users, concurrency, ops int, out io.Writer) error {
	ctx := context.Background()

	client, closeRedis, err := connect(redisAddr, out)
	if err != nil {
		return err
	}
	defer closeRedis()

	cfg := ctxAuth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("loadtest-access-secret")
	cfg.JWT.RefreshSecret = []byte("loadtest-refresh-secret")
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	var mailed atomic.Int64
	dir := memdir.New()
	engine, err := ctxAuth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserDirectory(dir).
		WithMailer(ctxAuth.MailerFunc(func(context.Context, string, string, string) (string, error) {
			mailed.Add(1)
			return "", nil
		})).
		WithLogger(quiet).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	start := time.Now()
	accounts, err := seed(ctx, stores.NewTrustStore(client, cfg.Redis.TrustPrefix), dir, users)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	fmt.Fprintf(out, "seeded %d accounts in %s\n", users, time.Since(start).Round(time.Millisecond))

	pick := func(r *rand.Rand) *account { return &accounts[r.Intn(len(accounts))] }
	phases := []phase{
		{"login", func(r *rand.Rand) error {
			a := pick(r)
			res, err := engine.Login(requestContext(homeUA, a.ip), a.email)
			if err != nil {
				return err
			}
			if res.Outcome != ctxAuth.OutcomeAllowed {
				return fmt.Errorf("outcome %s", res.Outcome)
			}
			a.token.Store(&res.AccessToken)
			return nil
		}},
		{"authenticate", func(r *rand.Rand) error {
			tok := pick(r).token.Load()
			if tok == nil {
				return nil
			}
			_, err := engine.Authenticate(ctx, *tok)
			return err
		}},
		{"challenge", func(r *rand.Rand) error {
			a := pick(r)
			res, err := engine.Login(requestContext(travelUA, a.ip), a.email)
			if err != nil {
				return err
			}
			if res.Outcome != ctxAuth.OutcomeChallengePending {
				return fmt.Errorf("outcome %s", res.Outcome)
			}
			return nil
		}},
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "phase\tops\tfailed\ttotal\tops/s\tp50\tp95\tp99")
	for _, p := range phases {
		s := runPhase(ops, concurrency, p.fn)
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%.0f\t%s\t%s\t%s\n", p.name, s.ops, s.failures,
			s.elapsed.Round(time.Millisecond), s.throughput(),
			s.p50.Round(time.Microsecond), s.p95.Round(time.Microsecond), s.p99.Round(time.Microsecond))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "challenge mails sent: %d\n", mailed.Load())
	return nil
}

func connect(addr string, out io.Writer) (redis.UniversalClient, func(), error) {
	if addr != "" {
		c := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Fprintf(out, "redis at %s\n", addr)
		return c, func() { _ = c.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	c := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Fprintf(out, "miniredis at %s\n", mr.Addr())
	return c, func() {
		_ = c.Close()
		mr.Close()
	}, nil
}

// seed creates n verified users, each with a trusted home context.
func seed(ctx context.Context, trust *stores.TrustStore, dir *memdir.Directory, n int) ([]account, error) {
	accounts := make([]account, n)
	now := time.Now()
	for i := range accounts {
		id := fmt.Sprintf("u-%d", i)
		a := &accounts[i]
		a.email = fmt.Sprintf("user-%d@loadtest.local", i)
		a.ip = fmt.Sprintf("10.%d.%d.1", (i>>8)&0xFF, i&0xFF)
		dir.Put(ctxAuth.UserRecord{ID: id, Email: a.email, EmailVerified: true})

		fp := ctxAuth.FingerprintFromContext(requestContext(homeUA, a.ip))
		if _, err := trust.RegisterPrimary(ctx, id, fp, now); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

func requestContext(ua, ip string) context.Context {
	return ctxAuth.WithClientIP(ctxAuth.WithUserAgent(context.Background(), ua), ip)
}

type phaseStats struct {
	elapsed       time.Duration
	ops           int
	failures      int64
	p50, p95, p99 time.Duration
}

func (s phaseStats) throughput() float64 {
	if s.elapsed <= 0 {
		return 0
	}
	return float64(s.ops) / s.elapsed.Seconds()
}

// runPhase spreads ops calls of fn over workers. Each worker keeps its own
// samples; they are merged once all workers finish.
func runPhase(ops, workers int, fn func(*rand.Rand) error) phaseStats {
	var (
		next     atomic.Int64
		failures atomic.Int64
		wg       sync.WaitGroup
	)
	perWorker := make([][]time.Duration, workers)

	start := time.Now()
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(start.UnixNano() + int64(w)*7919))
			for next.Add(1) <= int64(ops) {
				t0 := time.Now()
				if err := fn(r); err != nil {
					failures.Add(1)
				}
				perWorker[w] = append(perWorker[w], time.Since(t0))
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	samples := slices.Concat(perWorker...)
	slices.Sort(samples)
	return phaseStats{
		elapsed:  elapsed,
		ops:      len(samples),
		failures: failures.Load(),
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
	}
}

// percentile reads the nearest-rank value from sorted samples.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	p = min(max(p, 0), 100)
	return sorted[(len(sorted)-1)*p/100]
}
