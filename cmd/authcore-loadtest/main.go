// Command authcore-loadtest drives the Redis account store with concurrent
// lookups and refresh-token rotations and reports latency percentiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/store/redisstore"
)

type accountState struct {
	id      string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		accounts    = flag.Int("accounts", 10000, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase")
		rounds      = flag.Int("race-rounds", 200, "rounds of the same-token rotation race")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "loadtest", "key prefix")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 || *rounds < 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	store := redisstore.New(client, *prefix)

	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	states, err := seed(ctx, store, *accounts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	lookupStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		_, err := store.FindByID(ctx, states[r.Intn(len(states))].id)
		return err
	})
	rotateStats := runPhase(*ops, *concurrency, func(r *rand.Rand, i int) error {
		return rotate(ctx, store, &states[r.Intn(len(states))], i)
	})
	winners, err := race(ctx, store, *rounds, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "race failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("---- results ----")
	printStats("lookup", lookupStats)
	printStats("rotate", rotateStats)
	fmt.Printf("race: rounds=%d winners=%d\n", *rounds, winners)
	if winners != *rounds {
		fmt.Fprintln(os.Stderr, "rotation race produced more than one winner per round")
		os.Exit(1)
	}
}

func seed(ctx context.Context, store *redisstore.Store, n int) ([]accountState, error) {
	states := make([]accountState, n)
	for i := range states {
		a, err := store.Create(ctx, account.CreateInput{
			FirstName:    "Load",
			LastName:     fmt.Sprintf("Test %d", i),
			Email:        fmt.Sprintf("load-%d@example.com", i),
			PasswordHash: "unused",
		})
		if err != nil {
			return nil, err
		}
		refresh := internal.DigestToken(fmt.Sprintf("seed-%d", i))
		if err := store.SetRefreshToken(ctx, a.ID, refresh); err != nil {
			return nil, err
		}
		states[i].id = a.ID
		states[i].refresh = refresh
	}
	return states, nil
}

func rotate(ctx context.Context, store *redisstore.Store, state *accountState, i int) error {
	state.mu.Lock()
	defer state.mu.Unlock()

	next := internal.DigestToken(fmt.Sprintf("%s-%d", state.refresh, i))
	ok, err := store.RotateRefreshTokenIfMatches(ctx, state.id, state.refresh, next)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("rotation of %s lost its expected token", state.id)
	}
	state.refresh = next
	return nil
}

// race has every worker rotate the same account from the same expected
// token and counts how many rotations the store accepted.
func race(ctx context.Context, store *redisstore.Store, rounds, concurrency int) (int, error) {
	a, err := store.Create(ctx, account.CreateInput{FirstName: "Race", Email: "race@example.com", PasswordHash: "unused"})
	if err != nil {
		return 0, err
	}
	current := internal.DigestToken("race-0")
	if err := store.SetRefreshToken(ctx, a.ID, current); err != nil {
		return 0, err
	}

	var winners int64
	for round := 0; round < rounds; round++ {
		var (
			wg     sync.WaitGroup
			winner atomic.Value
		)
		for w := 0; w < concurrency; w++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				next := internal.DigestToken(fmt.Sprintf("race-%d-%d", round, worker))
				ok, err := store.RotateRefreshTokenIfMatches(ctx, a.ID, current, next)
				if err == nil && ok {
					atomic.AddInt64(&winners, 1)
					winner.Store(next)
				}
			}(w)
		}
		wg.Wait()

		next, ok := winner.Load().(string)
		if !ok {
			return int(winners), fmt.Errorf("round %d had no winner", round)
		}
		current = next
	}
	return int(winners), nil
}

func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
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
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
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
