/*
	Churn load generator for a running segcask server. Writes, deletes and
	rewrites a fixed key universe so the server rolls over many segments.
*/

package main

import (
	"flag"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/0xRadioAc7iv/segcask/client"
	"github.com/0xRadioAc7iv/segcask/internal"
)

const (
	// Fixed universe
	totalKeys   = 100
	totalValues = 100

	// Per-cycle behavior
	keysPerCycleWrite  = 20
	keysPerCycleDelete = 10

	progressEvery = 500
)

type loadConfig struct {
	host        string
	port        int
	concurrency int
	cycles      int
	pause       time.Duration
}

func main() {
	var cfg loadConfig
	flag.StringVar(&cfg.host, "host", internal.DEFAULT_HOST, "segcask server host")
	flag.IntVar(&cfg.port, "port", internal.DEFAULT_PORT, "segcask server port")
	flag.IntVar(&cfg.concurrency, "workers", 6, "number of concurrent clients")
	flag.IntVar(&cfg.cycles, "cycles", 5000, "cycles per worker")
	flag.DurationVar(&cfg.pause, "pause", 10*time.Millisecond, "sleep between cycles")
	flag.Parse()

	start := time.Now()
	fmt.Println("Starting segcask churn-heavy load generator")

	keys := makeKeys(totalKeys)
	values := makeValues(totalValues)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed []error

	for i := 0; i < cfg.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := runWorker(id, cfg, keys, values); err != nil {
				mu.Lock()
				failed = append(failed, fmt.Errorf("worker %d: %w", id, err))
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()
	for _, err := range failed {
		fmt.Println(err)
	}
	fmt.Printf("Load finished in %v (%d/%d workers ok)\n", time.Since(start), cfg.concurrency-len(failed), cfg.concurrency)
}

func runWorker(id int, cfg loadConfig, keys []string, values [][]byte) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))

	c, err := client.Connect(client.WithHost(cfg.host), client.WithPort(cfg.port))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer c.Close()

	for cycle := 1; cycle <= cfg.cycles; cycle++ {

		// ---- WRITE / OVERWRITE PHASE ----
		for i := 0; i < keysPerCycleWrite; i++ {
			if err := c.Set(keys[rng.Intn(len(keys))], values[rng.Intn(len(values))]); err != nil {
				return fmt.Errorf("set: %w", err)
			}
		}

		// ---- DELETE PHASE ----
		for i := 0; i < keysPerCycleDelete; i++ {
			if err := c.Delete(keys[rng.Intn(len(keys))]); err != nil {
				return fmt.Errorf("delete: %w", err)
			}
		}

		// ---- REWRITE PHASE (leaves stale entries behind) ----
		for i := 0; i < keysPerCycleWrite/2; i++ {
			if err := c.Set(keys[rng.Intn(len(keys))], values[rng.Intn(len(values))]); err != nil {
				return fmt.Errorf("rewrite: %w", err)
			}
		}

		if cycle%progressEvery == 0 {
			fmt.Printf("[worker %d] completed %d cycles\n", id, cycle)
		}

		if cfg.pause > 0 {
			time.Sleep(cfg.pause)
		}
	}
	return nil
}

func makeKeys(n int) []string {
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = fmt.Sprintf("key-%03d", i)
	}
	return keys
}

func makeValues(n int) [][]byte {
	values := make([][]byte, n)
	for i := 0; i < n; i++ {
		values[i] = []byte(fmt.Sprintf("value-%03d-xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", i))
	}
	return values
}
