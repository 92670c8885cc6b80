// cmd/bench/throughput/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	alog "github.com/lesismal/arpc/log"

	"github.com/DeltaLaboratory/bkv/internal/client"
	"github.com/DeltaLaboratory/bkv/internal/executor"
	"github.com/DeltaLaboratory/bkv/internal/protocol"
	"github.com/DeltaLaboratory/bkv/internal/scheduler"
)

type Config struct {
	Addrs       string
	NumKeys     int
	Concurrency int
	ValueSize   int
	BatchSize   int
	WriteRatio  float64
	ExistsRatio float64
	Duration    time.Duration
}

type Metrics struct {
	totalBatches  int64
	failedBatches int64
	totalKeys     int64
	failedKeys    int64
	readLatency   int64 // in microseconds
	writeLatency  int64
	existsLatency int64
	readBatches   int64
	writeBatches  int64
	existsBatches int64
	duration      time.Duration
}

func main() {
	alog.Output = io.Discard

	cfg := parseFlags()

	c, err := client.New(context.Background(), strings.Split(cfg.Addrs, ","), client.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer c.Close(false)

	keys := generateKeys(cfg.NumKeys)
	values := generateValues(cfg.NumKeys, cfg.ValueSize)

	// Preload so reads have something to find.
	if err := preload(c, cfg, keys, values); err != nil {
		log.Fatalf("Failed to preload keys: %v", err)
	}

	metrics := runBenchmark(c, cfg, keys, values)
	printResults(metrics, cfg)
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Addrs, "addr", "localhost:8000", "Comma-separated bootstrap addresses")
	flag.IntVar(&cfg.NumKeys, "n", 100000, "Size of the key space")
	flag.IntVar(&cfg.Concurrency, "c", 32, "Number of concurrent workers")
	flag.IntVar(&cfg.ValueSize, "size", 1024, "Value size in bytes")
	flag.IntVar(&cfg.BatchSize, "batch", 256, "Keys per batch operation")
	flag.Float64Var(&cfg.WriteRatio, "write-ratio", 0.2, "Ratio of write batches")
	flag.Float64Var(&cfg.ExistsRatio, "exists-ratio", 0.1, "Ratio of presence-check batches")
	flag.DurationVar(&cfg.Duration, "duration", 1*time.Minute, "Benchmark duration")

	flag.Parse()
	return cfg
}

func generateKeys(n int) [][]byte {
	keys := make([][]byte, n)
	for i := 0; i < n; i++ {
		keys[i] = []byte(fmt.Sprintf("key-%07d", i))
	}
	return keys
}

func generateValues(n, size int) [][]byte {
	values := make([][]byte, n)
	for i := 0; i < n; i++ {
		value := make([]byte, size)
		rand.Read(value)
		values[i] = value
	}
	return values
}

func preload(c *client.Client, cfg *Config, keys, values [][]byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for start := 0; start < len(keys); start += cfg.BatchSize {
		end := start + cfg.BatchSize
		if end > len(keys) {
			end = len(keys)
		}
		items := make([]protocol.Item, end-start)
		for i := range items {
			items[i] = protocol.Item{Key: keys[start+i], Value: values[start+i]}
		}
		results, err := c.SetMany(ctx, items, scheduler.Put)
		if err != nil {
			return err
		}
		for _, r := range results {
			if r.Err != nil {
				return r.Err
			}
		}
	}
	return nil
}

func runBenchmark(c *client.Client, cfg *Config, keys, values [][]byte) *Metrics {
	metrics := &Metrics{}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	startTime := time.Now()

	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go worker(ctx, c, cfg, keys, values, metrics, &wg)
	}

	// Print progress periodically
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		var lastKeys int64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				currentKeys := atomic.LoadInt64(&metrics.totalKeys)
				keysPerSec := currentKeys - lastKeys
				lastKeys = currentKeys
				log.Printf("Keys/sec: %d", keysPerSec)
			}
		}
	}()

	wg.Wait()
	metrics.duration = time.Since(startTime)
	return metrics
}

func worker(ctx context.Context, c *client.Client, cfg *Config, keys, values [][]byte, metrics *Metrics, wg *sync.WaitGroup) {
	defer wg.Done()

	for ctx.Err() == nil {
		batch := pickBatch(keys, cfg.BatchSize)
		roll := rand.Float64()

		start := time.Now()
		var results []executor.Result
		var err error

		switch {
		case roll < cfg.WriteRatio:
			items := make([]protocol.Item, len(batch))
			for i, key := range batch {
				items[i] = protocol.Item{Key: key, Value: values[rand.Intn(len(values))]}
			}
			results, err = c.SetMany(ctx, items, scheduler.Put)
			if err == nil {
				atomic.AddInt64(&metrics.writeBatches, 1)
				atomic.AddInt64(&metrics.writeLatency, time.Since(start).Microseconds())
			}

		case roll < cfg.WriteRatio+cfg.ExistsRatio:
			results, err = c.ExistsMany(ctx, batch)
			if err == nil {
				atomic.AddInt64(&metrics.existsBatches, 1)
				atomic.AddInt64(&metrics.existsLatency, time.Since(start).Microseconds())
			}

		default:
			results, err = c.GetMany(ctx, batch, scheduler.Get)
			if err == nil {
				atomic.AddInt64(&metrics.readBatches, 1)
				atomic.AddInt64(&metrics.readLatency, time.Since(start).Microseconds())
			}
		}

		atomic.AddInt64(&metrics.totalBatches, 1)
		atomic.AddInt64(&metrics.totalKeys, int64(len(batch)))
		if err != nil {
			atomic.AddInt64(&metrics.failedBatches, 1)
			atomic.AddInt64(&metrics.failedKeys, int64(len(batch)))
			continue
		}
		for _, r := range results {
			if r.Err != nil {
				atomic.AddInt64(&metrics.failedKeys, 1)
			}
		}
	}
}

func pickBatch(keys [][]byte, size int) [][]byte {
	batch := make([][]byte, size)
	for i := range batch {
		batch[i] = keys[rand.Intn(len(keys))]
	}
	return batch
}

func printResults(m *Metrics, cfg *Config) {
	fmt.Println("\nBenchmark Results:")
	fmt.Println("==================")
	fmt.Printf("Duration: %v\n", m.duration)
	fmt.Printf("Total Batches: %d\n", m.totalBatches)
	fmt.Printf("Failed Batches: %d\n", m.failedBatches)
	fmt.Printf("Total Keys: %d\n", m.totalKeys)
	fmt.Printf("Failed Keys: %d\n", m.failedKeys)
	fmt.Printf("Keys/sec: %.2f\n", float64(m.totalKeys)/m.duration.Seconds())

	if m.readBatches > 0 {
		fmt.Printf("Read Batches: %d\n", m.readBatches)
		fmt.Printf("Average Read Batch Latency: %.2f ms\n", float64(m.readLatency)/float64(m.readBatches)/1000)
	}
	if m.writeBatches > 0 {
		fmt.Printf("Write Batches: %d\n", m.writeBatches)
		fmt.Printf("Average Write Batch Latency: %.2f ms\n", float64(m.writeLatency)/float64(m.writeBatches)/1000)
	}
	if m.existsBatches > 0 {
		fmt.Printf("Exists Batches: %d\n", m.existsBatches)
		fmt.Printf("Average Exists Batch Latency: %.2f ms\n", float64(m.existsLatency)/float64(m.existsBatches)/1000)
	}

	if m.totalKeys > 0 {
		fmt.Printf("Success Rate: %.2f%%\n", float64(m.totalKeys-m.failedKeys)*100/float64(m.totalKeys))
	}
}
