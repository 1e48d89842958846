package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/eKV/cmd/util"
	"github.com/ValentinKolb/eKV/rpc/client"
	"github.com/ValentinKolb/eKV/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for eKV servers",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfPipelineDepth    = 100
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "pipeline-depth"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many commands each pipelined batch carries"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfPipelineDepth = viper.GetInt("pipeline-depth")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for eKV servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	runBenchmark := func(name string, op func(c *client.Client, counter int)) {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(name) {
				return
			}

			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			// each worker gets its own connection so the benchmark
			// exercises the server's multiplexing, not the client's mutex
			b.RunParallel(func(pb *testing.PB) {
				c, err := client.New(*util.GetClientConfig())
				if err != nil {
					log.Printf("(%s) - error creating client: %v\n", name, err)
					return
				}
				defer c.Close()

				counter := 0
				for pb.Next() {
					op(c, counter)
					counter++
				}
			})
		})

		results[name] = result
		printResult(name, result)
	}

	getKey, iter := getKeys("perf")

	// preload the key spread so read benchmarks hit existing keys
	iter(func(k string) {
		if err := rpcClient.Set(k, []byte("test")); err != nil {
			log.Printf("(setup) - error setting key: %v\n", err)
		}
	})
	defer iter(func(k string) {
		if _, err := rpcClient.Delete(k); err != nil {
			log.Printf("(cleanup) - error deleting key: %v\n", err)
		}
	})

	runBenchmark("set", func(c *client.Client, counter int) {
		if err := c.Set(getKey(counter), []byte("test")); err != nil {
			log.Printf("(set) - error setting key: %v\n", err)
		}
	})

	largeValue := make([]byte, perfLargeValueSizeKB*1024)
	runBenchmark("set-large", func(c *client.Client, counter int) {
		if err := c.Set(getKey(counter), largeValue); err != nil {
			log.Printf("(set-large) - error setting key: %v\n", err)
		}
	})

	runBenchmark("get", func(c *client.Client, counter int) {
		if _, _, err := c.Get(getKey(counter)); err != nil {
			log.Printf("(get) - error getting key: %v\n", err)
		}
	})

	runBenchmark("has", func(c *client.Client, counter int) {
		if _, err := c.Has(getKey(counter)); err != nil {
			log.Printf("(has) - error checking key: %v\n", err)
		}
	})

	runBenchmark("has-not", func(c *client.Client, counter int) {
		key := fmt.Sprintf("%s/has-not-%d", perfKeyPrefix, counter%perfKeySpread)
		if _, err := c.Has(key); err != nil {
			log.Printf("(has-not) - error checking key: %v\n", err)
		}
	})

	runBenchmark("mixed", func(c *client.Client, counter int) {
		key := getKey(counter)
		var err error
		switch counter % 4 {
		case 0: // set
			err = c.Set(key, []byte("test"))
		case 1: // get
			_, _, err = c.Get(key)
		case 2: // has
			_, err = c.Has(key)
		case 3: // ping
			_, err = c.Ping("")
		}
		if err != nil {
			log.Printf("(mixed) - error performing operation (%d): %v\n", counter%4, err)
		}
	})

	// one op here is a whole batch, the printed ns/op reflects that
	pipelineBatch := make([][]string, perfPipelineDepth)
	for i := range pipelineBatch {
		pipelineBatch[i] = []string{"set", getKey(i), "test"}
	}
	runBenchmark("pipeline", func(c *client.Client, counter int) {
		if _, err := c.Pipeline(pipelineBatch); err != nil {
			log.Printf("(pipeline) - error running batch: %v\n", err)
		}
	})

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount",
		"Threads", "LargeValueSizeKB", "Keys Count", "Pipeline Depth",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
			nsPerOp = 0
			opsPerSec = 0
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfPipelineDepth),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
