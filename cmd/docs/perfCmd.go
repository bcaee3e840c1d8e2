package docs

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/ops"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for dDoc servers",
		Long:    "Benchmarks round trips of common operations against a running dDoc server. Every test works on its own collection in the perf database, which is dropped afterwards.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfDatabase        = "__ddoc_perf"
	perfLargeDocumentKB = 100
	perfNumThreads      = 10
	perfDocumentSpread  = 100
	perfSkip            = make([]string, 0)
	perfCleanupTimeout  = 30 * time.Second
)

// perfTest is one benchmark, run calls the server once for the i-th iteration
type perfTest struct {
	name string
	// seed inserts perfDocumentSpread documents before the benchmark
	seed bool
	run  func(collection string, i int) error
}

// perfTests returns the benchmarks in the order they run
func perfTests() []perfTest {
	return []perfTest{
		{name: "insert", run: benchInsert(false)},
		{name: "insert-large", run: benchInsert(true)},
		{name: "find", seed: true, run: benchFind},
		{name: "count", seed: true, run: benchCount},
		{name: "update", seed: true, run: benchUpdate},
		{name: "mixed", seed: true, run: benchMixed},
	}
}

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. insert,count)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-document-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the documents of the insert-large test should be (in KB)"))
	key = "documents"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different documents the tests work on"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeDocumentKB = viper.GetInt("large-document-size")
	perfDocumentSpread  = max(1, viper.GetInt("documents"))
	perfNumThreads      = viper.GetInt("threads")
	perfSkip            = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(cmd *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for dDoc servers")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	// a failing ping makes every benchmark pointless
	if _, err := rpcClient.Call(cmd.Context(), ops.OpPing, nil); err != nil {
		return fmt.Errorf("server is not ready: %w", err)
	}

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	for _, test := range perfTests() {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(test.name) {
				return
			}

			collection := "perf-" + test.name
			b.Cleanup(func() { dropCollection(test.name, collection) })
			if test.seed {
				seed(test.name, collection)
			}

			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					if err := test.run(collection, counter); err != nil {
						log.Printf("(%s) - error: %v\n", test.name, err)
					}
					counter++
				}
			})
		})

		results[test.name] = result
		printResult(test.name, result)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %w", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

func benchInsert(large bool) func(string, int) error {
	var payload string
	if large {
		payload = strings.Repeat("x", perfLargeDocumentKB*1024)
	}
	return func(collection string, i int) error {
		document := util.Params{"n": i % perfDocumentSpread}
		if large {
			document["payload"] = payload
		}
		return call(ops.OpInsertDocument, util.Params{"db": perfDatabase, "collection": collection, "document": document})
	}
}

func benchFind(collection string, i int) error {
	return call(ops.OpFindDocument, util.Params{"db": perfDatabase, "collection": collection,
		"query": util.Params{"n": i % perfDocumentSpread}})
}

func benchCount(collection string, i int) error {
	return call(ops.OpCountDocuments, util.Params{"db": perfDatabase, "collection": collection,
		"query": util.Params{"n": util.Params{"$lt": i % perfDocumentSpread}}})
}

func benchUpdate(collection string, i int) error {
	return call(ops.OpUpdateDocument, util.Params{"db": perfDatabase, "collection": collection,
		"filter": util.Params{"n": i % perfDocumentSpread},
		"update": util.Params{"$inc": util.Params{"hits": 1}}})
}

func benchMixed(collection string, i int) error {
	switch i % 4 {
	case 0:
		return benchInsert(false)(collection, i)
	case 1:
		return benchFind(collection, i)
	case 2:
		return benchCount(collection, i)
	default:
		return benchUpdate(collection, i)
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func call(op string, params util.Params) error {
	_, err := rpcClient.Call(context.Background(), op, params)
	return err
}

func seed(test, collection string) {
	documents := make([]util.Params, perfDocumentSpread)
	for i := range documents {
		documents[i] = util.Params{"n": i}
	}
	if err := call(ops.OpInsertDocuments, util.Params{"db": perfDatabase, "collection": collection, "documents": documents}); err != nil {
		log.Printf("(%s) - error seeding documents: %v\n", test, err)
	}
}

func dropCollection(test, collection string) {
	ctx, cancel := context.WithTimeout(context.Background(), perfCleanupTimeout)
	defer cancel()
	if _, err := rpcClient.Call(ctx, ops.OpDropCollection, util.Params{"db": perfDatabase, "collection": collection}); err != nil {
		log.Printf("(%s) - error dropping collection: %v\n", test, err)
	}
}

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "ConnectionsPerEndpoint",
		"Serializer", "Transport",
		"Threads", "LargeDocumentSizeKB", "Documents",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for test, result := range results {
		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.NsPerOp() != 0 {
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
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeDocumentKB),
			strconv.Itoa(perfDocumentSpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %w", test, err)
		}
	}

	return nil
}
