package kv

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/statekit/statekit/cmd/util"
)

var (
	benchCmd = &cobra.Command{
		Use:     "bench [key]",
		Short:   "Benchmarks store operations against the configured engine",
		Args:    cobra.ExactArgs(1),
		RunE:    runBench,
		PreRunE: processBenchConfig,
	}
	benchOps  = 1000
	benchSkip = make([]string, 0)
)

func init() {
	// add flags
	key := "ops"
	benchCmd.Flags().Int(key, 1000, util.WrapString("Number of operations per benchmark"))
	key = "skip"
	benchCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "csv"
	benchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	benchOps = viper.GetInt("ops")
	benchSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runBench(_ *cobra.Command, _ []string) error {
	fmt.Printf("Benchmarking engine %q with %d ops per operation type\n\n", viper.GetString("engine"), benchOps)

	registry := metrics.NewRegistry()

	benchmarks := []struct {
		name string
		op   func(i int) error
	}{
		{"set", func(i int) error {
			return cliStore.Set(map[string]any{"n": i})
		}},
		{"get", func(int) error {
			cliStore.Get()
			return nil
		}},
		{"has", func(int) error {
			cliStore.Has()
			return nil
		}},
		{"del", func(int) error {
			return cliStore.Remove()
		}},
	}

	for _, bench := range benchmarks {
		if shouldSkip(bench.name) {
			fmt.Printf("%-10sskipped\n", bench.name)
			continue
		}

		timer := metrics.GetOrRegisterTimer(bench.name, registry)
		for i := 0; i < benchOps; i++ {
			start := time.Now()
			if err := bench.op(i); err != nil {
				return fmt.Errorf("benchmark %s failed: %w", bench.name, err)
			}
			timer.UpdateSince(start)
		}

		printResult(bench.name, timer)
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, registry); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(bench string) bool {
	// Check if the benchmark is in the skip list
	for _, skip := range benchSkip {
		if bench == skip {
			return true
		}
	}
	return false
}

// printResult prints one timer in a formatted way
func printResult(bench string, timer metrics.Timer) {
	mean := time.Duration(timer.Mean())
	p99 := time.Duration(timer.Percentile(0.99))
	opsPerSec := 0.0
	if timer.Mean() > 0 {
		opsPerSec = 1e9 / timer.Mean()
	}

	fmt.Printf("%-10smean=%-14sp99=%-14s%.0f ops/sec\n", bench, mean, p99, opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, registry metrics.Registry) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Benchmark", "Count", "MeanNs", "P50Ns", "P99Ns", "OpsPerSec",
		"Engine", "Ops",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	var writeErr error
	registry.Each(func(name string, metric any) {
		if writeErr != nil {
			return
		}
		timer, ok := metric.(metrics.Timer)
		if !ok {
			return
		}

		opsPerSec := 0.0
		if timer.Mean() > 0 {
			opsPerSec = 1e9 / timer.Mean()
		}

		row := []string{
			name,
			strconv.FormatInt(timer.Count(), 10),
			fmt.Sprintf("%.0f", timer.Mean()),
			fmt.Sprintf("%.0f", timer.Percentile(0.5)),
			fmt.Sprintf("%.0f", timer.Percentile(0.99)),
			fmt.Sprintf("%.0f", opsPerSec),
			viper.GetString("engine"),
			strconv.Itoa(benchOps),
		}
		if err := writer.Write(row); err != nil {
			writeErr = fmt.Errorf("failed to write row for benchmark %s: %v", name, err)
		}
	})

	return writeErr
}
