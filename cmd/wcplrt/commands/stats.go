// Copyright 2024 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/false-schemers/wcpl-sub001/crt"
	"github.com/false-schemers/wcpl-sub001/format"
	"github.com/false-schemers/wcpl-sub001/malloc"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Run an allocation workload and print heap metrics",
	Long: `Allocate, resize and free a batch of blocks, then print a heap
summary followed by the runtime metrics in Prometheus text format.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

var (
	statsBlocks int
	statsMax    string
	statsKeep   int
)

func init() {
	statsCmd.Flags().IntVar(&statsBlocks, "blocks", 256, "number of blocks to allocate")
	statsCmd.Flags().StringVar(&statsMax, "max-size", "8KiB", "largest block size")
	statsCmd.Flags().IntVar(&statsKeep, "keep", 4, "keep every n-th block allocated")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	maxSize, err := humanize.ParseBytes(statsMax)
	if err != nil {
		return fmt.Errorf("--max-size: %w", err)
	}
	if maxSize == 0 || maxSize > malloc.MaxAlloc {
		return fmt.Errorf("--max-size out of range: %s", statsMax)
	}
	if statsBlocks < 0 || statsKeep <= 0 {
		return fmt.Errorf("--blocks and --keep must be positive")
	}
	return withRuntime(func(rt *crt.Runtime) error {
		if err := workload(rt, statsBlocks, int(maxSize), statsKeep); err != nil {
			return err
		}
		if err := printSummary(rt); err != nil {
			return err
		}
		reg := prometheus.NewRegistry()
		if err := reg.Register(crt.NewCollector(rt, "wcplrt")); err != nil {
			return err
		}
		return writeMetrics(rt.Streams().Stdout(), reg)
	})
}

// workload allocates n blocks of sizes cycling up to maxSize, grows every
// other one and frees all but every keep-th block.
func workload(rt *crt.Runtime, n, maxSize, keep int) error {
	ptrs := make([]malloc.Ptr, 0, n)
	size := 1
	for i := 0; i < n; i++ {
		p := rt.Malloc(size)
		if p == malloc.Null {
			return fmt.Errorf("allocation %d of %s failed", i, humanize.IBytes(uint64(size)))
		}
		if i%2 == 1 {
			if q := rt.Realloc(p, size+size/2+1); q != malloc.Null {
				p = q
			}
		}
		ptrs = append(ptrs, p)
		size = size*3 + 1
		if size > maxSize {
			size = size%maxSize + 1
		}
	}
	for i, p := range ptrs {
		if i%keep != 0 {
			rt.Free(p)
		}
	}
	return nil
}

func printSummary(rt *crt.Runtime) error {
	st := rt.Heap().Stats()
	_, err := rt.Printf("# heap: %d blocks, %s in use, %s free, %s footprint, %d grows\n",
		format.Int(int64(st.Blocks)),
		format.Str(humanize.IBytes(uint64(st.InUse))),
		format.Str(humanize.IBytes(uint64(st.Free))),
		format.Str(humanize.IBytes(uint64(st.Footprint))),
		format.Int(int64(st.Grows)))
	if err != nil {
		return err
	}
	if st.Footprint > 0 {
		_, err = rt.Printf("# utilization: %.1f%%\n", format.Float(100*float64(st.InUse)/float64(st.Footprint)))
	}
	return err
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
