package cmd

import (
	"flag"
	"io"
	"log"
	"time"

	"github.com/halcyonfs/braid/erasure"
	"github.com/halcyonfs/braid/util"
)

var (
	BenchCmd   = flag.NewFlagSet("bench", flag.ExitOnError)
	bShards    = BenchCmd.Int("shards", 5, "total number of shards")
	bRequired  = BenchCmd.Int("required", 3, "number of shards required for recovery")
	bWordSize  = BenchCmd.Int("word-size", 8, "erasure lane width in bytes")
	bInputSize = BenchCmd.Int64("input-size", 10*1024*1024, "size of the random input")
)

// RunBenchCmd measures raw erasure-encode throughput, without encryption or
// transport in the way.
func RunBenchCmd() int {
	log.Printf("Running benchmark with %d shards, %d required, word size %d",
		*bShards, *bRequired, *bWordSize)

	coder, err := erasure.New(*bShards, *bRequired, *bWordSize)
	if err != nil {
		log.Fatalln("Failed to create coder:", err)
	}

	input := &util.RandomReader{Size: *bInputSize}
	writers := make([]io.Writer, *bShards)
	for i := range writers {
		writers[i] = io.Discard
	}

	start := time.Now()
	n, err := coder.Encode(input, writers)
	if err != nil {
		log.Fatalln("Encode failed:", err)
	}
	elapsed := time.Since(start)

	mbps := float64(n) / (1 << 20) / elapsed.Seconds()
	log.Printf("Encoded %d bytes in %s (%.2f MiB/s)", n, elapsed, mbps)
	return 0
}
