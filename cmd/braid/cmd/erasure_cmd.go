package cmd

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/mitchellh/ioprogress"

	"github.com/halcyonfs/braid/erasure"
)

var (
	ErasureCmd   = flag.NewFlagSet("erasure", flag.ExitOnError)
	erInputFile  = ErasureCmd.String("input", "", "path to the input file (encode mode)")
	erOutputFile = ErasureCmd.String("output", "", "path to the output file (decode mode)")
	erShards     = ErasureCmd.Int("shards", 5, "total number of shards")
	erRequired   = ErasureCmd.Int("required", 3, "number of shards required for recovery")
	erWordSize   = ErasureCmd.Int("word-size", 8, "erasure lane width in bytes")
)

// RunErasureCmd splits a local file into shard files, or joins shard files
// back together. Useful for poking at the coder without any buckets.
func RunErasureCmd() int {
	isInput := *erInputFile != ""
	isOutput := *erOutputFile != ""
	if isInput == isOutput {
		log.Fatalln("You must specify either -input or -output.")
	}

	coder, err := erasure.New(*erShards, *erRequired, *erWordSize)
	if err != nil {
		log.Fatalln("Failed to create coder:", err)
	}

	fileName := *erInputFile
	if isOutput {
		fileName = *erOutputFile
	}
	shardNames := make([]string, *erShards)
	for i := range shardNames {
		shardNames[i] = fileName + ".shard" + strconv.Itoa(i)
	}

	if isInput {
		file, err := os.Open(fileName)
		if err != nil {
			log.Fatalln("Failed to open file:", err)
		}
		defer file.Close()

		stat, err := file.Stat()
		if err != nil {
			log.Fatalln("Failed to stat file:", err)
		}
		progress := &ioprogress.Reader{
			Reader:   file,
			Size:     stat.Size(),
			DrawFunc: ioprogress.DrawTerminal(os.Stderr),
		}

		writers := make([]io.Writer, *erShards)
		for i, name := range shardNames {
			shardFile, err := os.Create(name)
			if err != nil {
				log.Fatalf("Failed to create shard %d: %s\n", i, err)
			}
			defer shardFile.Close()
			writers[i] = shardFile
		}

		log.Println("Encoding file...")
		n, err := coder.Encode(progress, writers)
		if err != nil {
			log.Fatalln("Failed to encode file:", err)
		}
		log.Printf("Encoded %d bytes into %d shards of %d bytes each\n",
			n, *erShards, coder.EncodedShardSize(n))
	} else {
		outputFile, err := os.Create(fileName)
		if err != nil {
			log.Fatalln("Failed to open output file:", err)
		}
		defer outputFile.Close()

		// Use the first K shard files that exist; the rest are the
		// excluded set.
		var readers []io.Reader
		var excluded []int
		for i, name := range shardNames {
			if len(readers) == *erRequired {
				excluded = append(excluded, i)
				continue
			}
			shardFile, err := os.Open(name)
			if err != nil {
				fmt.Printf("Shard %d unavailable, excluding: %s\n", i, err)
				excluded = append(excluded, i)
				continue
			}
			defer shardFile.Close()
			readers = append(readers, shardFile)
		}
		if len(readers) < *erRequired {
			log.Fatalf("Need %d shards, found only %d\n", *erRequired, len(readers))
		}

		log.Println("Decoding file...")
		n, err := coder.Decode(readers, excluded, outputFile)
		if err != nil {
			log.Fatalln("Failed to decode file:", err)
		}
		log.Printf("Decoded %d bytes\n", n)
	}

	log.Println("Done.")
	return 0
}
