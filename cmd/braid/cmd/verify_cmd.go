package cmd

import (
	"flag"
	"log"

	"github.com/halcyonfs/braid"
)

var (
	VerifyCmd     = flag.NewFlagSet("verify", flag.ExitOnError)
	verConfigPath = VerifyCmd.String("config", "braid.yaml", "path to the bucket config")
	verManifest   = VerifyCmd.String("manifest", "", "path to the manifest")
)

func RunVerifyCmd() int {
	if *verManifest == "" {
		log.Fatalln("You must specify -manifest.")
	}

	opts, err := loadOptions(*verConfigPath)
	if err != nil {
		log.Fatalln("Failed to load config:", err)
	}

	stored, err := loadManifest(*verManifest)
	if err != nil {
		log.Fatalln("Failed to load manifest:", err)
	}

	downloader, err := braid.NewDownloader(opts)
	if err != nil {
		log.Fatalln("Failed to create downloader:", err)
	}

	result, walkErr := downloader.VerifyFile(stored)
	for i, cr := range result.ByChunk {
		status := "ok"
		if !cr.PayloadOK {
			status = "DAMAGED"
		}
		log.Printf("chunk %d  %s  %s", i, cr.Name, status)
	}
	if walkErr != nil {
		log.Fatalln("Verification stopped:", walkErr)
	}
	if !result.AllGood {
		log.Fatalln("File is damaged.")
	}

	log.Printf("All %d chunks verified.", result.ChunkCount)
	return 0
}
