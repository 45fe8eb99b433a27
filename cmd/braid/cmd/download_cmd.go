package cmd

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/halcyonfs/braid"
	"github.com/halcyonfs/braid/manifest"
)

var (
	DownloadCmd    = flag.NewFlagSet("download", flag.ExitOnError)
	downConfigPath = DownloadCmd.String("config", "braid.yaml", "path to the bucket config")
	downManifest   = DownloadCmd.String("manifest", "", "path to the manifest")
	downOutputFile = DownloadCmd.String("output", "", "path to write the file to")
)

// downloadWaiter prints progress and waits for the terminal Close.
type downloadWaiter struct {
	err  error
	done chan struct{}
}

func (w *downloadWaiter) Update(pct int) {
	fmt.Printf("\r%3d%%", pct)
}

func (w *downloadWaiter) Close(err error) {
	fmt.Println("")
	w.err = err
	close(w.done)
}

func loadManifest(path string) (*manifest.StoredFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return manifest.Load(f)
}

func RunDownloadCmd() int {
	if *downManifest == "" || *downOutputFile == "" {
		log.Fatalln("You must specify -manifest and -output.")
	}

	opts, err := loadOptions(*downConfigPath)
	if err != nil {
		log.Fatalln("Failed to load config:", err)
	}

	stored, err := loadManifest(*downManifest)
	if err != nil {
		log.Fatalln("Failed to load manifest:", err)
	}

	out, err := os.Create(*downOutputFile)
	if err != nil {
		log.Fatalln("Failed to create output file:", err)
	}
	defer out.Close()

	downloader, err := braid.NewDownloader(opts)
	if err != nil {
		log.Fatalln("Failed to create downloader:", err)
	}
	if err := downloader.Start(); err != nil {
		log.Fatalln("Failed to start downloader:", err)
	}
	defer downloader.Stop(braid.StopDrain)

	log.Printf("Downloading %d chunks into %s...", stored.ChunkCount, *downOutputFile)
	waiter := &downloadWaiter{done: make(chan struct{})}
	if err := downloader.DownloadFile(stored, out, waiter); err != nil {
		log.Fatalln("Failed to queue download:", err)
	}
	<-waiter.done
	if waiter.err != nil {
		log.Fatalln("Download failed:", waiter.err)
	}

	log.Println("Done.")
	return 0
}
