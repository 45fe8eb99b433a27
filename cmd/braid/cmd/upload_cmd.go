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
	UploadCmd    = flag.NewFlagSet("upload", flag.ExitOnError)
	upConfigPath = UploadCmd.String("config", "braid.yaml", "path to the bucket config")
	upInputFile  = UploadCmd.String("input", "", "path to the file to upload")
	upManifest   = UploadCmd.String("manifest", "", "path to write the manifest to")
)

// uploadWaiter prints progress and waits for the terminal Close.
type uploadWaiter struct {
	stored *manifest.StoredFile
	err    error
	done   chan struct{}
}

func (w *uploadWaiter) Update(pct int) {
	fmt.Printf("\r%3d%%", pct)
}

func (w *uploadWaiter) Close(stored *manifest.StoredFile, err error) {
	fmt.Println("")
	w.stored = stored
	w.err = err
	close(w.done)
}

func RunUploadCmd() int {
	if *upInputFile == "" || *upManifest == "" {
		log.Fatalln("You must specify -input and -manifest.")
	}

	opts, err := loadOptions(*upConfigPath)
	if err != nil {
		log.Fatalln("Failed to load config:", err)
	}

	file, err := os.Open(*upInputFile)
	if err != nil {
		log.Fatalln("Failed to open input file:", err)
	}
	defer file.Close()

	uploader, err := braid.NewUploader(opts)
	if err != nil {
		log.Fatalln("Failed to create uploader:", err)
	}
	if err := uploader.Start(); err != nil {
		log.Fatalln("Failed to start uploader:", err)
	}
	defer uploader.Stop(braid.StopDrain)

	log.Printf("Uploading %s...", *upInputFile)
	waiter := &uploadWaiter{done: make(chan struct{})}
	if err := uploader.UploadFile(file, -1, waiter); err != nil {
		log.Fatalln("Failed to queue upload:", err)
	}
	<-waiter.done
	if waiter.err != nil {
		log.Fatalln("Upload failed:", waiter.err)
	}

	out, err := os.Create(*upManifest)
	if err != nil {
		log.Fatalln("Failed to create manifest file:", err)
	}
	defer out.Close()
	if err := waiter.stored.Save(out); err != nil {
		log.Fatalln("Failed to write manifest:", err)
	}

	log.Printf("Stored %d chunks, first %s", waiter.stored.ChunkCount, waiter.stored.FirstName)
	log.Println("Done.")
	return 0
}
