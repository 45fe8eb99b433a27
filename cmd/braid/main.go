package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/halcyonfs/braid/cmd/braid/cmd"
)

var subcommands = map[string]*flag.FlagSet{
	cmd.UploadCmd.Name():   cmd.UploadCmd,
	cmd.DownloadCmd.Name(): cmd.DownloadCmd,
	cmd.VerifyCmd.Name():   cmd.VerifyCmd,
	cmd.ErasureCmd.Name():  cmd.ErasureCmd,
	cmd.BenchCmd.Name():    cmd.BenchCmd,
}

func run() int {
	subcommandNames := []string{}
	for name := range subcommands {
		subcommandNames = append(subcommandNames, name)
	}

	if len(os.Args) < 2 {
		log.Fatalf("You must specify a subcommand. Valid subcommands are: %s\n", strings.Join(subcommandNames, ", "))
	}

	command := subcommands[os.Args[1]]
	if command == nil {
		log.Fatalf("unknown subcommand '%s'. Available commands are: %s\n", os.Args[1], strings.Join(subcommandNames, ", "))
	}

	command.Parse(os.Args[2:])

	switch command.Name() {
	case cmd.UploadCmd.Name():
		return cmd.RunUploadCmd()
	case cmd.DownloadCmd.Name():
		return cmd.RunDownloadCmd()
	case cmd.VerifyCmd.Name():
		return cmd.RunVerifyCmd()
	case cmd.ErasureCmd.Name():
		return cmd.RunErasureCmd()
	case cmd.BenchCmd.Name():
		return cmd.RunBenchCmd()
	}

	return 0
}

func main() {
	os.Exit(run())
}
