package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/bpicori/etmctl/internal/cli"
	"github.com/bpicori/etmctl/internal/log"
	"github.com/bpicori/etmctl/pkg/etm"
)

func main() {
	var showHelp bool
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = printUsage
	flag.Parse()

	if showHelp {
		printUsage()
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(2)
	}

	switch args[0] {
	case "probe":
		os.Exit(cli.ProbeCmd(args[1:]))
	case "record":
		os.Exit(cli.RecordCmd(args[1:]))
	case "process":
		os.Exit(cli.ProcessCmd(args[1:]))
	case etm.InternalInjectCommand:
		exitCode, err := etm.RunInternalInject()
		if err != nil {
			log.Error("internal inject failed", "error", err)
			os.Exit(1)
		}
		os.Exit(exitCode)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `etmctl - ARM ETM trace capture through simpleperf

Usage:
  etmctl <command> [options]

Commands:
  probe     Report ETM driver and device availability
  record    Capture an ETM trace
  process   Convert an ETM trace into a profile
  help      Show this help message

Run "etmctl <command> -h" for details on a command.
`)
}
