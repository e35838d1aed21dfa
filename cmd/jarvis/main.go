package main

import (
	"fmt"
	"os"

	"github.com/jarvishq/jarvis/internal/commands"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Jarvis — autonomous coding agent orchestrator

Usage:
  jarvis poll                      Poll labeled issues continuously
  jarvis poll-once                 Run a single poll cycle and exit
  jarvis run <issue> [owner/repo]  Process one issue immediately
  jarvis webhook                   Serve the GitHub webhook receiver
  jarvis status [issue]            Show recorded runs
  jarvis report [issue]            Print a run report or summary

Configuration is read from the environment (and .env when present).
GITHUB_TOKEN and TARGET_REPO are required for poll, run, and webhook.
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	subcmd := os.Args[1]
	rest := os.Args[2:]

	var err error
	switch subcmd {
	case "poll":
		err = commands.Poll(rest)
	case "poll-once":
		err = commands.PollOnce(rest)
	case "run":
		err = commands.Run(rest)
	case "webhook":
		err = commands.Webhook(rest)
	case "status":
		err = commands.Status(rest)
	case "report":
		err = commands.Report(rest)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", subcmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "jarvis %s: %v\n", subcmd, err)
		os.Exit(1)
	}
}
