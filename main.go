package main

import (
	"os"

	"pianomirror/cli"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)

	// errors are printed by the console package before they get here
	os.Exit(cli.ExitCode(cli.Execute()))
}
