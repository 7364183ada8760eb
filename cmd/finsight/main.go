package main

import (
	"os"

	"finsight/cmd/finsight/cmd"

	"github.com/joho/godotenv"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// A missing .env is fine; FINSIGHT_* variables may come from the environment
	_ = godotenv.Load()

	cmd.SetVersionInfo(version, commit, date)

	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.NewCLIErrorHandler().HandleError(err))
	}
}
