// ymmctl runs the compatibility engine against one store from the command line.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"ymmfilter/compat-service/internal/cli"
)

func main() {
	_ = godotenv.Load()
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
