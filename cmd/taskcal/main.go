package main

import (
	"os"

	"github.com/spf13/afero"

	appLog "taskcal/internal/log"
)

// version is set at build time.
var version = "dev"

func main() {
	root := newRootCmd(afero.NewOsFs())
	root.Version = version
	if err := root.Execute(); err != nil {
		appLog.Error("taskcal failed", err)
		os.Exit(1)
	}
}
