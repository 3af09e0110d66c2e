package main

import (
	"os"

	"github.com/flexosm/flex2pg/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
