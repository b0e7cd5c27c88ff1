package main

import (
	"os"

	"search-analytics-node/cmd/gsc/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
