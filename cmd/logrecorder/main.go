package main

import (
	"os"

	"github.com/clarabennett2626/logrecorder/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
