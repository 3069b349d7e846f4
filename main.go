package main

import (
	"os"

	"github.com/CodeMonkeyCybersecurity/idlscan/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
