// Package main provides the ezcd-admin CLI tool for the ezcd admin API.
package main

import (
	"os"

	"github.com/ezbox-project/go-ezcfg/cmd/ezcd-admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
