// Package main is the entry point for the partcache application
package main

import (
	"github.com/ethpandaops/partcache/cmd"
)

func main() {
	cmd.Execute()
}
