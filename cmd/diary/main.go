// Package main is the entrypoint of the diary CLI.
package main

import (
	"github.com/huangsam/digitaldiary/cmd"
	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/huangsam/digitaldiary/internal/iocache"
)

func main() {
	cmd.SetCacheManager(iocache.Manager)

	err := cmd.Execute()
	iocache.CloseCaching()
	if perr := cmd.StopProfiling(); perr != nil {
		contract.LogWarn("Failed to stop profiling", perr)
	}
	if err != nil {
		contract.LogFatal("Command failed", err)
	}
}
