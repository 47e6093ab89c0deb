package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"colloc-agent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.WithError(err).Error("Failed to execute command")
		os.Exit(1)
	}
}
