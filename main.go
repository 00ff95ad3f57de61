package main

import (
	"github.com/sirupsen/logrus"

	"github.com/ledgermart/ledgermart/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		logrus.Fatalf("Error executing command: %v", err)
	}
}
