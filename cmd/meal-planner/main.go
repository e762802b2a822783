package main

import (
	"log"

	_ "go.uber.org/automaxprocs"

	"meal-plan-coordinator/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
