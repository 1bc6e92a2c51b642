package main

import (
	"log"
	"os"

	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Printf("bench: %v", err)
		os.Exit(1)
	}
}
