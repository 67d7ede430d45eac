//go:build !test

package main

import (
	"log"

	"github.com/cs2hvh/cryptocloud/cmd/cryptocloudd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatalf("cryptocloudd: %v", err)
	}
}
