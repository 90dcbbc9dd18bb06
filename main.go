package main

import (
	"os"

	"github.com/cameroncuttingedge/tic_tac_toe_lobby/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
