// Command dreamer trains and evaluates a Dreamer agent on the
// Cartpole environment under configurable observability modes.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
