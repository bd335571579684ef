// The main package for the autoria-crawler executable.
package main

import (
	"fmt"
	"os"

	"github.com/autoria-tools/crawler/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "autoria-crawler:", err)
		os.Exit(1)
	}
}
