// Command tabcsv converts a stream of JSON objects into a CSV file, one row
// per object, reconciling key changes with the selected mode.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
