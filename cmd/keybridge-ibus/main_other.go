//go:build !linux

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "keybridge-ibus: IBus is only available on Linux; try keybridge-term")
	os.Exit(1)
}
