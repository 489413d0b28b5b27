package main

import (
	"fmt"
	"os"

	"github.com/cellmapper/coembed"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(coembed.ExitStatus(err))
	}
}
