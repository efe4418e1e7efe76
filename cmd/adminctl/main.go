// Package main provides adminctl, the command line client for admin-gateway.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
