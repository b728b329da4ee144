package main

import "github.com/verenigingen/boekhouden-import/internal/cli"

func main() {
	cli.Execute()
}
