package main

import "github.com/veilmarkets/market-engine/internal/cli"

func main() {
	cli.Execute()
}
