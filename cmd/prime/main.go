package main

import "github.com/BoostryJP/ibet-Prime-sub007/internal/cli"

func main() {
	cli.Execute()
}
