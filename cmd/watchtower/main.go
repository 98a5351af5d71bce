package main

import "github.com/upfleet/watchtower/internal/cli"

func main() {
	cli.Execute()
}
