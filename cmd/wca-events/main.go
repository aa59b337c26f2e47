package main

import "github.com/pfrederiksen/wca-events/internal/cli"

func main() {
	cli.Execute()
}
