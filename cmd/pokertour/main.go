package main

import "github.com/pfrederiksen/pokertour/internal/cli"

func main() {
	cli.Execute()
}
