package main

import "crewflow/internal/cli"

func main() {
	cli.Execute()
}
