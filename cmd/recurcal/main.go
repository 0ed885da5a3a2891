package main

import "recurcal/internal/cli"

func main() {
	cli.Execute()
}
