package main

import "depmend/internal/cli"

func main() {
	cli.Execute()
}
