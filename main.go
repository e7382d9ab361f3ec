package main

import "eventide/cli"

func main() {
	cli.Execute()
}
