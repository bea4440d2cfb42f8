package main

import "clustermatch/internal/cli"

func main() {
	cli.Execute()
}
