package main

import "github.com/mento-protocol/oracle-v2-playground/internal/cli"

func main() {
	cli.Execute()
}
