package main

import "github.com/scriptward/scriptward/internal/cli"

func main() {
	cli.Execute()
}
