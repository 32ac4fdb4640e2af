package main

import "github.com/RichardoC/padchat/internal/cli"

func main() {
	cli.Execute()
}
