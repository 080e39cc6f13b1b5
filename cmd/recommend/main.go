package main

import "github.com/natserract/recommend/internal/cli"

func main() {
	cli.Execute()
}
