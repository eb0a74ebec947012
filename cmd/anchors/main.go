package main

import "github.com/mvp-joe/anchors-aweigh/internal/cli"

func main() {
	cli.Execute()
}
