package main

import "github.com/relaymint/tokend/internal/cli"

func main() {
	cli.Execute()
}
