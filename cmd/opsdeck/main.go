package main

import (
	"github.com/opsdeck/opsdeck/internal/cli"
	"github.com/opsdeck/opsdeck/internal/common/logtrace"
)

// The structured logger is the process default; the CLI swaps in the
// console writer once flags are parsed.
func init() {
	logtrace.InitLogger()
}

func main() {
	cli.Execute()
}
