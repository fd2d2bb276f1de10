package main

import (
	"github.com/robotalks/bms.go/pkg/cli/sh"

	_ "github.com/robotalks/bms.go/pkg/cli/cmds/bms"
)

//go-build: CGO_ENABLED=0

func init() {
	sh.SetupFlags()
}

func main() {
	sh.Main()
}
