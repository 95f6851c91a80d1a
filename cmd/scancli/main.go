package main

import (
	"github.com/robotalks/barscan/pkg/cli/sh"
	"github.com/robotalks/barscan/pkg/env"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
