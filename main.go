package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/msomdec/tagbatch/cmd"
)

const version = "0.1.0"

func main() {
	root := cmd.NewRootCmd()
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
