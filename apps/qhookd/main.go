package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/quatton/qhook/apps/qhookd/cmd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "qhookd crashed: %v\n", r)
			if os.Getenv("QHOOK_DEBUG") != "" {
				debug.PrintStack()
			}
			os.Exit(2)
		}
	}()

	cmd.Execute()
}
