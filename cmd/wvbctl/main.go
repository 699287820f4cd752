// Package main is the entry point for wvbctl, a diagnostic CLI for
// inspecting and serving Webview Bundles.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/wvbundle/wvb/internal/cli"
	"github.com/wvbundle/wvb/internal/termcolor"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	colorMode := termcolor.ColorAuto
	args := os.Args[1:]
	for len(args) > 0 {
		if args[0] == "--version" {
			fmt.Printf("wvbctl %s\n", version)
			os.Exit(0)
		} else if args[0] == "--no-color" {
			colorMode = termcolor.ColorNever
		} else if m, ok := strings.CutPrefix(args[0], "--color="); ok {
			colorMode, _ = termcolor.ParseColorMode(m)
		} else {
			break
		}
		args = args[1:]
	}
	cw := termcolor.NewWriter(os.Stdout, colorMode)

	app := cli.NewApp("wvbctl", version)
	app.Register(serveCommand())
	app.Register(inspectCommand())
	app.Register(versionCommand(cw))
	app.Register(updateCommand())

	os.Exit(app.Run(args, cw))
}
