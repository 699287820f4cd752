package main

import (
	"fmt"
	"runtime"

	"github.com/wvbundle/wvb/internal/cli"
	"github.com/wvbundle/wvb/internal/selfupdate"
	"github.com/wvbundle/wvb/internal/termcolor"
)

const updateRepo = "wvbundle/wvb"

func versionCommand(cw *termcolor.Writer) *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Show version information",
		Run: func(args []string) int {
			fmt.Printf("wvbctl %s\n", version)
			fmt.Printf("  commit:     %s\n", commit)
			fmt.Printf("  go version: %s\n", runtime.Version())
			fmt.Printf("  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
			return 0
		},
	}
}

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:    "update",
		Summary: "Check for and install a newer release",
		Run:     runUpdate,
	}
}

func runUpdate(args []string) int {
	latest, err := selfupdate.CheckLatest(updateRepo)
	if err != nil {
		fmt.Printf("error checking for updates: %v\n", err)
		return 1
	}

	if !selfupdate.NeedsUpdate(version, latest) {
		fmt.Println("already up to date.")
		return 0
	}

	fmt.Printf("update available: %s -> %s\n", version, latest)
	if err := selfupdate.Update(updateRepo, "wvbctl", latest); err != nil {
		fmt.Printf("update failed: %v\n", err)
		return 1
	}
	fmt.Println("updated successfully.")
	return 0
}
