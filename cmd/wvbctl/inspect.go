package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pterm/pterm"

	"github.com/wvbundle/wvb/internal/cli"
	"github.com/wvbundle/wvb/internal/wvb"
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:    "inspect",
		Summary: "Print a bundle's header and index metadata",
		Usage:   "wvbctl inspect <path.wvb>",
		Examples: []string{
			"wvbctl inspect ./bundles/app_1.0.0.wvb",
		},
		Run: runInspect,
	}
}

// runInspect decodes only the header and index of the named file —
// it never extracts entry content to disk, since a pack/extract
// tool set is out of scope.
func runInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "inspect: expected exactly one bundle path")
		return 1
	}

	path := fs.Arg(0)
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		return 1
	}
	defer f.Close()

	descriptor, err := wvb.ReadDescriptor(f, wvb.DefaultReadOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		return 1
	}

	header := descriptor.Header()
	pterm.DefaultSection.Println(path)
	pterm.Printfln("version: %s  index_size: %d bytes  entries: %d",
		header.Version, header.IndexSize, descriptor.Index().Len())

	tableData := pterm.TableData{{"Path", "Content-Type", "Size", "Compressed"}}
	for _, entryPath := range descriptor.Index().Paths() {
		entry, _ := descriptor.GetEntry(entryPath)
		tableData = append(tableData, []string{
			entryPath,
			entry.ContentType,
			fmt.Sprintf("%d", entry.ContentLength),
			fmt.Sprintf("%d", entry.Length),
		})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(tableData).Render(); err != nil {
		fmt.Fprintf(os.Stderr, "inspect: rendering table: %v\n", err)
		return 1
	}
	return 0
}
