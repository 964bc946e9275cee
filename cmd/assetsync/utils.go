package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/openmined/assetsync/internal/updater"
)

var (
	green = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cyan  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	red   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func printResult(out io.Writer, res *updater.Result) {
	if res.UpToDate {
		fmt.Fprintln(out, green.Render("Assets are up to date"))
		return
	}

	c := res.Changes
	fmt.Fprintf(out, "%s %d created, %d updated, %d deleted\n",
		cyan.Render("Files"), len(c.FilesToCreate), len(c.FilesToUpdate), len(c.FilesToDelete))
	fmt.Fprintf(out, "%s %d created, %d deleted\n",
		cyan.Render("Dirs "), len(c.DirsToCreate), len(c.DirsToDelete))
	if res.Summary.Bytes > 0 {
		fmt.Fprintf(out, "%s %s\n", cyan.Render("Downloaded"), res.Summary)
	}
	if res.Bootstrapped {
		fmt.Fprintln(out, gray.Render("Seeded from bootstrap archive"))
	}
	if res.Verified {
		fmt.Fprintln(out, green.Render("Assets updated"))
	} else {
		fmt.Fprintln(out, red.Render("Assets updated, but the tree does not match the remote checksum"))
	}
}
