package cli

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/kbukum/cmdkit/logger"
	"github.com/kbukum/cmdkit/process"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// sinks returns the handlers echoing child output to the terminal. Error
// lines are red when stderr is a terminal and color is not disabled.
func (a *app) sinks() (out, errs process.LineHandler) {
	if a.quiet {
		log := logger.Get("process")
		return process.LogHandler(log, zerolog.DebugLevel, "stdout: "), process.LogHandler(log, zerolog.DebugLevel, "stderr: ")
	}

	var red *color.Color
	if !a.noColor && isTerminal(a.stderr) {
		red = color.New(color.FgRed)
		red.EnableColor()
	}
	return process.PrintHandler(a.stdout, "", nil), process.PrintHandler(a.stderr, "", red)
}
