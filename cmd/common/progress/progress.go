package progress

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/term"
)

// PrintProgressBar prints a nice progress bar.
func PrintProgressBar(f io.Writer, msg string, done uint64, total uint64, final bool) {
	// Determine terminal width or fall-back to the standard 80 characters.
	// Note that we need to do this every time in case the user has resized their terminal.
	terminalWidth := 80
	if file, ok := f.(*os.File); ok {
		width, _, err := term.GetSize(int(file.Fd()))
		// Cap the maximum width to 80 to improve readability on wide terminals.
		if err == nil && width < terminalWidth {
			terminalWidth = width
		}
	}

	// Generate a user-friendly string with how many KiB has been transferred so far.
	doneKiB := fmt.Sprintf("%.1f KiB", float64(done)/1024.0)

	if total == 0 || done > total {
		// If the total size is unknown, just print how much we've done so far.
		// Also pad to the remainder of the terminal width with spaces, just in case we
		// previously had a progress bar there (so that we erase it).
		out := fmt.Sprintf("%s %s", msg, doneKiB)
		blank := strings.Repeat(" ", terminalWidth-len(out)-1)
		fmt.Fprintf(f, "\r%s%s", out, blank)
	} else {
		// If the total size is known, calculate percentage done and draw progress bar.
		ratioDone := float64(done) / float64(total)
		percentDone := ratioDone * 100.0

		// Status width needed for the message, percentage, and bytes done displays.
		statusWidth := len(msg) + 8 + len(doneKiB)

		if terminalWidth-statusWidth-14 < 0 {
			// Don't draw the progress bar if there's not enough space (where enough space
			// is 14 characters -- 10 for the bar, 2 for the sides, and 2 for the spaces).
			fmt.Fprintf(f, "\r%s %.2f%% %s", msg, percentDone, doneKiB)
		} else {
			// Draw the progress bar.
			availableWidth := terminalWidth - statusWidth - 4
			doneWidth := int(math.Floor(ratioDone * float64(availableWidth)))
			bar := strings.Repeat("#", doneWidth)
			bar += strings.Repeat(" ", availableWidth-doneWidth)

			fmt.Fprintf(f, "\r%s %.2f%% [%s] %s", msg, percentDone, bar, doneKiB)
		}
	}

	if final {
		// If this is the final print, also print a normal newline, so we don't mess up
		// any further output to the terminal.
		fmt.Fprintln(f)
	}
}
