package observability

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"golang.org/x/term"
)

const (
	colorReset = "\033[0m"
	colorCyan  = "\033[36m"
	colorBold  = "\033[1m"
	colorDim   = "\033[2m"
)

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// PrintBanner renders the startup banner sized to the terminal.
func PrintBanner(model string) {
	width := termWidth()
	if width > 60 {
		width = 60
	}
	rule := strings.Repeat("─", width)

	fmt.Println(colorCyan + rule + colorReset)
	fmt.Println(colorBold + colorCyan + "  INFRABOT" + colorReset + colorDim + "  AI-powered DevOps assistant" + colorReset)
	fmt.Printf(colorDim+"  model: %s  platform: %s/%s"+colorReset+"\n", model, runtime.GOOS, runtime.GOARCH)
	fmt.Println(colorCyan + rule + colorReset)
}
