package ui

import "strings"

const (
	reset      = "\033[0m"
	bold       = "\033[1m"
	cyanBright = "\033[38;5;51m"
	cyanMid    = "\033[38;5;45m"
	cyanDeep   = "\033[38;5;39m"
	skyBlue    = "\033[38;5;75m"
	steelBlue  = "\033[38;5;68m"
	slate      = "\033[38;5;67m"
	jitOrange  = "\033[38;5;208m"
)

// Banner renders a colored FELIX wordmark.
func Banner() string {
	var b strings.Builder

	felixLetters := [][]string{
		{"███████╗", "██╔════╝", "█████╗  ", "██╔══╝  ", "███████╗", "╚══════╝"},
		{"███████╗", "██╔════╝", "█████╗  ", "██╔══╝  ", "███████╗", "╚══════╝"},
		{"██╗     ", "██║     ", "██║     ", "██║     ", "███████╗", "╚══════╝"},
		{"██╗", "██║", "██║", "██║", "██║", "╚═╝"},
		{"██╗  ██╗", "╚██╗██╔╝", " ╚███╔╝ ", " ██╔██╗ ", "██╔╝ ██╗", "╚═╝  ╚═╝"},
	}
	felixGradient := []string{cyanBright, cyanMid, cyanDeep, skyBlue, steelBlue}
	felixRows := make([]string, len(felixLetters[0]))
	for i, letter := range felixLetters {
		color := felixGradient[i%len(felixGradient)]
		for row := 0; row < len(letter); row++ {
			felixRows[row] += color + letter[row] + "  "
		}
	}
	for _, line := range felixRows {
		b.WriteString(bold + line + reset + "\n")
	}

	b.WriteString("\n")
	b.WriteString(bold + jitOrange + "felix" + reset + slate + "  •  FEX-Emu profiling observer\n" + reset)

	return b.String()
}
