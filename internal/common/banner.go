package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner to stderr.
func PrintBanner(config *Config) {
	serviceURL := fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)

	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	width := 64
	hr := lineColor + strings.Repeat("═", width) + banner.ColorReset

	art := []string{
		` _   _      _                            _       _`,
		`| |_(_) ___| | _____ _ ____      ____ _ | |_ ___| |__`,
		"| __| |/ __| |/ / _ \\ '__\\ \\ /\\ / / _` || __/ __| '_ \\",
		`| |_| | (__|   <  __/ |   \ V  V / (_| || || (__| | | |`,
		` \__|_|\___|_|\_\___|_|    \_/\_/ \__,_| \__\___|_| |_|`,
	}

	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)
	for _, line := range art {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", textColor, line, banner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  version   %s\n", GetFullVersion())
	fmt.Fprintf(os.Stderr, "  env       %s\n", config.Environment)
	fmt.Fprintf(os.Stderr, "  listen    %s\n", serviceURL)
	fmt.Fprintf(os.Stderr, "  storage   %s\n", config.Storage.Address)
	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)
}
