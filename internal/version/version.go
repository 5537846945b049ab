package version

import (
	"fmt"
	"log"
	"strings"

	"github.com/sebastien/thor/theme"
)

var (
	Name        = "thor"
	Authors     = "Mark Nottingham, and contributors"
	Description = "An asynchronous HTTP/1.1 client engine"
	Version     = "v0.1.0"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

const (
	GithubHomeText  = "github.com/sebastien/thor"
	GithubHomeUri   = "https://github.com/sebastien/thor"
	GithubLatestUri = "https://github.com/sebastien/thor/releases/latest"
)

// PrintVersionInfo writes a short banner and, optionally, build metadata to vlog.
func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	githubUri := theme.Hyperlink(GithubHomeUri, GithubHomeText)
	latestUri := theme.Hyperlink(GithubLatestUri, Version)

	var b strings.Builder
	b.WriteString(theme.ColourSplash(fmt.Sprintf("%s — %s\n", Name, Description)))
	b.WriteString(theme.StyleUrl(githubUri))
	b.WriteString("  ")
	b.WriteString(theme.ColourVersion(latestUri))
	b.WriteString("\n")

	if extendedInfo {
		b.WriteString(fmt.Sprintf(" Commit: %s\n", Commit))
		b.WriteString(fmt.Sprintf("  Built: %s\n", Date))
		b.WriteString(fmt.Sprintf("  Using: %s\n", User))
	}

	vlog.Println(b.String())
}
