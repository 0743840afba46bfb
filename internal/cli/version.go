package cli

import (
	"fmt"
	"io"
	"runtime"

	"github.com/Masterminds/semver/v3"
	"github.com/lacquerai/mathutils/internal/style"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Build-time variables (set by goreleaser or build scripts)
var (
	Version   = "dev"
	Commit    = "unknown"
	Date      = "unknown"
	BuiltBy   = "unknown"
	GoVersion = runtime.Version()
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display version information for mathutils, including build details.`,
	Example: `
  mathutils-host version               # Show basic version info
  mathutils-host version --output json # Show version info as JSON`,
	Run: func(cmd *cobra.Command, args []string) {
		showVersion(cmd)
	},
}

func init() {
	hostCmd.AddCommand(versionCmd)
}

// VersionInfo represents version information
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Release   bool   `json:"release" yaml:"release"`
	Commit    string `json:"commit" yaml:"commit"`
	Date      string `json:"date" yaml:"date"`
	BuiltBy   string `json:"built_by" yaml:"built_by"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

func newVersionInfo() VersionInfo {
	version, release := normalizeVersion(Version)
	return VersionInfo{
		Version:   version,
		Release:   release,
		Commit:    Commit,
		Date:      Date,
		BuiltBy:   BuiltBy,
		GoVersion: GoVersion,
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// normalizeVersion returns the semantic version without a "v" prefix and
// whether it is a release build. Non-semver values such as "dev" are kept as is.
func normalizeVersion(v string) (string, bool) {
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return v, false
	}
	return parsed.String(), parsed.Prerelease() == ""
}

func showVersion(cmd *cobra.Command) {
	info := newVersionInfo()
	style.Print(cmd.OutOrStdout(), viper.GetString("output"), info, func(w io.Writer) {
		printText(w, info)
	})
}

func printText(w io.Writer, info VersionInfo) {
	fmt.Fprintf(w, "%s\n", info.Version)
}
