package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/decsync-io/decsync/cmd"
	"github.com/decsync-io/decsync/pkg/config"
	"github.com/decsync-io/decsync/pkg/logging"
)

// colorMode is a pflag.Value restricting --color to "auto", "always", or
// "never" instead of accepting any string.
type colorMode string

func (m *colorMode) String() string { return string(*m) }

func (m *colorMode) Set(value string) error {
	switch value {
	case "auto", "always", "never":
		*m = colorMode(value)
		return nil
	default:
		return errors.New(`must be one of "auto", "always", or "never"`)
	}
}

func (m *colorMode) Type() string { return "mode" }

var _ pflag.Value = (*colorMode)(nil)

// rootConfiguration holds the global flags shared by every subcommand.
var rootConfiguration struct {
	// help indicates whether or not help information should be shown.
	help bool
	// decsyncDir is the root of the shared, externally-synced tree.
	decsyncDir string
	// color is one of "auto", "always", or "never".
	color colorMode
	// logLevel is one of the names recognized by logging.NameToLevel.
	logLevel string
}

var rootCommand = &cobra.Command{
	Use:           "decsync",
	Short:         "Operate on a DecSync directory",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
		return applyConfigurationDefaults(command.Flags())
	},
}

// applyConfigurationDefaults fills in --color and --log-level from the CLI
// configuration file for any flag the caller didn't explicitly set on the
// command line. A missing or unreadable configuration file is not an
// error here; it simply leaves the built-in defaults in place.
func applyConfigurationDefaults(flags *pflag.FlagSet) error {
	path, err := config.Path()
	if err != nil {
		return nil
	}
	local, err := config.Load(path)
	if err != nil {
		return nil
	}
	if local.Color != "" && !flags.Changed("color") {
		flags.Set("color", local.Color)
	}
	if local.LogLevel != "" && !flags.Changed("log-level") {
		rootConfiguration.logLevel = local.LogLevel
	}
	return nil
}

func init() {
	cobra.EnableCommandSorting = false

	rootConfiguration.color = "auto"

	flags := rootCommand.PersistentFlags()
	flags.SortFlags = false
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.StringVar(&rootConfiguration.decsyncDir, "decsync-dir", "", "Specify the DecSync directory")
	flags.Var(&rootConfiguration.color, "color", "Specify color behavior (auto, always, never)")
	flags.StringVar(&rootConfiguration.logLevel, "log-level", "info", "Specify logging verbosity")

	rootCommand.AddCommand(
		getCommand,
		setCommand,
		listCollectionsCommand,
		listAppsCommand,
		staticInfoCommand,
		syncCommand,
		appIDCommand,
		exportCommand,
		versionCommand,
		legalCommand,
	)
}

// resolvedDecsyncDir returns the effective decsyncDir, preferring the
// --decsync-dir flag over the CLI configuration file's decsyncDir.
func resolvedDecsyncDir() (string, error) {
	if rootConfiguration.decsyncDir != "" {
		return rootConfiguration.decsyncDir, nil
	}

	path, err := config.Path()
	if err != nil {
		return "", err
	}
	local, err := config.Load(path)
	if err != nil {
		return "", err
	}
	if local.DecsyncDir != "" {
		return local.DecsyncDir, nil
	}
	return "", errDecsyncDirRequired
}

var errDecsyncDirRequired = &missingFlagError{flag: "--decsync-dir"}

type missingFlagError struct{ flag string }

func (e *missingFlagError) Error() string {
	return e.flag + " is required (or set decsyncDir in the configuration file)"
}

// resolvedLogger applies --color and --log-level and returns the root
// logger for the command.
func resolvedLogger() *logging.Logger {
	switch string(rootConfiguration.color) {
	case "always":
		enabled := true
		logging.SetColorMode(&enabled)
	case "never":
		disabled := false
		logging.SetColorMode(&disabled)
	default:
		logging.SetColorMode(nil)
	}

	level, ok := logging.NameToLevel(rootConfiguration.logLevel)
	if !ok {
		level = logging.LevelInfo
	}
	logger := logging.NewRoot(level)
	return logger
}

func main() {
	color.NoColor = false

	if err := rootCommand.Execute(); err != nil {
		cmd.Fatal(err)
	}
	os.Exit(0)
}
