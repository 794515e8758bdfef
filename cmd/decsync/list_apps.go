package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/decsync-io/decsync"
	"github.com/decsync-io/decsync/cmd"
)

func formatLastActive(lastActive string) string {
	if lastActive == "" {
		return "never"
	}
	parsed, err := time.Parse("2006-01-02", lastActive)
	if err != nil {
		return lastActive
	}
	return humanize.Time(parsed)
}

func listAppsMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("list-apps requires exactly one argument: <syncType>")
	}

	decsyncDir, err := resolvedDecsyncDir()
	if err != nil {
		return err
	}
	root, err := openDecsyncRoot(decsyncDir)
	if err != nil {
		return err
	}

	apps, err := decsync.GetActiveApps(root, arguments[0], listAppsConfiguration.collection)
	if err != nil {
		return errors.Wrap(err, "unable to list applications")
	}
	for _, app := range apps {
		fmt.Printf("%s\tversion %d\tlast active %s\n", app.AppID, app.Version, formatLastActive(app.LastActive))
	}
	return nil
}

var listAppsCommand = &cobra.Command{
	Use:   "list-apps <syncType>",
	Short: "List the applications observed active for a sync type",
	Args:  cobra.ExactArgs(1),
	Run:   cmd.Mainify(listAppsMain),
}

var listAppsConfiguration struct {
	collection string
}

func init() {
	flags := listAppsCommand.Flags()
	flags.SortFlags = false
	flags.StringVar(&listAppsConfiguration.collection, "collection", "", "Specify the collection")
}
