package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/decsync-io/decsync"
	"github.com/decsync-io/decsync/cmd"
)

func staticInfoMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("static-info requires exactly one argument: <syncType>")
	}

	decsyncDir, err := resolvedDecsyncDir()
	if err != nil {
		return err
	}
	root, err := openDecsyncRoot(decsyncDir)
	if err != nil {
		return err
	}

	info, err := decsync.GetStaticInfo(root, arguments[0], staticInfoConfiguration.collection)
	if err != nil {
		return errors.Wrap(err, "unable to read static info")
	}
	for key, value := range info {
		fmt.Printf("%s: %s\n", key, string(value))
	}
	return nil
}

var staticInfoCommand = &cobra.Command{
	Use:   "static-info <syncType>",
	Short: "Print the merged informational entries for a sync type",
	Args:  cobra.ExactArgs(1),
	Run:   cmd.Mainify(staticInfoMain),
}

var staticInfoConfiguration struct {
	collection string
}

func init() {
	flags := staticInfoCommand.Flags()
	flags.SortFlags = false
	flags.StringVar(&staticInfoConfiguration.collection, "collection", "", "Specify the collection")
}
