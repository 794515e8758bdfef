package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/decsync-io/decsync"
	"github.com/decsync-io/decsync/cmd"
)

func listCollectionsMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("list-collections requires exactly one argument: <syncType>")
	}

	decsyncDir, err := resolvedDecsyncDir()
	if err != nil {
		return err
	}
	root, err := openDecsyncRoot(decsyncDir)
	if err != nil {
		return err
	}

	collections, err := decsync.ListCollections(root, arguments[0])
	if err != nil {
		return errors.Wrap(err, "unable to list collections")
	}
	for _, collection := range collections {
		fmt.Println(collection)
	}
	return nil
}

var listCollectionsCommand = &cobra.Command{
	Use:   "list-collections <syncType>",
	Short: "List the collections present under a sync type",
	Args:  cobra.ExactArgs(1),
	Run:   cmd.Mainify(listCollectionsMain),
}
