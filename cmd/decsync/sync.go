package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/decsync-io/decsync"
	"github.com/decsync-io/decsync/cmd"
	"github.com/decsync-io/decsync/pkg/entry"
)

func syncMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 2 {
		return errors.New("sync requires exactly two arguments: <syncType> <ownAppId>")
	}
	syncType, ownAppID := arguments[0], arguments[1]

	decsyncDir, err := resolvedDecsyncDir()
	if err != nil {
		return err
	}
	root, err := openDecsyncRoot(decsyncDir)
	if err != nil {
		return err
	}
	localRoot, err := openLocalRoot(syncType, syncConfiguration.collection, ownAppID)
	if err != nil {
		return err
	}

	instance, err := decsync.New(root, localRoot, syncType, syncConfiguration.collection, ownAppID, resolvedLogger())
	if err != nil {
		return errors.Wrap(err, "unable to open DecSync instance")
	}

	instance.AddListener(nil, func(path []string, entries []entry.Entry, extra decsync.ExtraOption) bool {
		for _, e := range entries {
			fmt.Printf("[%s] %s = %s (at %s)\n", strings.Join(path, "/"), string(e.Key), string(e.Value), e.DateTime)
		}
		return true
	})

	if err := instance.ExecuteAllNewEntries(nil, false); err != nil {
		return errors.Wrap(err, "unable to execute new entries")
	}
	return nil
}

var syncCommand = &cobra.Command{
	Use:   "sync <syncType> <ownAppId>",
	Short: "Run one new-entries pass, printing every delivered entry",
	Args:  cobra.ExactArgs(2),
	Run:   cmd.Mainify(syncMain),
}

var syncConfiguration struct {
	collection string
}

func init() {
	flags := syncCommand.Flags()
	flags.SortFlags = false
	flags.StringVar(&syncConfiguration.collection, "collection", "", "Specify the collection")
}
