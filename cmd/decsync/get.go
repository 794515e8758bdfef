package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/decsync-io/decsync"
	"github.com/decsync-io/decsync/cmd"
)

func getMain(command *cobra.Command, arguments []string) error {
	if len(arguments) < 2 {
		return errors.New("get requires <syncType> <path...> <key>")
	}

	syncType := arguments[0]
	rest := arguments[1:]
	key := rest[len(rest)-1]
	path := rest[:len(rest)-1]

	decsyncDir, err := resolvedDecsyncDir()
	if err != nil {
		return err
	}
	root, err := openDecsyncRoot(decsyncDir)
	if err != nil {
		return err
	}

	ownAppID := getConfiguration.ownAppID
	if ownAppID == "" {
		return errors.New("--own-app-id is required")
	}
	localRoot, err := openLocalRoot(syncType, getConfiguration.collection, ownAppID)
	if err != nil {
		return err
	}

	instance, err := decsync.New(root, localRoot, syncType, getConfiguration.collection, ownAppID, resolvedLogger())
	if err != nil {
		return errors.Wrap(err, "unable to open DecSync instance")
	}

	value, ok, err := instance.ExecuteStoredEntry(path, []byte(key))
	if err != nil {
		return errors.Wrap(err, "unable to look up entry")
	}
	if !ok {
		return nil
	}
	fmt.Println(string(value))
	return nil
}

var getCommand = &cobra.Command{
	Use:   "get <syncType> <path...> <key>",
	Short: "Print the stored value for one key",
	Args:  cobra.MinimumNArgs(2),
	Run:   cmd.Mainify(getMain),
}

var getConfiguration struct {
	collection string
	ownAppID   string
}

func init() {
	flags := getCommand.Flags()
	flags.SortFlags = false
	flags.StringVar(&getConfiguration.collection, "collection", "", "Specify the collection")
	flags.StringVar(&getConfiguration.ownAppID, "own-app-id", "", "Specify the requesting application's own app id")
}
