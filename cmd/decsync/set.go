package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/decsync-io/decsync"
	"github.com/decsync-io/decsync/cmd"
)

func setMain(command *cobra.Command, arguments []string) error {
	if len(arguments) < 3 {
		return errors.New("set requires <syncType> <path...> <key> <value>")
	}

	syncType := arguments[0]
	rest := arguments[1:]
	value := rest[len(rest)-1]
	key := rest[len(rest)-2]
	path := rest[:len(rest)-2]

	decsyncDir, err := resolvedDecsyncDir()
	if err != nil {
		return err
	}
	root, err := openDecsyncRoot(decsyncDir)
	if err != nil {
		return err
	}

	ownAppID := setConfiguration.ownAppID
	if ownAppID == "" {
		return errors.New("--own-app-id is required")
	}
	localRoot, err := openLocalRoot(syncType, setConfiguration.collection, ownAppID)
	if err != nil {
		return err
	}

	instance, err := decsync.New(root, localRoot, syncType, setConfiguration.collection, ownAppID, resolvedLogger())
	if err != nil {
		return errors.Wrap(err, "unable to open DecSync instance")
	}

	if err := instance.SetEntry(path, []byte(key), []byte(value)); err != nil {
		return errors.Wrap(err, "unable to set entry")
	}
	return nil
}

var setCommand = &cobra.Command{
	Use:   "set <syncType> <path...> <key> <value>",
	Short: "Publish a value for one key (key and value must be JSON-encoded)",
	Args:  cobra.MinimumNArgs(3),
	Run:   cmd.Mainify(setMain),
}

var setConfiguration struct {
	collection string
	ownAppID   string
}

func init() {
	flags := setCommand.Flags()
	flags.SortFlags = false
	flags.StringVar(&setConfiguration.collection, "collection", "", "Specify the collection")
	flags.StringVar(&setConfiguration.ownAppID, "own-app-id", "", "Specify the publishing application's own app id")
}
