package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/decsync-io/decsync/cmd"
	"github.com/decsync-io/decsync/pkg/identifier"
)

func appIDNewMain(command *cobra.Command, arguments []string) error {
	if appIDNewConfiguration.uuid {
		fmt.Println(identifier.NewUUIDAppID())
		return nil
	}
	id, err := identifier.NewAppID()
	if err != nil {
		return errors.Wrap(err, "unable to generate app id")
	}
	fmt.Println(id)
	return nil
}

var appIDNewCommand = &cobra.Command{
	Use:   "new",
	Short: "Generate a fresh app id",
	Args:  cobra.NoArgs,
	Run:   cmd.Mainify(appIDNewMain),
}

var appIDNewConfiguration struct {
	uuid bool
}

var appIDCommand = &cobra.Command{
	Use:   "app-id",
	Short: "Manage application identifiers",
}

func init() {
	flags := appIDNewCommand.Flags()
	flags.SortFlags = false
	flags.BoolVar(&appIDNewConfiguration.uuid, "uuid", false, "Generate an RFC 4122 UUID instead")

	appIDCommand.AddCommand(appIDNewCommand)
}
