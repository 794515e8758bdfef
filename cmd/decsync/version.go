package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/decsync-io/decsync"
	"github.com/decsync-io/decsync/cmd"
)

func versionMain(command *cobra.Command, arguments []string) error {
	fmt.Println(decsync.Version)
	return nil
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run:   cmd.Mainify(versionMain),
}
