package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/decsync-io/decsync"
	"github.com/decsync-io/decsync/cmd"
)

func legalMain(command *cobra.Command, arguments []string) error {
	fmt.Println(decsync.LegalNotice)
	return nil
}

var legalCommand = &cobra.Command{
	Use:   "legal",
	Short: "Show legal information",
	Args:  cobra.NoArgs,
	Run:   cmd.Mainify(legalMain),
}
