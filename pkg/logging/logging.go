package logging

import (
	"log"
	"os"
)

func init() {
	// Set the global logger to use standard output, matching the
	// teacher stack's convention of routing all sublogger output through the
	// standard library logger so that its flags (date/time prefixes, etc.)
	// are respected uniformly.
	log.SetOutput(os.Stdout)
	log.SetFlags(0)
}
