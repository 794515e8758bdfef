package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/decsync-io/decsync"
	"github.com/decsync-io/decsync/cmd"
	"github.com/decsync-io/decsync/pkg/entry"
)

// exportedEntry is the flattened, export-friendly shape of one stored
// entry: a human-readable path instead of a raw []string, and decoded
// key/value instead of raw JSON bytes.
type exportedEntry struct {
	Path  string      `json:"path" yaml:"path"`
	Key   interface{} `json:"key" yaml:"key"`
	Value interface{} `json:"value" yaml:"value"`
}

func decodeRaw(raw entry.RawValue) interface{} {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	return decoded
}

func exportMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("export requires exactly one argument: <syncType>")
	}
	syncType := arguments[0]

	if exportConfiguration.ownAppID == "" {
		return errors.New("--own-app-id is required")
	}
	if exportConfiguration.format != "json" && exportConfiguration.format != "yaml" {
		return errors.New("--format must be one of json, yaml")
	}

	decsyncDir, err := resolvedDecsyncDir()
	if err != nil {
		return err
	}
	root, err := openDecsyncRoot(decsyncDir)
	if err != nil {
		return err
	}
	localRoot, err := openLocalRoot(syncType, exportConfiguration.collection, exportConfiguration.ownAppID)
	if err != nil {
		return err
	}

	instance, err := decsync.New(root, localRoot, syncType, exportConfiguration.collection, exportConfiguration.ownAppID, resolvedLogger())
	if err != nil {
		return errors.Wrap(err, "unable to open DecSync instance")
	}

	var exported []exportedEntry
	instance.AddListener(nil, func(path []string, entries []entry.Entry, extra decsync.ExtraOption) bool {
		for _, e := range entries {
			exported = append(exported, exportedEntry{
				Path:  strings.Join(path, "/"),
				Key:   decodeRaw(e.Key),
				Value: decodeRaw(e.Value),
			})
		}
		return true
	})

	if err := instance.InitStoredEntries(); err != nil {
		return errors.Wrap(err, "unable to replay stored entries")
	}

	if exportConfiguration.format == "yaml" {
		data, err := yaml.Marshal(exported)
		if err != nil {
			return errors.Wrap(err, "unable to encode export as YAML")
		}
		fmt.Print(string(data))
		return nil
	}

	data, err := json.MarshalIndent(exported, "", "  ")
	if err != nil {
		return errors.Wrap(err, "unable to encode export as JSON")
	}
	fmt.Println(string(data))
	return nil
}

var exportCommand = &cobra.Command{
	Use:   "export <syncType>",
	Short: "Dump the own stored-entries snapshot as YAML or JSON",
	Args:  cobra.ExactArgs(1),
	Run:   cmd.Mainify(exportMain),
}

var exportConfiguration struct {
	collection string
	ownAppID   string
	format     string
}

func init() {
	flags := exportCommand.Flags()
	flags.SortFlags = false
	flags.StringVar(&exportConfiguration.collection, "collection", "", "Specify the collection")
	flags.StringVar(&exportConfiguration.ownAppID, "own-app-id", "", "Specify the exporting application's own app id")
	flags.StringVar(&exportConfiguration.format, "format", "json", "Specify the output format (json or yaml)")
}
