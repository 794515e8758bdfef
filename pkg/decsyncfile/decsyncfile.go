// Package decsyncfile implements component C of the DecSync engine: it
// layers the name codec (pkg/namecodec) and a hidden-file convention on top
// of the abstract file tree (pkg/filesystem), and adds line-oriented I/O
// and the sequence-skipping recursive traversal that the V1 engine uses to
// scan peer logs.
package decsyncfile

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/decsync-io/decsync/pkg/filesystem"
	"github.com/decsync-io/decsync/pkg/namecodec"
)

// SequenceFileName is the (unencoded) hidden file name used to store a
// directory's monotonic change counter.
const SequenceFileName = "decsync-sequence"

// DecsyncFile addresses a location in a DecSync instance's directory tree,
// with all path segments name-codec-encoded.
type DecsyncFile struct {
	ref *filesystem.Ref
}

// New wraps a raw filesystem ref (typically a Tree's root) as a
// DecsyncFile.
func New(ref *filesystem.Ref) *DecsyncFile {
	return &DecsyncFile{ref: ref}
}

// Ref returns the underlying, already-encoded filesystem ref.
func (d *DecsyncFile) Ref() *filesystem.Ref {
	return d.ref
}

// Child derives a DecsyncFile for a named child, encoding the name.
func (d *DecsyncFile) Child(name string) *DecsyncFile {
	return &DecsyncFile{ref: d.ref.Child(namecodec.Encode(name))}
}

// ChildPath derives a DecsyncFile for a path of named children, encoding
// each segment.
func (d *DecsyncFile) ChildPath(path []string) *DecsyncFile {
	result := d
	for _, name := range path {
		result = result.Child(name)
	}
	return result
}

// HiddenChild derives a DecsyncFile addressing a hidden engine-internal
// file or directory: its name is encoded and then prefixed with '.', which
// is otherwise reserved (namecodec.Encode never produces a leading '.').
func (d *DecsyncFile) HiddenChild(name string) *DecsyncFile {
	return &DecsyncFile{ref: d.ref.Child("." + namecodec.Encode(name))}
}

// isHiddenEncodedName reports whether a raw (already on-disk, still
// encoded) child name is a hidden engine file, i.e. begins with '.'.
func isHiddenEncodedName(name string) bool {
	return strings.HasPrefix(name, ".")
}

// ReadLines reads the file's contents from the given byte offset, splits
// it on '\n', and drops blank lines. It returns an empty, nil-error result
// if nothing exists at this location.
func (d *DecsyncFile) ReadLines(offset int64) ([]string, error) {
	data, err := d.ref.Read(offset)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read lines")
	}
	return splitNonBlank(data), nil
}

// SplitNonBlankLines splits raw file content on '\n' and discards blank
// lines, for callers (such as the engines) that read a byte range directly
// via Ref().Read rather than through ReadLines.
func SplitNonBlankLines(data []byte) []string {
	return splitNonBlank(data)
}

// splitNonBlank splits data on '\n' and discards blank lines (including any
// final empty fragment from a trailing newline).
func splitNonBlank(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	parts := strings.Split(string(data), "\n")
	lines := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			lines = append(lines, part)
		}
	}
	return lines
}

// WriteLines joins lines with '\n' (with a trailing newline on the final
// record) and writes them. Blank entries in lines are filtered out first;
// if that leaves nothing and append is false, the file is deleted (per the
// empty-content-files-must-not-exist invariant).
func (d *DecsyncFile) WriteLines(lines []string, append bool) error {
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		if line != "" {
			filtered = append(filtered, line)
		}
	}

	if len(filtered) == 0 {
		return d.ref.Write(nil, append)
	}

	content := strings.Join(filtered, "\n") + "\n"
	return d.ref.Write([]byte(content), append)
}

// ReadText reads the file as a single non-blank line. It is an error for
// the file to contain more than one non-blank line. Returns ("", false,
// nil) if nothing exists.
func (d *DecsyncFile) ReadText() (string, bool, error) {
	lines, err := d.ReadLines(0)
	if err != nil {
		return "", false, err
	}
	if len(lines) == 0 {
		return "", false, nil
	}
	if len(lines) > 1 {
		return "", false, errors.New("expected a single line but found multiple")
	}
	return lines[0], true, nil
}

// WriteText writes a single line, overwriting any existing content. Writing
// an empty string deletes the file.
func (d *DecsyncFile) WriteText(text string) error {
	if text == "" {
		return d.WriteLines(nil, false)
	}
	return d.WriteLines([]string{text}, false)
}

// Children enumerates this location's direct, non-hidden children, decoding
// each name. It returns a nil, nil-error result if d does not currently
// address a directory.
func (d *DecsyncFile) Children() ([]string, error) {
	node, err := d.ref.Resolve()
	if err != nil {
		return nil, errors.Wrap(err, "unable to resolve directory")
	}
	directory, ok := node.(*filesystem.DirectoryNode)
	if !ok {
		return nil, nil
	}

	refs, err := directory.Children()
	if err != nil {
		return nil, errors.Wrap(err, "unable to list children")
	}

	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		encoded := ref.Name()
		if isHiddenEncodedName(encoded) {
			continue
		}
		decoded, ok := namecodec.Decode(encoded)
		if !ok {
			continue
		}
		names = append(names, decoded)
	}
	return names, nil
}

// ReadSequence reads this location's decsync-sequence counter, defaulting
// to 0 if absent or unparseable (per design note: cursor/sequence files
// must tolerate absence or corruption).
func ReadSequence(dir *DecsyncFile) int64 {
	text, ok, err := dir.HiddenChild(SequenceFileName).ReadText()
	if err != nil || !ok {
		return 0
	}
	value, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0
	}
	return value
}

// IncrementSequence increments this location's decsync-sequence counter by
// one (treating an absent or corrupt counter as 0) and persists the new
// value.
func IncrementSequence(dir *DecsyncFile) error {
	current := ReadSequence(dir)
	return dir.HiddenChild(SequenceFileName).WriteText(strconv.FormatInt(current+1, 10))
}
