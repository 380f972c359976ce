// Package bundle implements the Wasm "bundle" custom-section container:
// a canonical way to embed a tar archive of resources inside a Wasm
// module as a named custom section, and to recover it again without
// disturbing any other section in the module.
package bundle

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSectionName is the custom section name used when the Builder
// is not given an explicit one.
const DefaultSectionName = ".enarx.resources"

var wasmMagic = [4]byte{0x00, 0x61, 0x73, 0x6d} // "\0asm"

// ErrInvalidInput is the sentinel all malformed-input failures wrap:
// unparseable Wasm, an inconsistent path prefix, or a section name
// collision on rebuild.
var ErrInvalidInput = errors.New("bundle: invalid input")

var errNeedMoreData = errors.New("bundle: need more data")

func invalidInput(detail string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(detail, args...))
}

// Builder assembles a tar archive of the configured paths and appends it
// to a plain Wasm module as a named custom section.
type Builder struct {
	prefix  string
	section string
	paths   []string
}

// NewBuilder returns a Builder using DefaultSectionName until overridden.
func NewBuilder() *Builder {
	return &Builder{section: DefaultSectionName}
}

// Prefix sets the path prefix stripped from every stored archive entry.
func (b *Builder) Prefix(p string) *Builder {
	b.prefix = p
	return b
}

// Section overrides the custom section name used on build and parse.
func (b *Builder) Section(name string) *Builder {
	b.section = name
	return b
}

// Path registers one or more filesystem paths (files or directory
// trees) to include in the bundled archive.
func (b *Builder) Path(paths ...string) *Builder {
	b.paths = append(b.paths, paths...)
	return b
}

// Build assembles the archive from the configured paths and appends it
// to input as a new custom section, returning the bundled module bytes.
//
// Build is atomic from the caller's view: it either returns a fully
// bundled module or an error, never a partially written one.
func (b *Builder) Build(input []byte) ([]byte, error) {
	section := b.section
	if section == "" {
		section = DefaultSectionName
	}

	archive, rest, err := Parse(input, section)
	if err != nil {
		return nil, err
	}
	if len(archive) != 0 {
		return nil, invalidInput("section %q is already present; rebuild rejects duplicates", section)
	}

	tarBytes, err := b.archive()
	if err != nil {
		return nil, err
	}

	nameBytes := []byte(section)
	header := putUvarint(nil, uint64(len(nameBytes)))
	header = append(header, nameBytes...)
	contentSize := uint64(len(header) + len(tarBytes))

	out := make([]byte, 0, len(rest)+1+10+len(header)+len(tarBytes))
	out = append(out, rest...)
	out = append(out, 0x00)
	out = putUvarint(out, contentSize)
	out = append(out, header...)
	out = append(out, tarBytes...)
	return out, nil
}

// archive walks every configured path and writes a ustar archive of its
// contents, with names stored relative to the configured prefix.
func (b *Builder) archive() ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for _, p := range b.paths {
		if !strings.HasPrefix(p, b.prefix) {
			return nil, invalidInput("path %q does not start with prefix %q", p, b.prefix)
		}
		if err := addPath(tw, p, b.prefix); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("bundle: closing archive: %w", err)
	}
	return buf.Bytes(), nil
}

func addPath(tw *tar.Writer, root, prefix string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("bundle: %w", err)
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return invalidInput("%q is neither a regular file nor a directory", path)
		}

		name := strings.TrimPrefix(path, prefix)
		name = strings.TrimPrefix(name, string(filepath.Separator))
		if name == "" {
			return nil // the prefix root itself; nothing to record
		}
		name = filepath.ToSlash(name)

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("bundle: %w", err)
		}
		hdr.Name = name

		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("bundle: %w", err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path) //nolint:gosec // path comes from the caller's own Walk root
		if err != nil {
			return fmt.Errorf("bundle: %w", err)
		}
		defer f.Close() //nolint:errcheck // best-effort close after a successful read

		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("bundle: %w", err)
		}
		return nil
	})
}

// Parse scans a Wasm module's outer, top-level section framing,
// extracting the payload of the custom section named section (if
// present) and forwarding every other byte verbatim — including
// section framing it does not recognize — so the returned rest stream
// remains a valid, independently parseable Wasm module with the named
// section removed.
//
// Parse never looks inside function bodies or any other opcode stream;
// it reads only section ids and lengths. It does not recurse into
// nested module definitions (the long-abandoned module-linking
// proposal): no current toolchain, wazero included, can compile such a
// module, so a named section embedded inside one is not found.
func Parse(input []byte, section string) (archive, rest []byte, err error) {
	if len(input) < 8 {
		return nil, nil, invalidInput("module shorter than the 8-byte header")
	}
	if [4]byte(input[0:4]) != wasmMagic {
		return nil, nil, invalidInput("missing Wasm magic number")
	}

	rest = append(rest, input[:8]...)
	off := 8
	found := false

	for off < len(input) {
		id := input[off]
		size, n, err := readUvarint(input, off+1)
		if err != nil {
			return nil, nil, invalidInput("truncated section header at offset %d: %v", off, err)
		}
		contentStart := off + 1 + n
		contentEnd := contentStart + int(size)
		if contentEnd < contentStart || contentEnd > len(input) {
			return nil, nil, invalidInput("section at offset %d overruns module", off)
		}
		content := input[contentStart:contentEnd]

		if id == 0x00 {
			name, nameConsumed, ok := readSectionName(content)
			if ok && name == section {
				if found {
					return nil, nil, invalidInput("multiple custom sections named %q", section)
				}
				found = true
				archive = append([]byte(nil), content[nameConsumed:]...)
				off = contentEnd
				continue
			}
		}

		rest = append(rest, input[off:contentEnd]...)
		off = contentEnd
	}

	if archive == nil {
		archive = []byte{}
	}
	return archive, rest, nil
}

func readSectionName(content []byte) (name string, consumed int, ok bool) {
	nameLen, n, err := readUvarint(content, 0)
	if err != nil {
		return "", 0, false
	}
	start := n
	end := start + int(nameLen)
	if end < start || end > len(content) {
		return "", 0, false
	}
	return string(content[start:end]), end, true
}
