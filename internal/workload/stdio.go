package workload

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/keep-loader/internal/config"
	"github.com/Mindburn-Labs/keep-loader/internal/vfs"
)

// closer lets stdio wiring hand back a cleanup hook without forcing
// every variant (Null, Inherit, a bundled byte slice) to pretend it
// owns an *os.File.
type closer func() error

func noopClose() error { return nil }

// resolveStdin maps the configured ReadStream variant to an io.Reader
// for the WASI module config, per step 4 of the runtime adapter.
func resolveStdin(rs config.ReadStream, tree *vfs.Tree) (io.Reader, closer, error) {
	switch rs.Kind {
	case config.Null:
		return bytes.NewReader(nil), noopClose, nil
	case config.Inherit:
		return os.Stdin, noopClose, nil
	case config.File:
		f, err := os.Open(rs.Path) //nolint:gosec // path is operator-configured, not guest-controlled
		if err != nil {
			return nil, nil, newError(IoError, fmt.Sprintf("opening stdin file %q", rs.Path), err)
		}
		return f, f.Close, nil
	case config.Bundle:
		entry := tree.Lookup(rs.Path)
		if entry == nil || entry.Kind != vfs.KindFile {
			return nil, nil, newError(ConfigurationError, fmt.Sprintf("bundled stdin path %q is missing or not a file", rs.Path), nil)
		}
		size := entry.File.Size()
		buf := make([]byte, size)
		if _, err := entry.File.Pread(buf, 0); err != nil {
			return nil, nil, newError(IoError, fmt.Sprintf("reading bundled stdin %q", rs.Path), err)
		}
		return bytes.NewReader(buf), noopClose, nil
	default:
		return nil, nil, newError(ConfigurationError, "unrecognized stdin variant", nil)
	}
}

// resolveOutput maps a WriteStream variant (stdout or stderr) to an
// io.Writer, opening host files with create|truncate|write semantics.
// inheritTarget is the host fd Inherit maps to (os.Stdout or os.Stderr).
func resolveOutput(ws config.WriteStream, inheritTarget *os.File) (io.Writer, closer, error) {
	switch ws.Kind {
	case config.Null:
		return io.Discard, noopClose, nil
	case config.Inherit:
		return inheritTarget, noopClose, nil
	case config.File:
		f, err := os.OpenFile(ws.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644) //nolint:gosec // G304/G302: path is operator-configured
		if err != nil {
			return nil, nil, newError(IoError, fmt.Sprintf("opening output file %q", ws.Path), err)
		}
		return f, f.Close, nil
	default:
		return nil, nil, newError(ConfigurationError, "unrecognized stdio variant", nil)
	}
}
