// Package config decodes the deployment configuration document a
// bundle may carry at its VFS root, describing how the workload's
// standard I/O streams should be wired.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// FileName is the VFS path this package looks for: a YAML document at
// the bundle root.
const FileName = "config.yaml"

// StreamKind tags which variant a Read/WriteStream holds.
type StreamKind int

const (
	Null StreamKind = iota
	Inherit
	File
	Bundle
)

// ReadStream configures stdin: Null, Inherit, a host File path, or a
// Bundle path resolved against the VFS.
type ReadStream struct {
	Kind StreamKind
	Path string
}

// WriteStream configures stdout/stderr: Null, Inherit, or a host File
// path. There is no Bundle variant — the VFS is read-only.
type WriteStream struct {
	Kind StreamKind
	Path string
}

// Stdio groups the three configured stream redirections.
type Stdio struct {
	Stdin  ReadStream
	Stdout WriteStream
	Stderr WriteStream
}

// Deploy is the decoded deployment configuration. When no config.yaml
// is present, Default supplies Inherit for every stream; the zero value
// is Null for every stream, since Null is StreamKind's zero value.
type Deploy struct {
	Stdio Stdio
}

// Default returns the configuration used when no config.yaml is
// present in the bundle: Inherit for every stream, per the standardized
// default.
func Default() Deploy {
	return Deploy{Stdio: Stdio{
		Stdin:  ReadStream{Kind: Inherit},
		Stdout: WriteStream{Kind: Inherit},
		Stderr: WriteStream{Kind: Inherit},
	}}
}

// document mirrors the on-disk YAML shape before being lifted into the
// richer Deploy/Stream types above.
type document struct {
	Stdio struct {
		Stdin  yaml.Node `yaml:"stdin"`
		Stdout yaml.Node `yaml:"stdout"`
		Stderr yaml.Node `yaml:"stderr"`
	} `yaml:"stdio"`
}

// Load decodes a config.yaml document. Missing keys default to Inherit.
func Load(data []byte) (Deploy, error) {
	cfg := Default()
	if len(data) == 0 {
		return cfg, nil
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Deploy{}, fmt.Errorf("config: parsing %s: %w", FileName, err)
	}

	if doc.Stdio.Stdin.Kind != 0 {
		rs, err := decodeReadStream(&doc.Stdio.Stdin)
		if err != nil {
			return Deploy{}, err
		}
		cfg.Stdio.Stdin = rs
	}
	if doc.Stdio.Stdout.Kind != 0 {
		ws, err := decodeWriteStream(&doc.Stdio.Stdout)
		if err != nil {
			return Deploy{}, err
		}
		cfg.Stdio.Stdout = ws
	}
	if doc.Stdio.Stderr.Kind != 0 {
		ws, err := decodeWriteStream(&doc.Stdio.Stderr)
		if err != nil {
			return Deploy{}, err
		}
		cfg.Stdio.Stderr = ws
	}

	return cfg, nil
}

func decodeReadStream(n *yaml.Node) (ReadStream, error) {
	if n.Kind == yaml.ScalarNode {
		switch n.Value {
		case "null":
			return ReadStream{Kind: Null}, nil
		case "inherit":
			return ReadStream{Kind: Inherit}, nil
		default:
			return ReadStream{}, fmt.Errorf("config: unrecognized stdio scalar %q", n.Value)
		}
	}
	var variant struct {
		File   string `yaml:"file"`
		Bundle string `yaml:"bundle"`
	}
	if err := n.Decode(&variant); err != nil {
		return ReadStream{}, fmt.Errorf("config: %w", err)
	}
	switch {
	case variant.File != "":
		return ReadStream{Kind: File, Path: variant.File}, nil
	case variant.Bundle != "":
		return ReadStream{Kind: Bundle, Path: variant.Bundle}, nil
	default:
		return ReadStream{}, fmt.Errorf("config: stdio entry must be null, inherit, {file: path} or {bundle: path}")
	}
}

func decodeWriteStream(n *yaml.Node) (WriteStream, error) {
	if n.Kind == yaml.ScalarNode {
		switch n.Value {
		case "null":
			return WriteStream{Kind: Null}, nil
		case "inherit":
			return WriteStream{Kind: Inherit}, nil
		default:
			return WriteStream{}, fmt.Errorf("config: unrecognized stdio scalar %q", n.Value)
		}
	}
	var variant struct {
		File string `yaml:"file"`
	}
	if err := n.Decode(&variant); err != nil {
		return WriteStream{}, fmt.Errorf("config: %w", err)
	}
	if variant.File == "" {
		return WriteStream{}, fmt.Errorf("config: stdio entry must be null, inherit, or {file: path}")
	}
	return WriteStream{Kind: File, Path: variant.File}, nil
}
