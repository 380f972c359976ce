package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"keep-loader", "help"}, &stdout, &stderr)
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "keep-loader run")
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"keep-loader", "bogus"}, &stdout, &stderr)
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "unknown command")
}

func TestRunLocalMissingModulePath(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"keep-loader", "run"}, &stdout, &stderr)
	require.Equal(t, 2, code)
}

func TestRunLocalMissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"keep-loader", "run", "/nonexistent/module.wasm"}, &stdout, &stderr)
	require.Equal(t, 1, code)
}
