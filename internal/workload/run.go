// Package workload wires a parsed module and its bundled resources into
// a wazero-backed WASI instance, runs it, and returns its result vector
// or a typed Error.
package workload

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/Mindburn-Labs/keep-loader/internal/bundle"
	"github.com/Mindburn-Labs/keep-loader/internal/config"
	"github.com/Mindburn-Labs/keep-loader/internal/vfs"
)

// defaultMemoryLimitPages bounds guest linear memory the way wazero's
// memory-limit knob approximates wasmtime's "dynamic memory, no static
// maximum" configuration the original engine used.
const defaultMemoryLimitPages = 16384 // 1 GiB of 64 KiB pages

// wasiStringTableLimit mirrors the per-context ceiling wazero's own
// ModuleConfig imposes on the combined, NUL-terminated size of the args
// and environ tables it hands the guest (its sys context is always
// built with a size limit of math.MaxUint32). Checking it here, before
// instantiation, lets an overlong table surface as StringTableError
// instead of a generic instantiation failure.
const wasiStringTableLimit = math.MaxUint32

// Run executes moduleBytes (a bundle or a plain module) with the given
// args and environment, returning its default export's result vector.
func Run(ctx context.Context, moduleBytes []byte, args, envs []string) ([]uint64, error) {
	archive, _, err := bundle.Parse(moduleBytes, bundle.DefaultSectionName)
	if err != nil {
		return nil, newError(ConfigurationError, "parsing bundle", err)
	}

	tree, err := vfs.New(archive)
	if err != nil {
		return nil, newError(ConfigurationError, "populating virtual filesystem", err)
	}

	deploy, err := loadDeployConfig(tree)
	if err != nil {
		return nil, err
	}

	runtimeCfg := wazero.NewRuntimeConfig().WithMemoryLimitPages(defaultMemoryLimitPages)
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	defer r.Close(ctx) //nolint:errcheck // best-effort close on an already-failing path

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return nil, newError(InstantiationFailed, "instantiating WASI imports", err)
	}

	// The runtime re-parses moduleBytes directly: wazero ignores the
	// unknown .enarx.resources custom section on its own, so there is
	// no need to feed it the byte stream bundle.Parse stripped it from.
	compiled, err := r.CompileModule(ctx, moduleBytes)
	if err != nil {
		return nil, newError(InstantiationFailed, "compiling module", err)
	}
	defer compiled.Close(ctx) //nolint:errcheck // best-effort close

	modCfg, closers, err := buildModuleConfig(deploy, tree, args, envs)
	defer closeAll(closers)
	if err != nil {
		return nil, err
	}

	mod, err := r.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return nil, newError(InstantiationFailed, "instantiating module", err)
	}
	defer mod.Close(ctx) //nolint:errcheck // best-effort close

	fn := mod.ExportedFunction("")
	if fn == nil {
		return nil, newError(ExportNotFound, "module has no default export", nil)
	}

	results, err := fn.Call(ctx)
	if err != nil {
		return nil, newError(CallFailed, "invoking default export", err)
	}
	return results, nil
}

func loadDeployConfig(tree *vfs.Tree) (config.Deploy, error) {
	entry := tree.Lookup(config.FileName)
	if entry == nil {
		return config.Default(), nil
	}
	if entry.Kind != vfs.KindFile {
		return config.Deploy{}, newError(ConfigurationError, fmt.Sprintf("%s is a directory, not a file", config.FileName), nil)
	}

	size := entry.File.Size()
	buf := make([]byte, size)
	if _, err := entry.File.Pread(buf, 0); err != nil {
		return config.Deploy{}, newError(IoError, fmt.Sprintf("reading %s", config.FileName), err)
	}

	deploy, err := config.Load(buf)
	if err != nil {
		return config.Deploy{}, newError(ConfigurationError, "parsing config.yaml", err)
	}
	return deploy, nil
}

func buildModuleConfig(deploy config.Deploy, tree *vfs.Tree, args, envs []string) (wazero.ModuleConfig, []closer, error) {
	var closers []closer

	if size := argsTableSize(args); size > wasiStringTableLimit {
		return nil, closers, newError(StringTableError, fmt.Sprintf("args table is %d bytes, exceeds the engine's per-context limit of %d", size, uint64(wasiStringTableLimit)), nil)
	}
	if size := envTableSize(envs); size > wasiStringTableLimit {
		return nil, closers, newError(StringTableError, fmt.Sprintf("environment table is %d bytes, exceeds the engine's per-context limit of %d", size, uint64(wasiStringTableLimit)), nil)
	}

	modCfg := wazero.NewModuleConfig().WithName("workload")

	if len(args) > 0 {
		modCfg = modCfg.WithArgs(args...)
	}
	for _, kv := range envs {
		key, value, ok := splitEnv(kv)
		if !ok {
			return nil, closers, newError(ConfigurationError, fmt.Sprintf("malformed environment entry %q", kv), nil)
		}
		modCfg = modCfg.WithEnv(key, value)
	}

	stdin, stdinClose, err := resolveStdin(deploy.Stdio.Stdin, tree)
	if err != nil {
		return nil, closers, err
	}
	closers = append(closers, stdinClose)
	modCfg = modCfg.WithStdin(stdin)

	stdout, stdoutClose, err := resolveOutput(deploy.Stdio.Stdout, os.Stdout)
	if err != nil {
		return nil, closers, err
	}
	closers = append(closers, stdoutClose)
	modCfg = modCfg.WithStdout(stdout)

	stderr, stderrClose, err := resolveOutput(deploy.Stdio.Stderr, os.Stderr)
	if err != nil {
		return nil, closers, err
	}
	closers = append(closers, stderrClose)
	modCfg = modCfg.WithStderr(stderr)

	fsConfig := wazero.NewFSConfig().WithFSMount(tree.FS(), ".")
	modCfg = modCfg.WithFSConfig(fsConfig)

	return modCfg, closers, nil
}

func closeAll(closers []closer) {
	for _, c := range closers {
		if c != nil {
			_ = c()
		}
	}
}

func splitEnv(kv string) (key, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

// argsTableSize computes the size of the NUL-terminated argv table the
// guest will see, the same way wazero's sys context does.
func argsTableSize(args []string) uint64 {
	var total uint64
	for _, a := range args {
		total += uint64(len(a)) + 1
	}
	return total
}

// envTableSize computes the size of the NUL-terminated "key=value"
// environ table the guest will see. Malformed entries are skipped here;
// buildModuleConfig rejects them separately as ConfigurationError.
func envTableSize(envs []string) uint64 {
	var total uint64
	for _, kv := range envs {
		key, value, ok := splitEnv(kv)
		if !ok {
			continue
		}
		total += uint64(len(key)) + 1 + uint64(len(value)) + 1
	}
	return total
}
