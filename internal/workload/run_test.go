package workload

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// emptyModule is the minimal valid Wasm module: magic + version, no
// sections, hence no exports at all.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// return1Module exports a default (empty-name) function taking no
// arguments and returning the i32 constant 1 — the "return_1.wasm"
// scenario, hand-encoded directly in the Wasm binary format:
//
//	type section:     (func) -> (i32)
//	function section: function 0 has type 0
//	export section:   export "" as func 0
//	code section:     i32.const 1; end
var return1Module = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f, // type section
	0x03, 0x02, 0x01, 0x00, // function section
	0x07, 0x04, 0x01, 0x00, 0x00, 0x00, // export section
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x01, 0x0b, // code section
}

// helloWorldModule imports wasi_snapshot_preview1.fd_write and, on its
// default export, writes "Hello, world!\n" to fd 1 through a single
// iovec planted at the start of linear memory — the hello_wasi_snapshot1
// scenario, hand-encoded directly in the Wasm binary format:
//
//	type section:     (i32,i32,i32,i32) -> (i32) [fd_write]; () -> () [export]
//	import section:   wasi_snapshot_preview1.fd_write, type 0
//	function section: function 1 (local func 0) has type 1
//	memory section:   one page, exported as "memory"
//	export section:   export "" as func 1, "memory" as memory 0
//	code section:     fd_write(1, iovs=0, iovs_len=1, nwritten=24); drop; end
//	data section:     offset 0: iovec{iov_base=8, iov_len=14}; offset 8: "Hello, world!\n"
var helloWorldModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version

	// type section
	0x01, 0x0c, 0x02,
	0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f, // (i32,i32,i32,i32) -> i32
	0x60, 0x00, 0x00, // () -> ()

	// import section: "wasi_snapshot_preview1"."fd_write" func (type 0)
	0x02, 0x23, 0x01,
	0x16, 0x77, 0x61, 0x73, 0x69, 0x5f, 0x73, 0x6e, 0x61, 0x70, 0x73, 0x68,
	0x6f, 0x74, 0x5f, 0x70, 0x72, 0x65, 0x76, 0x69, 0x65, 0x77, 0x31,
	0x08, 0x66, 0x64, 0x5f, 0x77, 0x72, 0x69, 0x74, 0x65,
	0x00, 0x00,

	// function section: local func 0 (func index 1) has type 1
	0x03, 0x02, 0x01, 0x01,

	// memory section: 1 memory, min 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,

	// export section: "" -> func 1, "memory" -> memory 0
	0x07, 0x0d, 0x02,
	0x00, 0x00, 0x01,
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00,

	// code section: fd_write(1, 0, 1, 24); drop; end
	0x0a, 0x0f, 0x01, 0x0d, 0x00,
	0x41, 0x01, 0x41, 0x00, 0x41, 0x01, 0x41, 0x18, 0x10, 0x00, 0x1a, 0x0b,

	// data section: iovec{base=8,len=14} @0, "Hello, world!\n" @8
	0x0b, 0x1c, 0x01, 0x00, 0x41, 0x00, 0x0b, 0x16,
	0x08, 0x00, 0x00, 0x00,
	0x0e, 0x00, 0x00, 0x00,
	0x48, 0x65, 0x6c, 0x6c, 0x6f, 0x2c, 0x20, 0x77, 0x6f, 0x72, 0x6c, 0x64, 0x21, 0x0a,
}

// argcModule imports wasi_snapshot_preview1.args_sizes_get and returns
// argc directly — the argc-reporting scenario, hand-encoded the same
// way as helloWorldModule:
//
//	type section:     (i32,i32) -> (i32) [args_sizes_get]; () -> (i32) [export]
//	code section:     args_sizes_get(argc_ptr=0, argv_buf_size_ptr=4); drop; load i32 @0; end
var argcModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version

	// type section
	0x01, 0x0b, 0x02,
	0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f, // (i32,i32) -> i32
	0x60, 0x00, 0x01, 0x7f, // () -> i32

	// import section: "wasi_snapshot_preview1"."args_sizes_get" func (type 0)
	0x02, 0x29, 0x01,
	0x16, 0x77, 0x61, 0x73, 0x69, 0x5f, 0x73, 0x6e, 0x61, 0x70, 0x73, 0x68,
	0x6f, 0x74, 0x5f, 0x70, 0x72, 0x65, 0x76, 0x69, 0x65, 0x77, 0x31,
	0x0e, 0x61, 0x72, 0x67, 0x73, 0x5f, 0x73, 0x69, 0x7a, 0x65, 0x73, 0x5f, 0x67, 0x65, 0x74,
	0x00, 0x00,

	// function section: local func 0 (func index 1) has type 1
	0x03, 0x02, 0x01, 0x01,

	// memory section: 1 memory, min 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,

	// export section: "" -> func 1, "memory" -> memory 0
	0x07, 0x0d, 0x02,
	0x00, 0x00, 0x01,
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00,

	// code section: args_sizes_get(0, 4); drop; i32.load align=2 offset=0; end
	0x0a, 0x10, 0x01, 0x0e, 0x00,
	0x41, 0x00, 0x41, 0x04, 0x10, 0x00, 0x1a, 0x41, 0x00, 0x28, 0x02, 0x00, 0x0b,
}

func TestRunHelloWorldWritesStdout(t *testing.T) {
	dir := t.TempDir()
	stdoutPath := dir + "/stdout.txt"

	bundled := bundleWithConfig(t, helloWorldModule, "stdio:\n  stdout:\n    file: "+stdoutPath+"\n")

	_, err := Run(context.Background(), bundled, nil, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(stdoutPath)
	require.NoError(t, err)
	require.Equal(t, "Hello, world!\n", string(got))
}

func TestRunArgcMatchesArgCount(t *testing.T) {
	results, err := Run(context.Background(), argcModule, []string{"a", "b", "c"}, nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{3}, results)
}

func TestRunReturn1(t *testing.T) {
	results, err := Run(context.Background(), return1Module, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, results)
}

func TestRunNoExportReturnsExportNotFound(t *testing.T) {
	_, err := Run(context.Background(), emptyModule, nil, nil)
	require.Error(t, err)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, ExportNotFound, werr.Kind)
}

func TestRunMalformedModuleIsConfigurationError(t *testing.T) {
	_, err := Run(context.Background(), []byte{0x00, 0x01, 0x02}, nil, nil)
	require.Error(t, err)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, ConfigurationError, werr.Kind)
}

func TestRunBundledConfigRedirectsStdout(t *testing.T) {
	dir := t.TempDir()
	stdoutPath := dir + "/stdout.txt"

	bundled := bundleWithConfig(t, return1Module, "stdio:\n  stdout:\n    file: "+stdoutPath+"\n")

	_, err := Run(context.Background(), bundled, nil, nil)
	require.NoError(t, err)
	// return1Module never writes to stdout, so the redirected file
	// exists and is empty; this exercises the resolveOutput(File) path
	// for a guest that imports no WASI functions. Guest-written content
	// is checked by TestRunHelloWorldWritesStdout.
	require.FileExists(t, stdoutPath)
}
