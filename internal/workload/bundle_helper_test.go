package workload

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/keep-loader/internal/bundle"
)

// bundleWithConfig writes configYAML as config.yaml in a fresh temp
// directory and bundles it onto module, returning the bundled bytes.
func bundleWithConfig(t *testing.T, module []byte, configYAML string) []byte {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/config.yaml", []byte(configYAML), 0o644))

	built, err := bundle.NewBuilder().Prefix(dir).Path(dir).Build(module)
	require.NoError(t, err)
	return built
}
