package analysis

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubBuildInfo(t *testing.T, info *debug.BuildInfo, ok bool) {
	t.Helper()
	orig := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, ok }
	t.Cleanup(func() { readBuildInfo = orig })
}

func TestSetPipelineMetadataFromDep(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/climb-tre/scylla-pipeline", Version: "(devel)"},
		Deps: []*debug.Module{
			{Path: "github.com/climb-tre/onyx-client", Version: "v1.2.3"},
		},
	}, true)

	rec := New()
	require.NoError(t, rec.SetPipelineMetadata("github.com/climb-tre/onyx-client"))

	name, _ := rec.Field("pipeline_name")
	assert.Equal(t, "onyx-client", name)
	version, _ := rec.Field("pipeline_version")
	assert.Equal(t, "v1.2.3", version)
	url, _ := rec.Field("pipeline_url")
	assert.Equal(t, "https://github.com/climb-tre/onyx-client", url)
}

func TestSetPipelineMetadataFromMainModule(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/climb-tre/scylla-pipeline", Version: "v0.4.0"},
	}, true)

	rec := New()
	require.NoError(t, rec.SetPipelineMetadata("github.com/climb-tre/scylla-pipeline"))

	name, _ := rec.Field("pipeline_name")
	assert.Equal(t, "scylla-pipeline", name)
	version, _ := rec.Field("pipeline_version")
	assert.Equal(t, "v0.4.0", version)
}

func TestSetPipelineMetadataModuleNotFound(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/climb-tre/scylla-pipeline"},
	}, true)

	rec := New()
	err := rec.SetPipelineMetadata("github.com/climb-tre/absent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in build info")

	_, ok := rec.Field("pipeline_name")
	assert.False(t, ok)
}

func TestSetPipelineMetadataNoBuildInfo(t *testing.T) {
	stubBuildInfo(t, nil, false)

	rec := New()
	err := rec.SetPipelineMetadata("github.com/climb-tre/onyx-client")
	assert.Error(t, err)
}
