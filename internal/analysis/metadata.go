package analysis

import (
	"path"
	"runtime/debug"

	"github.com/rotisserie/eris"
)

// Stubbed in tests.
var readBuildInfo = debug.ReadBuildInfo

// SetPipelineMetadata resolves modulePath in the binary's build info and
// records the pipeline name, version, and project URL from it. Unlike the
// advisory validation, a missing module is a hard error: a record without
// pipeline identity is not worth building.
func (r *Record) SetPipelineMetadata(modulePath string) error {
	info, ok := readBuildInfo()
	if !ok {
		return eris.New("analysis: build info unavailable")
	}

	var mod *debug.Module
	if info.Main.Path == modulePath {
		mod = &info.Main
	} else {
		for _, dep := range info.Deps {
			if dep.Path == modulePath {
				mod = dep
				break
			}
		}
	}
	if mod == nil {
		return eris.Errorf("analysis: module %q not found in build info", modulePath)
	}

	r.fields["pipeline_name"] = path.Base(mod.Path)
	r.fields["pipeline_version"] = mod.Version
	r.fields["pipeline_url"] = "https://" + mod.Path
	return nil
}
