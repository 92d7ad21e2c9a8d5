// SPDX-License-Identifier: Apache-2.0

package sim

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joomcode/errorx"
	"gopkg.in/yaml.v3"
)

// LoadFaults reads a YAML or TOML fault profile.
func LoadFaults(path string) (Faults, error) {
	var f Faults

	b, err := os.ReadFile(path)
	if err != nil {
		return f, errorx.IllegalArgument.Wrap(err, "failed to read fault profile %q", path).
			WithProperty(errorx.PropertyPayload(), path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err = toml.Decode(string(b), &f)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &f)
	default:
		return f, errorx.IllegalFormat.New("unsupported fault profile format %q", filepath.Ext(path))
	}
	if err != nil {
		return f, errorx.IllegalFormat.Wrap(err, "failed to parse fault profile %q", path)
	}

	return f, nil
}
