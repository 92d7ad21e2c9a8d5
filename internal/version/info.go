// SPDX-License-Identifier: Apache-2.0

// Package version reports the build identity of hostd.
package version

import (
	"encoding/json"
	"runtime"
	"strings"

	"github.com/joomcode/errorx"
	"gopkg.in/yaml.v3"
)

type Info struct {
	Number    string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildMode string `json:"buildMode" yaml:"buildMode"`
	GoVersion string `json:"go" yaml:"go"`
	Platform  string `json:"platform" yaml:"platform"`
}

const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Format renders v as yaml or json.
func (v Info) Format(format string) (string, error) {
	var (
		output []byte
		err    error
	)

	switch strings.ToLower(format) {
	case FormatJSON:
		output, err = json.Marshal(v)
	case FormatYAML:
		output, err = yaml.Marshal(v)
	default:
		return "", errorx.IllegalFormat.New("unsupported format: %s", format).
			WithProperty(errorx.PropertyPayload(), format)
	}
	if err != nil {
		return "", errorx.IllegalFormat.Wrap(err, "failed to render version info as %s", format)
	}

	return string(output), nil
}

// String is the one-line form printed by --version.
func (v Info) String() string {
	return "hostd " + v.Number + " (" + v.Commit + ", " + v.BuildMode + ", " + v.Platform + ")"
}

func Get() Info {
	return Info{
		Number:    Number(),
		Commit:    Commit(),
		BuildMode: BuildMode(),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
