package entities

import (
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed buildinfo-schema.json
var buildInfoSchema []byte

// ParseBuildInfo validates content against the build-info schema and unmarshals it.
// Both a raw build-info document and the {"buildInfo": {...}} response of Artifactory are accepted.
func ParseBuildInfo(content []byte) (*BuildInfo, error) {
	var published PublishedBuildInfo
	if err := json.Unmarshal(content, &published); err == nil && published.BuildInfo.Name != "" {
		if content, err = json.Marshal(published.BuildInfo); err != nil {
			return nil, errors.Wrap(err, "failed to read build info")
		}
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(buildInfoSchema), gojsonschema.NewBytesLoader(content))
	if err != nil {
		return nil, errors.Wrap(err, "failed to validate build info")
	}
	if !result.Valid() {
		var messages []string
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}
		return nil, errors.Errorf("invalid build info:\n%s", strings.Join(messages, "\n"))
	}
	buildInfo := &BuildInfo{}
	if err = json.Unmarshal(content, buildInfo); err != nil {
		return nil, errors.Wrap(err, "failed to read build info")
	}
	return buildInfo, nil
}
