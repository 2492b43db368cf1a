package store

import (
	"fmt"

	"github.com/spf13/cast"

	"jenkins-memory-agent/src/contracts"
	"jenkins-memory-agent/src/logger"
)

// MetadataFromMap converts loosely typed producer metadata into
// contracts.Metadata. A build_number that is not a non-negative base-10
// integer becomes 0 and is logged as a warning. See
// contracts.ParseBuildNumber for the accepted types.
func MetadataFromMap(raw map[string]any, log logger.Logger) contracts.Metadata {
	if log == nil {
		log = logger.NewSilentLogger()
	}

	var meta contracts.Metadata
	for k, v := range raw {
		if v == nil {
			continue
		}
		if k == "build_number" {
			n, err := contracts.ParseBuildNumber(v)
			if err != nil || n < 0 {
				log.Warn("[ChatMemory] Malformed build_number %v in metadata, using 0", v)
				n = 0
			}
			meta.BuildNumber = &n
			continue
		}
		if meta.Attributes == nil {
			meta.Attributes = make(map[string]string)
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			s = fmt.Sprint(v)
		}
		meta.Attributes[k] = s
	}
	return meta
}
