package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ehr/srlistener/internal/sr"
)

// targetsFile is the YAML layout of TARGETS_FILE:
//
//	targets:
//	  - Femur Length
//	  - Nuchal Translucency
type targetsFile struct {
	Targets []string `yaml:"targets"`
}

// LoadTargets reads the target meanings from path. An empty path selects the
// built-in defaults.
func LoadTargets(path string) (sr.TargetSet, error) {
	if path == "" {
		return sr.DefaultTargets(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return sr.TargetSet{}, fmt.Errorf("read targets file: %w", err)
	}

	var f targetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return sr.TargetSet{}, fmt.Errorf("parse targets file %s: %w", path, err)
	}

	set := sr.NewTargetSet(f.Targets...)
	if set.Len() == 0 {
		return sr.TargetSet{}, fmt.Errorf("targets file %s lists no targets", path)
	}
	return set, nil
}
