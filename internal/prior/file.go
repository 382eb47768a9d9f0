package prior

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// priorFile is the on-disk snapshot format produced by the upstream
// aggregation job.
type priorFile struct {
	Priors []RawPrior `yaml:"priors"`
}

// LoadFile reads a YAML snapshot of raw prior rows. Rows are returned
// unvalidated; callers normalize them.
func LoadFile(path string) ([]RawPrior, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "prior: read %s", path)
	}

	var f priorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "prior: parse %s", path)
	}
	return f.Priors, nil
}
