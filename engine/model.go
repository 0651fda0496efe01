package engine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/crazybeth/crazybeth/predictor"
)

// graphSuffixes and weightSuffixes are the file-extension families a
// model directory is scanned for, per spec.md section 6: "a directory
// containing a graph-definition file and a weight file; discovered by
// suffix."
var (
	graphSuffixes  = []string{".pb", ".onnx", ".json"}
	weightSuffixes = []string{".params", ".weights", ".model"}
)

// Executor is the opaque, already-trained neural network backend spec.md
// section 1 treats as an external collaborator. A concrete
// implementation is supplied by the caller (e.g. an ONNX or TensorFlow
// runtime binding); this repo never constructs or trains one.
type Executor interface {
	predictor.Batcher
}

// Loader constructs an Executor from a discovered graph file and weight
// file. Engine calls it lazily from IsReady.
type Loader func(graphPath, weightPath string) (Executor, error)

// discoverModelFiles scans dir for one graph-definition file and one
// weight file by suffix, per spec.md section 6.
func discoverModelFiles(dir string) (graphPath, weightPath string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", "", errors.Wrapf(err, "model_not_found: cannot read model directory %s", dir)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		for _, sfx := range graphSuffixes {
			if strings.HasSuffix(name, sfx) {
				graphPath = filepath.Join(dir, name)
			}
		}
		for _, sfx := range weightSuffixes {
			if strings.HasSuffix(name, sfx) {
				weightPath = filepath.Join(dir, name)
			}
		}
	}
	if graphPath == "" || weightPath == "" {
		return "", "", errors.Errorf("model_not_found: no graph/weight file under %s", dir)
	}
	return graphPath, weightPath, nil
}
