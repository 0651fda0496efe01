// Command crazybeth is the UCI-compatible entry point driving the
// search core, grounded on the teacher's cmd/infer/main.go shape (load
// a model directory, wire it to the algorithm, then serve requests).
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/crazybeth/crazybeth/engine"
	"github.com/crazybeth/crazybeth/search"
	"github.com/crazybeth/crazybeth/uci"
)

func main() {
	os.Exit(run())
}

func run() int {
	modelDir := os.Getenv("CRAZYBETH_MODEL_DIR")
	if modelDir == "" {
		modelDir = "model"
	}

	eng := engine.New(engine.Config{
		Options:  search.DefaultOptions(),
		ModelDir: modelDir,
		Loader:   nopLoader,
		Log:      log.New(os.Stdout, "", 0),
	})

	loop := uci.NewLoop(eng, os.Stdout)
	if err := loop.Run(context.Background(), os.Stdin); err != nil {
		fmt.Fprintln(os.Stderr, "crazybeth: fatal:", err)
		return 1
	}
	return 0
}

// nopLoader is a placeholder Loader: this binary's network executor is
// an external collaborator per spec.md section 1 and is expected to be
// supplied by whoever wires a real inference backend in; without one,
// is_ready reports not-ready and isready/go degrade gracefully per
// spec.md section 7.
func nopLoader(graphPath, weightPath string) (engine.Executor, error) {
	return nil, fmt.Errorf("model_load_failed: no network executor wired into this build (graph=%s weights=%s)", graphPath, weightPath)
}
