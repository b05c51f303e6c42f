package pipeline

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/matsen/citeparse/internal/crf"
	"github.com/matsen/citeparse/internal/storage"
)

// BuiltinVersion is the version of the model returned by BuiltinModel.
const BuiltinVersion = "builtin-1"

//go:embed builtin.jsonl
var builtinExamples []byte

var (
	builtinOnce  sync.Once
	builtinModel *crf.Model
)

// BuiltinModel returns the model used when no model file is configured: the
// hand-set prior refined on a small set of labelled references compiled into
// the binary. It is trained once per process.
func BuiltinModel() *crf.Model {
	builtinOnce.Do(func() {
		m, err := trainBuiltin()
		if err != nil {
			panic("pipeline: building built-in model: " + err.Error())
		}
		builtinModel = m
	})
	return builtinModel
}

func trainBuiltin() (*crf.Model, error) {
	exs, err := storage.DecodeExamples(bytes.NewReader(builtinExamples))
	if err != nil {
		return nil, err
	}
	data, err := BuildInstances(exs)
	if err != nil {
		return nil, err
	}

	opts := crf.DefaultTrainOptions()
	opts.Name = crf.DefaultName
	opts.Version = BuiltinVersion
	opts.Init = crf.DefaultModel()
	m, err := crf.Train(context.Background(), data, opts)
	if err != nil {
		return nil, fmt.Errorf("training: %w", err)
	}
	return m, nil
}
