//go:build llama

package manager

import (
	"context"
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
const llamaBuilt = true

// llamaEngine loads GGUF models in-process through go-llama.cpp.
type llamaEngine struct{}

// NewLlamaEngine returns the in-process llama.cpp engine.
func NewLlamaEngine() Engine { return llamaEngine{} }

func (llamaEngine) Available() error { return nil }

// llamaTask owns the loaded model
type llamaTask struct {
	model *llama.LLama
	opts  Options
}

func (llamaEngine) CreateTask(ctx context.Context, path string, opts Options) (Task, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model path is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	mo := []llama.ModelOption{}
	if opts.ContextSize > 0 {
		mo = append(mo, llama.SetContext(opts.ContextSize))
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaTask{model: m, opts: opts}, nil
}

func (t *llamaTask) Generate(ctx context.Context, prompt string) (string, error) {
	if t.model == nil {
		return "", errors.New("llama model not initialized")
	}
	// runs to completion; there is no token callback to abort on
	text, err := t.model.Predict(prompt, predictOptions(t.opts)...)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (t *llamaTask) Close() error {
	if t.model != nil {
		t.model.Free()
		t.model = nil
	}
	return nil
}

// predictOptions converts Options into go-llama.cpp options
func predictOptions(o Options) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, o.MaxTokens)),
		llama.SetTopK(o.TopK),
		llama.SetTemperature(float32(o.Temperature)),
	}
	if o.Threads > 0 {
		po = append(po, llama.SetThreads(o.Threads))
	}
	if o.RandomSeed != 0 {
		po = append(po, llama.SetSeed(o.RandomSeed))
	}
	return po
}
