package ai

import (
	"context"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// LocalEmbedder runs a MiniLM-style sentence encoder ONNX model in
// process: WordPiece tokenization, transformer forward pass, masked mean
// pooling, L2 normalization. It loads the model lazily on first use and
// serializes inference behind a mutex because the session owns fixed
// input/output tensors.
type LocalEmbedder struct {
	mu sync.Mutex

	modelPath string
	vocabPath string
	libPath   string
	modelID   string
	seqLen    int
	dims      int

	session   *ort.AdvancedSession
	inputIDs  *ort.Tensor[int64]
	attnMask  *ort.Tensor[int64]
	typeIDs   *ort.Tensor[int64]
	output    *ort.Tensor[float32]
	tokenizer *wordPieceTokenizer
	inited    bool
}

type LocalEmbedderConfig struct {
	ModelPath string
	VocabPath string
	LibPath   string
	ModelID   string
	MaxSeqLen int
	Dims      int
}

func NewLocalEmbedder(cfg LocalEmbedderConfig) *LocalEmbedder {
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 128
	}
	if cfg.Dims <= 0 {
		cfg.Dims = 384
	}
	return &LocalEmbedder{
		modelPath: cfg.ModelPath,
		vocabPath: cfg.VocabPath,
		libPath:   cfg.LibPath,
		modelID:   cfg.ModelID,
		seqLen:    cfg.MaxSeqLen,
		dims:      cfg.Dims,
	}
}

// initOnce loads the ONNX shared library, environment, vocab, and session.
func (e *LocalEmbedder) initOnce() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inited {
		return nil
	}

	if e.libPath != "" {
		ort.SetSharedLibraryPath(e.libPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("onnx init environment: %w", err)
	}

	tokenizer, err := newWordPieceTokenizer(e.vocabPath)
	if err != nil {
		return fmt.Errorf("load tokenizer vocab: %w", err)
	}
	e.tokenizer = tokenizer

	inputs, outputs, err := ort.GetInputOutputInfo(e.modelPath)
	if err != nil {
		return fmt.Errorf("onnx get input/output info: %w", err)
	}
	if len(inputs) < 2 || len(outputs) == 0 {
		return fmt.Errorf("onnx model has unexpected inputs or outputs")
	}

	// Sentence-encoder exports use dynamic batch and sequence axes, so
	// shapes come from config instead of the model metadata.
	inShape := ort.NewShape(1, int64(e.seqLen))
	outShape := ort.NewShape(1, int64(e.seqLen), int64(e.dims))

	e.inputIDs, err = ort.NewEmptyTensor[int64](inShape)
	if err != nil {
		return fmt.Errorf("onnx new input_ids tensor: %w", err)
	}
	e.attnMask, err = ort.NewEmptyTensor[int64](inShape)
	if err != nil {
		e.destroyTensors()
		return fmt.Errorf("onnx new attention_mask tensor: %w", err)
	}

	inputNames := make([]string, 0, len(inputs))
	inputValues := make([]ort.Value, 0, len(inputs))
	for _, in := range inputs {
		switch in.Name {
		case "input_ids":
			inputNames = append(inputNames, in.Name)
			inputValues = append(inputValues, e.inputIDs)
		case "attention_mask":
			inputNames = append(inputNames, in.Name)
			inputValues = append(inputValues, e.attnMask)
		case "token_type_ids":
			e.typeIDs, err = ort.NewEmptyTensor[int64](inShape)
			if err != nil {
				e.destroyTensors()
				return fmt.Errorf("onnx new token_type_ids tensor: %w", err)
			}
			inputNames = append(inputNames, in.Name)
			inputValues = append(inputValues, e.typeIDs)
		default:
			e.destroyTensors()
			return fmt.Errorf("onnx model has unknown input %q", in.Name)
		}
	}

	e.output, err = ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		e.destroyTensors()
		return fmt.Errorf("onnx new output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(e.modelPath, inputNames, []string{outputs[0].Name},
		inputValues, []ort.Value{e.output}, nil)
	if err != nil {
		e.destroyTensors()
		return fmt.Errorf("onnx new session: %w", err)
	}
	e.session = session
	e.inited = true
	return nil
}

func (e *LocalEmbedder) destroyTensors() {
	if e.inputIDs != nil {
		e.inputIDs.Destroy()
		e.inputIDs = nil
	}
	if e.attnMask != nil {
		e.attnMask.Destroy()
		e.attnMask = nil
	}
	if e.typeIDs != nil {
		e.typeIDs.Destroy()
		e.typeIDs = nil
	}
	if e.output != nil {
		e.output.Destroy()
		e.output = nil
	}
}

func (e *LocalEmbedder) Model() string {
	return e.modelID
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.initOnce(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, mask := e.tokenizer.Encode(text, e.seqLen)

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputIDs.GetData(), ids)
	copy(e.attnMask.GetData(), mask)
	if e.typeIDs != nil {
		typeData := e.typeIDs.GetData()
		for i := range typeData {
			typeData[i] = 0
		}
	}

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	return meanPool(e.output.GetData(), mask, e.seqLen, e.dims), nil
}

func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

// meanPool averages token states where the attention mask is set and
// L2-normalizes the result, matching sentence-transformers pooling.
func meanPool(hidden []float32, mask []int64, seqLen, dims int) []float32 {
	pooled := make([]float32, dims)
	var count float32
	for tok := 0; tok < seqLen; tok++ {
		if mask[tok] == 0 {
			continue
		}
		count++
		base := tok * dims
		for d := 0; d < dims; d++ {
			pooled[d] += hidden[base+d]
		}
	}
	if count == 0 {
		return pooled
	}

	var norm float64
	for d := 0; d < dims; d++ {
		pooled[d] /= count
		norm += float64(pooled[d]) * float64(pooled[d])
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for d := 0; d < dims; d++ {
			pooled[d] = float32(float64(pooled[d]) / norm)
		}
	}
	return pooled
}

// Close releases the session and tensors.
func (e *LocalEmbedder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	e.destroyTensors()
	e.inited = false
}
