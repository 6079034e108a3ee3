package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalProvider produces deterministic feature-hashed bag-of-words vectors.
// Texts sharing words land near each other, which is enough for offline use
// and tests; it makes no network calls.
type LocalProvider struct {
	model     string
	dimension int
}

// NewLocalProvider creates a local provider. A dimension <= 0 uses LocalDimension.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{model: DefaultLocalModel, dimension: dimension}
}

func (l *LocalProvider) ID() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) ExpectedDimension() int {
	return l.dimension
}

func (l *LocalProvider) MaxBatchSize() int {
	return LocalMaxBatchSize
}

func (l *LocalProvider) ScreenContent(text string) (bool, []string) {
	return ScreenText(text)
}

func (l *LocalProvider) RiskSignals(text string) []string {
	return DetectRiskSignals(text)
}

func (l *LocalProvider) GenerateEmbeddings(ctx context.Context, texts []string, opts GenerateOptions) ([][]float32, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = l.embed(text)
	}
	return out, nil
}

func (l *LocalProvider) Close() error {
	return nil
}

func (l *LocalProvider) embed(text string) []float32 {
	vec := make([]float64, l.dimension)
	tokens := Tokenize(text)

	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	for i := 0; i+1 < len(tokens); i++ {
		counts[tokens[i]+" "+tokens[i+1]]++
	}
	if len(counts) == 0 {
		counts[text]++
	}

	for feature, n := range counts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum64()
		idx := int(sum % uint64(l.dimension))
		weight := 1 + math.Log(float64(n))
		if sum&(1<<63) != 0 {
			weight = -weight
		}
		vec[idx] += weight
	}

	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	result := make([]float32, l.dimension)
	for i, x := range vec {
		result[i] = float32(x / norm)
	}
	return result
}

// Tokenize lowercases text and splits it into letter/digit runs of at least two runes.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			out = append(out, f)
		}
	}
	return out
}
