package embedder

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkLocalProvider(b *testing.B) {
	p := NewLocalProvider(0)
	texts := make([]string, 32)
	for i := range texts {
		texts[i] = fmt.Sprintf("note %d about gardening, compost and raised beds in early spring", i)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.GenerateEmbeddings(ctx, texts, GenerateOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDetectRiskSignals(b *testing.B) {
	text := ""
	for i := 0; i < 100; i++ {
		text += "A paragraph of ordinary prose with nothing suspicious in it.\n"
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = DetectRiskSignals(text)
	}
}
