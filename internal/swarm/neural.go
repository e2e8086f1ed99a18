package swarm

import (
	"context"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// NeuralSystem is the narrow outbound interface the Queen consults for
// pattern matching and outcome trajectories. Real ML inference is out of
// scope; this interface exists only as an integration seam.
type NeuralSystem interface {
	Initialize(ctx context.Context) error
	BeginTask(ctx context.Context, taskContext string, domain Domain) (string, error)
	RecordStep(ctx context.Context, trajectoryID, action string, reward float64, embedding []float64) error
	CompleteTask(ctx context.Context, trajectoryID string, quality float64) error
	FindPatterns(ctx context.Context, embedding []float64, k int) ([]PatternMatch, error)
	RetrieveMemories(ctx context.Context, embedding []float64, k int) ([]string, error)
	TriggerLearning(ctx context.Context) error
}

// StubNeuralSystem is a deterministic pseudo-embedding implementation good
// enough to exercise Analyze's pattern-matching step without a real model.
type StubNeuralSystem struct {
	logger  *logrus.Logger
	breaker *gobreaker.CircuitBreaker
}

// NewStubNeuralSystem constructs the stub neural backend.
func NewStubNeuralSystem(logger *logrus.Logger) *StubNeuralSystem {
	return &StubNeuralSystem{logger: logger, breaker: newIntegrationBreaker("neural")}
}

func (s *StubNeuralSystem) Initialize(ctx context.Context) error { return nil }

func (s *StubNeuralSystem) BeginTask(ctx context.Context, taskContext string, domain Domain) (string, error) {
	return NewID(), nil
}

func (s *StubNeuralSystem) RecordStep(ctx context.Context, trajectoryID, action string, reward float64, embedding []float64) error {
	return nil
}

func (s *StubNeuralSystem) CompleteTask(ctx context.Context, trajectoryID string, quality float64) error {
	return nil
}

// pseudoEmbed produces a cheap, deterministic fixed-length vector from text
// so pattern matching has something stable to compare against.
func pseudoEmbed(text string) []float64 {
	vec := make([]float64, 8)
	for i, r := range strings.ToLower(text) {
		vec[i%8] += float64(r) / 255.0
	}
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (s *StubNeuralSystem) FindPatterns(ctx context.Context, embedding []float64, k int) ([]PatternMatch, error) {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, nil
	})
	if err != nil {
		return nil, integrationErr("neural_unavailable", "neural system unavailable", err)
	}
	score := 0.0
	for _, v := range embedding {
		score += v * v
	}
	matches := []PatternMatch{
		{PatternID: "pattern-generic", RelevanceScore: math.Min(0.5+score, 0.95), SuccessRate: 0.8},
	}
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *StubNeuralSystem) RetrieveMemories(ctx context.Context, embedding []float64, k int) ([]string, error) {
	return nil, nil
}

func (s *StubNeuralSystem) TriggerLearning(ctx context.Context) error { return nil }
