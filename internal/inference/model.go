// Package inference evaluates the pre-trained models and runs them as a chain of
// stages, each stage feeding its raw prediction to the next.
package inference

import (
	"encoding/json"
	"fmt"

	"github.com/patient-predict-server/internal/domain"
)

// Task is what a model predicts.
type Task string

const (
	TaskClassification Task = "classification"
	TaskRegression     Task = "regression"
)

// Kind is the exported model family.
type Kind string

const (
	KindForest Kind = "forest"
	KindLinear Kind = "linear"
)

// leafMarker marks a node without children.
const leafMarker = -1

// Node is one decision tree node. Samples with x[Feature] <= Threshold go left.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

// Tree is a decision tree stored as a flat node list rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Model is the exported form of a trained tree ensemble or linear model.
type Model struct {
	Name      string      `json:"name"`
	Task      Task        `json:"task"`
	Kind      Kind        `json:"kind"`
	NFeatures int         `json:"n_features"`
	Classes   []int       `json:"classes,omitempty"`
	Trees     []Tree      `json:"trees,omitempty"`
	Coef      [][]float64 `json:"coef,omitempty"`
	Intercept []float64   `json:"intercept,omitempty"`
}

// ParseModel decodes and validates a model document.
func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decoding model: %v", domain.ErrArtifact, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the model is well formed so Predict can never index out of
// range or loop.
func (m *Model) Validate() error {
	if m.NFeatures <= 0 {
		return m.invalid("n_features must be positive")
	}

	outputs := 1
	switch m.Task {
	case TaskClassification:
		if len(m.Classes) == 0 {
			return m.invalid("classification model has no classes")
		}
		outputs = len(m.Classes)
	case TaskRegression:
	default:
		return m.invalid("unknown task %q", m.Task)
	}

	switch m.Kind {
	case KindForest:
		return m.validateForest(outputs)
	case KindLinear:
		return m.validateLinear()
	default:
		return m.invalid("unknown kind %q", m.Kind)
	}
}

func (m *Model) validateForest(outputs int) error {
	if len(m.Trees) == 0 {
		return m.invalid("forest has no trees")
	}
	for t, tree := range m.Trees {
		if len(tree.Nodes) == 0 {
			return m.invalid("tree %d has no nodes", t)
		}
		for i, node := range tree.Nodes {
			if node.Left == leafMarker {
				if len(node.Value) != outputs {
					return m.invalid("tree %d leaf %d has %d values, expected %d", t, i, len(node.Value), outputs)
				}
				continue
			}
			if node.Feature < 0 || node.Feature >= m.NFeatures {
				return m.invalid("tree %d node %d splits on feature %d", t, i, node.Feature)
			}
			// Children always follow their parent, which rules out cycles.
			if node.Left <= i || node.Right <= i || node.Left >= len(tree.Nodes) || node.Right >= len(tree.Nodes) {
				return m.invalid("tree %d node %d has invalid children %d/%d", t, i, node.Left, node.Right)
			}
		}
	}
	return nil
}

func (m *Model) validateLinear() error {
	rows := 1
	if m.Task == TaskClassification && len(m.Classes) > 2 {
		rows = len(m.Classes)
	}
	if len(m.Coef) != rows || len(m.Intercept) != rows {
		return m.invalid("linear model needs %d coefficient rows and intercepts", rows)
	}
	for i, row := range m.Coef {
		if len(row) != m.NFeatures {
			return m.invalid("coefficient row %d has %d entries, expected %d", i, len(row), m.NFeatures)
		}
	}
	return nil
}

func (m *Model) invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: model %s: %s", domain.ErrArtifact, m.Name, fmt.Sprintf(format, args...))
}

// Predict evaluates the model on one vector. Classification models return the
// predicted class code and regression models the raw estimate.
func (m *Model) Predict(x []float64) (float64, error) {
	if len(x) != m.NFeatures {
		return 0, domain.NewPredictionError(domain.ErrInvalidFeatureVector, "",
			"model %s expects %d features, got %d", m.Name, m.NFeatures, len(x))
	}

	var scores []float64
	switch m.Kind {
	case KindForest:
		scores = m.forestScores(x)
	default:
		scores = m.linearScores(x)
	}

	if m.Task == TaskRegression {
		return scores[0], nil
	}
	return float64(m.Classes[m.pickClass(scores)]), nil
}

func (m *Model) forestScores(x []float64) []float64 {
	outputs := len(m.Trees[0].Nodes[m.leaf(0, x)].Value)
	scores := make([]float64, outputs)

	for t := range m.Trees {
		value := m.Trees[t].Nodes[m.leaf(t, x)].Value
		if m.Task == TaskClassification {
			// Leaves may hold raw class counts; each tree votes with its proportions.
			total := 0.0
			for _, v := range value {
				total += v
			}
			if total == 0 {
				continue
			}
			for i, v := range value {
				scores[i] += v / total
			}
			continue
		}
		scores[0] += value[0]
	}

	n := float64(len(m.Trees))
	for i := range scores {
		scores[i] /= n
	}
	return scores
}

func (m *Model) leaf(t int, x []float64) int {
	nodes := m.Trees[t].Nodes
	i := 0
	for nodes[i].Left != leafMarker {
		if x[nodes[i].Feature] <= nodes[i].Threshold {
			i = nodes[i].Left
		} else {
			i = nodes[i].Right
		}
	}
	return i
}

func (m *Model) linearScores(x []float64) []float64 {
	scores := make([]float64, len(m.Coef))
	for r, row := range m.Coef {
		s := m.Intercept[r]
		for i, w := range row {
			s += w * x[i]
		}
		scores[r] = s
	}
	return scores
}

// pickClass returns the index into Classes of the winning score. A single
// linear decision function separates two classes at zero.
func (m *Model) pickClass(scores []float64) int {
	if m.Kind == KindLinear && len(scores) == 1 {
		if scores[0] > 0 {
			return 1
		}
		return 0
	}

	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	return best
}
