// Package registry maps embedder names from experiment configs to
// constructors. The set of names is closed.
package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/kce/internal/embedder"
	"github.com/roach88/kce/internal/framework"
)

// ErrUnknownEmbedder indicates a name outside the registered set.
var ErrUnknownEmbedder = errors.New("registry: unknown embedder")

// Kind names an embedder or framework variant.
type Kind string

const (
	DeepWalk        Kind = "deepwalk"
	CoreWalkLinear  Kind = "corewalk_linear"
	CoreWalkPower   Kind = "corewalk_power"
	CoreWalkSigmoid Kind = "corewalk_sigmoid"
	Node2Vec        Kind = "node2vec"
	KCore           Kind = "k_core"
)

var kinds = []Kind{DeepWalk, CoreWalkLinear, CoreWalkPower, CoreWalkSigmoid, Node2Vec, KCore}

// Kinds returns every registered kind in declaration order.
func Kinds() []Kind {
	return slices.Clone(kinds)
}

// Parse converts a configuration string into a Kind.
func Parse(s string) (Kind, error) {
	k := Kind(s)
	if !slices.Contains(kinds, k) {
		return "", fmt.Errorf("%w: %q (known: %v)", ErrUnknownEmbedder, s, kinds)
	}
	return k, nil
}

// IsFramework reports whether k wraps a sub-embedder.
func (k Kind) IsFramework() bool {
	return k == KCore
}

func (k Kind) String() string { return string(k) }

// New builds the embedder named by kind from params. Frameworks also need
// subKind and subParams for the wrapped embedder; plain embedders ignore
// them.
func New(kind Kind, params map[string]any, subKind Kind, subParams map[string]any) (embedder.Embedder, error) {
	if kind.IsFramework() {
		if subKind == "" {
			return nil, fmt.Errorf("%w: %s needs a sub-embedder", embedder.ErrInvalidParams, kind)
		}
		if subKind.IsFramework() {
			return nil, fmt.Errorf("%w: sub-embedder %s is itself a framework", embedder.ErrInvalidParams, subKind)
		}
		sub, err := newPlain(subKind, subParams)
		if err != nil {
			return nil, fmt.Errorf("sub-embedder: %w", err)
		}
		var p framework.KCoreParams
		if err := embedder.DecodeParams(params, &p); err != nil {
			return nil, err
		}
		return framework.NewKCore(sub, p)
	}
	return newPlain(kind, params)
}

func newPlain(kind Kind, params map[string]any) (embedder.Embedder, error) {
	var wp embedder.WalkParams
	if err := embedder.DecodeParams(params, &wp); err != nil {
		return nil, err
	}

	switch kind {
	case DeepWalk:
		return embedder.NewDeepWalk(wp)
	case CoreWalkLinear:
		b := embedder.LinearBudget{NMin: 1}
		if err := embedder.DecodeParams(params, &b); err != nil {
			return nil, err
		}
		return embedder.NewCoreWalk(string(kind), wp, b)
	case CoreWalkPower:
		b := embedder.PowerBudget{Pow: 1}
		if err := embedder.DecodeParams(params, &b); err != nil {
			return nil, err
		}
		return embedder.NewCoreWalk(string(kind), wp, b)
	case CoreWalkSigmoid:
		var b embedder.SigmoidBudget
		if err := embedder.DecodeParams(params, &b); err != nil {
			return nil, err
		}
		return embedder.NewCoreWalk(string(kind), wp, b)
	case Node2Vec:
		var p embedder.Node2VecParams
		if err := embedder.DecodeParams(params, &p); err != nil {
			return nil, err
		}
		return embedder.NewNode2Vec(p)
	case KCore:
		return nil, fmt.Errorf("%w: %s is a framework", embedder.ErrInvalidParams, kind)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEmbedder, kind)
	}
}
