package scheduler

import (
	"fmt"
	"strings"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/internal/lineage"
	"github.com/go-sif/rdd/types"
)

// Stage is a maximal run of narrow transformations computed by a single task per partition.
// Shuffle map stages end at a wide dependency and write shuffle blocks; the result stage
// ends at an action.
type Stage struct {
	ID       int
	Target   *lineage.Node    // the Dataset whose partitions the stage's tasks compute
	Shuffle  *types.ShuffleID // the shuffle written by a shuffle map stage, nil for the result stage
	Wide     *lineage.Node    // the wide Dataset reading the shuffle written by a shuffle map stage
	Parents  []*Stage         // stages which must complete before this one
	Inputs   []types.ShuffleID
	NumTasks int
}

// IsShuffleMap returns true iff this Stage writes a shuffle
func (s *Stage) IsShuffleMap() bool {
	return s.Shuffle != nil
}

// String returns a textual representation of this Stage
func (s *Stage) String() string {
	if s.IsShuffleMap() {
		return fmt.Sprintf("stage %d (%s -> %s)", s.ID, s.Target, s.Shuffle)
	}
	return fmt.Sprintf("stage %d (%s)", s.ID, s.Target)
}

type planner struct {
	g         *lineage.Graph
	stages    []*Stage
	byShuffle map[types.ShuffleID]*Stage
}

// Plan divides the lineage of a Dataset into Stages, cutting at every wide dependency.
// Stages are returned in an order in which they can be run: parents before children,
// the result stage last. Shuffle map stages are shared by every Dataset depending on the
// same shuffle.
func Plan(g *lineage.Graph, target types.DatasetID) ([]*Stage, error) {
	root, err := g.Get(target)
	if err != nil {
		return nil, err
	}
	p := &planner{g: g, byShuffle: make(map[types.ShuffleID]*Stage)}
	if _, err := p.stageFor(root, nil, nil); err != nil {
		return nil, err
	}
	return p.stages, nil
}

func (p *planner) stageFor(target *lineage.Node, shuffle *types.ShuffleID, wide *lineage.Node) (*Stage, error) {
	s := &Stage{Target: target, Shuffle: shuffle, Wide: wide, NumTasks: target.NumPartitions}
	parents := make(map[*Stage]bool)
	visit := func(n *lineage.Node) error {
		if !n.Transform.Kind.IsWide() {
			return nil
		}
		for i, pid := range n.Parents {
			id := types.ShuffleID{Dataset: n.ID, Parent: i}
			parent, err := p.shuffleStage(id, pid, n)
			if err != nil {
				return err
			}
			s.Inputs = append(s.Inputs, id)
			if !parents[parent] {
				parents[parent] = true
				s.Parents = append(s.Parents, parent)
			}
		}
		return nil
	}
	if err := visit(target); err != nil {
		return nil, err
	}
	narrow := func(n *lineage.Node) bool { return !n.Transform.Kind.IsWide() }
	for it := p.g.Ancestors(target.ID, narrow); it.HasNext(); {
		if err := visit(it.Next()); err != nil {
			return nil, err
		}
	}
	s.ID = len(p.stages)
	p.stages = append(p.stages, s)
	return s, nil
}

func (p *planner) shuffleStage(id types.ShuffleID, parent types.DatasetID, wide *lineage.Node) (*Stage, error) {
	if s, ok := p.byShuffle[id]; ok {
		return s, nil
	}
	n, ok := p.g.Node(parent)
	if !ok {
		return nil, errors.UnknownDatasetError{ID: int64(parent)}
	}
	s, err := p.stageFor(n, &id, wide)
	if err != nil {
		return nil, err
	}
	p.byShuffle[id] = s
	return s, nil
}

// Describe renders a plan, one stage per line
func Describe(stages []*Stage) string {
	var b strings.Builder
	for _, s := range stages {
		fmt.Fprintf(&b, "%s: %d task(s)", s, s.NumTasks)
		if len(s.Parents) > 0 {
			ids := make([]string, len(s.Parents))
			for i, p := range s.Parents {
				ids[i] = fmt.Sprint(p.ID)
			}
			fmt.Fprintf(&b, ", after stage(s) %s", strings.Join(ids, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
