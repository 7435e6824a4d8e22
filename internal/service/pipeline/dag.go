// Package pipeline implements the pipeline orchestrator: stage plans, gated
// group execution, run history, and scheduling.
package pipeline

import (
	"slices"

	"lakehouse/internal/domain"
)

// GroupPlan is a validated group: stages arranged into dependency levels,
// each level split into batches whose stages write disjoint datasets.
type GroupPlan struct {
	Name    string
	Batches [][]Stage
}

// Stages returns every stage in the group in execution order.
func (g GroupPlan) Stages() []Stage {
	var out []Stage
	for _, b := range g.Batches {
		out = append(out, b...)
	}
	return out
}

// BuildPlan validates stage names and dependencies across the groups and
// orders each group. A stage may depend on stages in its own group or in an
// earlier group.
func BuildPlan(groups []Group) ([]GroupPlan, error) {
	if len(groups) == 0 {
		return nil, domain.ErrValidation("pipeline has no stages")
	}

	groupOf := make(map[string]int)
	for gi, g := range groups {
		if g.Name == "" {
			return nil, domain.ErrValidation("group %d has no name", gi)
		}
		for _, s := range g.Stages {
			if s.Name == "" {
				return nil, domain.ErrValidation("group %s has an unnamed stage", g.Name)
			}
			if s.Work == nil {
				return nil, domain.ErrValidation("stage %s has no work", s.Name)
			}
			if _, dup := groupOf[s.Name]; dup {
				return nil, domain.ErrValidation("duplicate stage: %s", s.Name)
			}
			groupOf[s.Name] = gi
		}
	}

	plans := make([]GroupPlan, 0, len(groups))
	for gi, g := range groups {
		for _, s := range g.Stages {
			for _, dep := range s.DependsOn {
				dg, ok := groupOf[dep]
				switch {
				case !ok:
					return nil, domain.ErrValidation("unknown dependency: %s", dep)
				case dep == s.Name:
					return nil, domain.ErrValidation("self dependency: %s", s.Name)
				case dg > gi:
					return nil, domain.ErrValidation("stage %s depends on %s in a later group", s.Name, dep)
				}
			}
		}
		levels, err := ResolveExecutionOrder(g.Stages)
		if err != nil {
			return nil, err
		}
		plan := GroupPlan{Name: g.Name}
		for _, level := range levels {
			plan.Batches = append(plan.Batches, batchByTargets(level)...)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// ResolveExecutionOrder computes a topological ordering of one group's stages
// using Kahn's algorithm. Dependencies on stages outside the group are
// already satisfied and ignored. Stages within a level keep declaration order.
func ResolveExecutionOrder(stages []Stage) ([][]Stage, error) {
	if len(stages) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(stages))
	for i, s := range stages {
		index[s.Name] = i
	}
	inDegree := make([]int, len(stages))
	dependents := make([][]int, len(stages))
	for i, s := range stages {
		for _, dep := range s.DependsOn {
			di, ok := index[dep]
			if !ok {
				continue
			}
			if di == i {
				return nil, domain.ErrValidation("self dependency: %s", s.Name)
			}
			dependents[di] = append(dependents[di], i)
			inDegree[i]++
		}
	}

	var queue []int
	for i, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, i)
		}
	}

	var levels [][]Stage
	processed := 0
	for len(queue) > 0 {
		level := make([]Stage, len(queue))
		for i, si := range queue {
			level[i] = stages[si]
		}
		levels = append(levels, level)
		processed += len(queue)

		var next []int
		for _, si := range queue {
			for _, d := range dependents[si] {
				inDegree[d]--
				if inDegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		slices.Sort(next)
		queue = next
	}

	if processed != len(stages) {
		return nil, domain.ErrValidation("cycle detected in stage dependencies")
	}
	return levels, nil
}

// batchByTargets splits a level into consecutive batches so that no two
// stages in the same batch write the same dataset.
func batchByTargets(level []Stage) [][]Stage {
	var batches [][]Stage
	var written []map[string]bool
	for _, s := range level {
		placed := false
		for bi := range batches {
			if conflicts(written[bi], s.Work.Targets()) {
				continue
			}
			// Later stages must not jump ahead of an earlier conflicting one.
			if bi < len(batches)-1 && laterConflict(written[bi+1:], s.Work.Targets()) {
				continue
			}
			batches[bi] = append(batches[bi], s)
			for _, t := range s.Work.Targets() {
				written[bi][t] = true
			}
			placed = true
			break
		}
		if !placed {
			w := map[string]bool{}
			for _, t := range s.Work.Targets() {
				w[t] = true
			}
			batches = append(batches, []Stage{s})
			written = append(written, w)
		}
	}
	return batches
}

func conflicts(written map[string]bool, targets []string) bool {
	for _, t := range targets {
		if written[t] {
			return true
		}
	}
	return false
}

func laterConflict(later []map[string]bool, targets []string) bool {
	for _, w := range later {
		if conflicts(w, targets) {
			return true
		}
	}
	return false
}
