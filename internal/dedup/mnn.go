package dedup

import (
	"fmt"
	"sort"
)

// rankedNeighbor is one admitted pair seen from one of its members.
type rankedNeighbor struct {
	pair      int
	other     string
	composite float64
}

// applyMutualNearestNeighbors keeps an accepted pair only when it is in the
// top-K of both members, ranked by composite descending then by the other
// theme's id. Dropped pairs are marked StageMNNDropped.
func applyMutualNearestNeighbors(pairs []PairRecord, k int) {
	neighbors := make(map[string][]rankedNeighbor)
	for i, pair := range pairs {
		if pair.Stage != StageAccepted {
			continue
		}
		c := pair.composite()
		neighbors[pair.ThemeA] = append(neighbors[pair.ThemeA], rankedNeighbor{pair: i, other: pair.ThemeB, composite: c})
		neighbors[pair.ThemeB] = append(neighbors[pair.ThemeB], rankedNeighbor{pair: i, other: pair.ThemeA, composite: c})
	}

	inTopK := make(map[int]int)
	for _, list := range neighbors {
		sort.Slice(list, func(i, j int) bool {
			if list[i].composite != list[j].composite {
				return list[i].composite > list[j].composite
			}
			return list[i].other < list[j].other
		})
		for rank, n := range list {
			if rank >= k {
				break
			}
			inTopK[n.pair]++
		}
	}

	for i := range pairs {
		if pairs[i].Stage != StageAccepted || inTopK[i] == 2 {
			continue
		}
		demote(&pairs[i], StageMNNDropped, fmt.Sprintf("deny: not a mutual top-%d neighbor", k))
	}
}

// applySubjectCap keeps at most limit accepted pairs per subject, strongest
// first. A cross-subject pair needs room in both subjects and uses both.
func applySubjectCap(pairs []PairRecord, limit int) {
	order := make([]int, 0, len(pairs))
	for i, pair := range pairs {
		if pair.Stage == StageAccepted {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		pi, pj := pairs[order[i]], pairs[order[j]]
		if pi.composite() != pj.composite() {
			return pi.composite() > pj.composite()
		}
		return pi.Key() < pj.Key()
	})

	used := make(map[string]int)
	for _, idx := range order {
		pair := &pairs[idx]
		subjects := []string{pair.SubjectA}
		if pair.SubjectB != pair.SubjectA {
			subjects = append(subjects, pair.SubjectB)
		}

		fits := true
		for _, subject := range subjects {
			if used[subject] >= limit {
				fits = false
				break
			}
		}
		if !fits {
			demote(pair, StageCapped, fmt.Sprintf("deny: subject suggestion cap of %d reached", limit))
			continue
		}
		for _, subject := range subjects {
			used[subject]++
		}
	}
}

// demote moves an accepted pair to a rejected terminal stage, keeping its
// scores for audit.
func demote(pair *PairRecord, stage Stage, rationale string) {
	pair.Decision = DecisionDeny
	pair.Stage = stage
	pair.Rationale = rationale
}
