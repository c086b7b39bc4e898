package dedup

import (
	"sort"
	"unicode/utf8"

	"horse.fit/themedup/internal/embedding"
)

// disjointSet is a union-find over profile indexes.
type disjointSet struct {
	parent []int
	size   []int
}

func newDisjointSet(n int) *disjointSet {
	d := &disjointSet{parent: make([]int, n), size: make([]int, n)}
	for i := range d.parent {
		d.parent[i] = i
		d.size[i] = 1
	}
	return d
}

func (d *disjointSet) find(x int) int {
	for d.parent[x] != x {
		d.parent[x] = d.parent[d.parent[x]]
		x = d.parent[x]
	}
	return x
}

func (d *disjointSet) union(x, y int) {
	rx, ry := d.find(x), d.find(y)
	if rx == ry {
		return
	}
	if d.size[rx] < d.size[ry] || (d.size[rx] == d.size[ry] && ry < rx) {
		rx, ry = ry, rx
	}
	d.parent[ry] = rx
	d.size[rx] += d.size[ry]
}

type edge struct {
	a, b   int
	weight float64
}

// group is a set of profile indexes, sorted ascending (so by theme id),
// together with the accepted edges among them.
type group struct {
	members []int
	edges   []edge
}

type demotion struct {
	index   int
	reason  Stage
	related []int
}

// connectedGroups returns the connected components of edges over members,
// ordered by their smallest member.
func connectedGroups(members []int, edges []edge, n int) []group {
	set := newDisjointSet(n)
	for _, e := range edges {
		set.union(e.a, e.b)
	}

	byRoot := make(map[int]*group)
	roots := make([]int, 0)
	sorted := append([]int(nil), members...)
	sort.Ints(sorted)
	for _, m := range sorted {
		root := set.find(m)
		g, ok := byRoot[root]
		if !ok {
			g = &group{}
			byRoot[root] = g
			roots = append(roots, root)
		}
		g.members = append(g.members, m)
	}
	for _, e := range edges {
		g := byRoot[set.find(e.a)]
		g.edges = append(g.edges, e)
	}

	out := make([]group, 0, len(roots))
	for _, root := range roots {
		out = append(out, *byRoot[root])
	}
	return out
}

// boundGroup enforces the cluster size cap on one connected group. Oversized
// groups are split on their dominant shared entity; when no entity splits
// them, the strongest connected members are kept and the rest demoted.
func boundGroup(g group, profiles []*profile, maxSize int) ([]group, []demotion) {
	if len(g.members) <= maxSize {
		return []group{g}, nil
	}

	entity, ok := dominantEntity(g.members, profiles)
	if !ok {
		kept, overflow := keepStrongest(g, maxSize)
		demoted := make([]demotion, 0, len(overflow))
		for _, m := range overflow {
			demoted = append(demoted, demotion{index: m, reason: StageClusterOverflow, related: kept.members})
		}
		return []group{kept}, demoted
	}

	var with, without []int
	for _, m := range g.members {
		if profiles[m].features.Entities.Has(entity) {
			with = append(with, m)
		} else {
			without = append(without, m)
		}
	}

	var groups []group
	var demoted []demotion
	for _, side := range [][]int{with, without} {
		for _, sub := range connectedGroups(side, edgesWithin(side, g.edges), len(profiles)) {
			if len(sub.members) == 1 {
				demoted = append(demoted, demotion{index: sub.members[0], reason: StageClusterSplit, related: otherMembers(g.members, sub.members[0])})
				continue
			}
			subGroups, subDemoted := boundGroup(sub, profiles, maxSize)
			groups = append(groups, subGroups...)
			demoted = append(demoted, subDemoted...)
		}
	}
	return groups, demoted
}

// dominantEntity picks the entity mentioned by the most members, provided it
// actually divides the group. Ties go to the lexically first entity.
func dominantEntity(members []int, profiles []*profile) (string, bool) {
	counts := make(map[string]int)
	for _, m := range members {
		for entity := range profiles[m].features.Entities {
			counts[entity]++
		}
	}

	best, bestCount := "", 0
	for entity, count := range counts {
		if count < 2 || count >= len(members) {
			continue
		}
		if count > bestCount || (count == bestCount && entity < best) {
			best, bestCount = entity, count
		}
	}
	return best, bestCount > 0
}

// keepStrongest grows a connected set from the member with the largest total
// edge weight, each step adding the member most strongly tied to the set.
func keepStrongest(g group, maxSize int) (group, []int) {
	strength := make(map[int]float64, len(g.members))
	for _, e := range g.edges {
		strength[e.a] += e.weight
		strength[e.b] += e.weight
	}

	better := func(x, y int, wx, wy float64) bool {
		if wx != wy {
			return wx > wy
		}
		if strength[x] != strength[y] {
			return strength[x] > strength[y]
		}
		return x < y
	}

	seed := g.members[0]
	for _, m := range g.members[1:] {
		if better(m, seed, strength[m], strength[seed]) {
			seed = m
		}
	}

	selected := map[int]bool{seed: true}
	for len(selected) < maxSize {
		tie := make(map[int]float64)
		for _, e := range g.edges {
			switch {
			case selected[e.a] && !selected[e.b]:
				tie[e.b] += e.weight
			case selected[e.b] && !selected[e.a]:
				tie[e.a] += e.weight
			}
		}
		if len(tie) == 0 {
			break
		}
		next, found := 0, false
		for _, m := range g.members {
			w, ok := tie[m]
			if !ok {
				continue
			}
			if !found || better(m, next, w, tie[next]) {
				next, found = m, true
			}
		}
		selected[next] = true
	}

	var kept group
	var overflow []int
	for _, m := range g.members {
		if selected[m] {
			kept.members = append(kept.members, m)
		} else {
			overflow = append(overflow, m)
		}
	}
	kept.edges = edgesWithin(kept.members, g.edges)
	return kept, overflow
}

func edgesWithin(members []int, edges []edge) []edge {
	in := make(map[int]bool, len(members))
	for _, m := range members {
		in[m] = true
	}
	out := make([]edge, 0, len(edges))
	for _, e := range edges {
		if in[e.a] && in[e.b] {
			out = append(out, e)
		}
	}
	return out
}

func otherMembers(members []int, exclude int) []int {
	out := make([]int, 0, len(members)-1)
	for _, m := range members {
		if m != exclude {
			out = append(out, m)
		}
	}
	return out
}

// electCanonical returns the member nearest the centroid. Ties go to the
// longer statement, then the lexically first statement, then the lower id.
func electCanonical(members []int, profiles []*profile) (int, []float64) {
	vectors := make([][]float64, 0, len(members))
	for _, m := range members {
		vectors = append(vectors, profiles[m].vector)
	}
	centroid := embedding.Centroid(vectors)

	best := members[0]
	bestSim := embedding.Cosine(profiles[best].vector, centroid)
	for _, m := range members[1:] {
		sim := embedding.Cosine(profiles[m].vector, centroid)
		if closerCanonical(profiles[m], profiles[best], sim, bestSim) {
			best, bestSim = m, sim
		}
	}
	return best, centroid
}

const canonicalEpsilon = 1e-9

func closerCanonical(p, current *profile, sim, currentSim float64) bool {
	if sim > currentSim+canonicalEpsilon {
		return true
	}
	if sim < currentSim-canonicalEpsilon {
		return false
	}
	ps, cs := p.theme.Statement, current.theme.Statement
	if lp, lc := utf8.RuneCountInString(ps), utf8.RuneCountInString(cs); lp != lc {
		return lp > lc
	}
	if ps != cs {
		return ps < cs
	}
	return p.id() < current.id()
}
