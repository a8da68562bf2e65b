// Package roster holds the synthetic people each jurisdiction's simulated
// source reports on.
package roster

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"

	"custodywatch/internal/snapshot"
)

// DefaultSize is the number of people generated per covered jurisdiction.
const DefaultSize = 8

// Roster is a static, read-only table of people by jurisdiction.
type Roster struct {
	people map[string][]snapshot.ParsedRecord
}

// New builds a roster from explicit per-jurisdiction pools. Records are
// copied and sorted by person ID.
func New(pools map[string][]snapshot.ParsedRecord) *Roster {
	r := &Roster{people: make(map[string][]snapshot.ParsedRecord, len(pools))}
	for jid, pool := range pools {
		cp := make([]snapshot.ParsedRecord, len(pool))
		for i, p := range pool {
			cp[i] = p.Clone()
		}
		sort.Slice(cp, func(i, j int) bool { return cp[i].PersonID < cp[j].PersonID })
		r.people[jid] = cp
	}
	return r
}

// Generate builds a roster with size people for each jurisdiction ID, except
// those listed in sparse, which get an empty pool.
func Generate(jurisdictionIDs []string, size int, sparse ...string) *Roster {
	empty := make(map[string]bool, len(sparse))
	for _, id := range sparse {
		empty[id] = true
	}

	pools := make(map[string][]snapshot.ParsedRecord, len(jurisdictionIDs))
	for j, jid := range jurisdictionIDs {
		if empty[jid] {
			pools[jid] = nil
			continue
		}
		pool := make([]snapshot.ParsedRecord, size)
		for i := range size {
			pool[i] = snapshot.ParsedRecord{
				PersonID:       fmt.Sprintf("%s-P%03d", jid, i+1),
				Name:           firstNames[(i*7+j*3)%len(firstNames)] + " " + lastNames[(i*5+j*11)%len(lastNames)],
				JurisdictionID: jid,
				Fields: snapshot.Fields{
					snapshot.FieldAddress: fmt.Sprintf("%d %s", 100+(i*37+j*53)%900, streets[(i+j)%len(streets)]),
				},
			}
		}
		pools[jid] = pool
	}
	return New(pools)
}

// Pick returns a person from the jurisdiction's pool, chosen deterministically
// from seed. It reports false when there is no roster for the jurisdiction.
func (r *Roster) Pick(jurisdictionID string, seed uint64) (snapshot.ParsedRecord, bool) {
	pool := r.people[jurisdictionID]
	if len(pool) == 0 {
		return snapshot.ParsedRecord{}, false
	}
	rng := rand.New(rand.NewPCG(seed, stringSeed(jurisdictionID)))
	return pool[rng.IntN(len(pool))].Clone(), true
}

// Lookup finds a person by ID within a jurisdiction.
func (r *Roster) Lookup(jurisdictionID, personID string) (snapshot.ParsedRecord, bool) {
	pool := r.people[jurisdictionID]
	i := sort.Search(len(pool), func(i int) bool { return pool[i].PersonID >= personID })
	if i < len(pool) && pool[i].PersonID == personID {
		return pool[i].Clone(), true
	}
	return snapshot.ParsedRecord{}, false
}

// People lists a jurisdiction's pool.
func (r *Roster) People(jurisdictionID string) []snapshot.ParsedRecord {
	pool := r.people[jurisdictionID]
	out := make([]snapshot.ParsedRecord, len(pool))
	for i, p := range pool {
		out[i] = p.Clone()
	}
	return out
}

func stringSeed(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

var (
	firstNames = []string{
		"Adrian", "Bianca", "Carlos", "Dana", "Elijah", "Fatima", "Gavin", "Hana",
		"Isaac", "Jolene", "Kendrick", "Lucia", "Marcus", "Nadia", "Oscar", "Priya",
	}
	lastNames = []string{
		"Alvarez", "Brennan", "Castillo", "Dawson", "Ellison", "Fontaine", "Garrison",
		"Holloway", "Iverson", "Jimenez", "Keller", "Lindqvist", "Moreno",
	}
	streets = []string{
		"Oak St", "Main St", "Elm Ave", "Lakeview Dr", "Ridge Rd", "Cedar Ln", "Harbor Blvd",
	}
)
