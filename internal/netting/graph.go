package netting

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Kaviyasree25/FinClear-Engine/internal/types"
)

// bucketGraph is the transient obligation graph for one ObligationKey bucket.
// Counterparties are mapped to dense indices in lexical ID order, so all
// iteration orders (and therefore tie-breaks) are stable across runs.
// The graph is rebuilt per bucket and discarded.
type bucketGraph struct {
	key     types.ObligationKey
	parties []string
	index   map[string]int
	// owed[i][j] is the summed amount party i owes party j. Parallel edges
	// are merged here before any reduction.
	owed [][]decimal.Decimal
	// trades maps an unordered pair (lower index first) to the ordered list
	// of contributing trade IDs between the two parties.
	trades map[[2]int][]string
}

func newBucketGraph(key types.ObligationKey, trades []types.TradeRecord) *bucketGraph {
	seen := make(map[string]struct{})
	var parties []string
	for _, t := range trades {
		for _, p := range []string{t.Buyer, t.Seller} {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				parties = append(parties, p)
			}
		}
	}
	sort.Strings(parties)

	index := make(map[string]int, len(parties))
	for i, p := range parties {
		index[p] = i
	}

	n := len(parties)
	owed := make([][]decimal.Decimal, n)
	for i := range owed {
		owed[i] = make([]decimal.Decimal, n)
	}

	g := &bucketGraph{
		key:     key,
		parties: parties,
		index:   index,
		owed:    owed,
		trades:  make(map[[2]int][]string),
	}

	for _, t := range trades {
		buyer, seller := index[t.Buyer], index[t.Seller]
		g.owed[buyer][seller] = g.owed[buyer][seller].Add(t.Notional)
		pk := pairOf(buyer, seller)
		g.trades[pk] = append(g.trades[pk], t.TradeID)
	}
	return g
}

func pairOf(a, b int) [2]int {
	if b < a {
		a, b = b, a
	}
	return [2]int{a, b}
}

// netPositions returns each party's receivable-minus-payable total over the
// current edges. Both reduction steps must leave this vector unchanged; that
// is the conservation law.
func (g *bucketGraph) netPositions() []decimal.Decimal {
	positions := make([]decimal.Decimal, len(g.parties))
	for i := range g.owed {
		for j, amount := range g.owed[i] {
			if amount.IsZero() {
				continue
			}
			positions[i] = positions[i].Sub(amount)
			positions[j] = positions[j].Add(amount)
		}
	}
	return positions
}

// reduceBilateral replaces each pair's opposing edges with a single net edge
// in the direction of the larger amount. Exactly equal amounts cancel fully
// and leave no edge.
func (g *bucketGraph) reduceBilateral() {
	for i := range g.parties {
		for j := i + 1; j < len(g.parties); j++ {
			ab, ba := g.owed[i][j], g.owed[j][i]
			if ab.IsZero() && ba.IsZero() {
				continue
			}
			switch ab.Cmp(ba) {
			case 1:
				g.owed[i][j] = ab.Sub(ba)
				g.owed[j][i] = decimal.Zero
			case -1:
				g.owed[j][i] = ba.Sub(ab)
				g.owed[i][j] = decimal.Zero
			default:
				g.owed[i][j] = decimal.Zero
				g.owed[j][i] = decimal.Zero
			}
		}
	}
}

// cancelCycles removes every directed cycle by subtracting the cycle's
// minimum edge weight from each of its edges, zeroed edges dropping out.
// Cycles are searched from the lowest party index following outgoing edges
// in ascending index order, so equal-weight cycles are always consumed in
// the same order.
func (g *bucketGraph) cancelCycles() {
	for {
		cycle := g.findCycle()
		if cycle == nil {
			return
		}

		min := g.cycleMin(cycle)
		for k := range cycle {
			u, v := cycle[k], cycle[(k+1)%len(cycle)]
			g.owed[u][v] = g.owed[u][v].Sub(min)
		}
	}
}

func (g *bucketGraph) cycleMin(cycle []int) decimal.Decimal {
	min := g.owed[cycle[0]][cycle[1]]
	for k := 1; k < len(cycle); k++ {
		u, v := cycle[k], cycle[(k+1)%len(cycle)]
		if g.owed[u][v].LessThan(min) {
			min = g.owed[u][v]
		}
	}
	return min
}

// findCycle returns the node sequence of one directed cycle over positive
// edges, or nil when the graph is acyclic.
func (g *bucketGraph) findCycle() []int {
	n := len(g.parties)
	const (
		white = iota
		gray
		black
	)
	state := make([]int, n)
	var path []int
	var cycle []int

	var dfs func(u int) bool
	dfs = func(u int) bool {
		state[u] = gray
		path = append(path, u)
		for v := 0; v < n; v++ {
			if !g.owed[u][v].IsPositive() {
				continue
			}
			if state[v] == gray {
				for k, node := range path {
					if node == v {
						cycle = append([]int(nil), path[k:]...)
						break
					}
				}
				return true
			}
			if state[v] == white && dfs(v) {
				return true
			}
		}
		path = path[:len(path)-1]
		state[u] = black
		return false
	}

	for start := 0; start < n; start++ {
		if state[start] == white && dfs(start) {
			return cycle
		}
	}
	return nil
}

// emit produces one NetObligation per surviving positive edge, ordered by
// payer then payee, plus an audit marker for every pair whose trades
// cancelled out entirely.
func (g *bucketGraph) emit(batchID string) ([]types.NetObligation, []types.CancelledPair) {
	var obligations []types.NetObligation
	surviving := make(map[[2]int]bool)

	for i := range g.parties {
		for j := range g.parties {
			amount := g.owed[i][j]
			if !amount.IsPositive() {
				continue
			}
			surviving[pairOf(i, j)] = true
			payer, payee := g.parties[i], g.parties[j]
			obligations = append(obligations, types.NetObligation{
				ObligationID:       obligationID(g.key, payer, payee),
				BatchID:            batchID,
				SettlementDay:      g.key.SettlementDay,
				Currency:           g.key.Currency,
				Payer:              payer,
				Payee:              payee,
				Amount:             amount,
				ContributingTrades: append([]string(nil), g.trades[pairOf(i, j)]...),
			})
		}
	}

	var cancelled []types.CancelledPair
	pairs := make([][2]int, 0, len(g.trades))
	for pk := range g.trades {
		pairs = append(pairs, pk)
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a][0] != pairs[b][0] {
			return pairs[a][0] < pairs[b][0]
		}
		return pairs[a][1] < pairs[b][1]
	})
	for _, pk := range pairs {
		if surviving[pk] {
			continue
		}
		cancelled = append(cancelled, types.CancelledPair{
			BatchID:            batchID,
			SettlementDay:      g.key.SettlementDay,
			Currency:           g.key.Currency,
			PartyA:             g.parties[pk[0]],
			PartyB:             g.parties[pk[1]],
			ContributingTrades: append([]string(nil), g.trades[pk]...),
		})
	}

	return obligations, cancelled
}

// obligationID derives a stable ID from the bucket key and direction, so
// netting the same input twice yields identical obligations.
func obligationID(key types.ObligationKey, payer, payee string) string {
	seed := []byte(key.String() + "|" + payer + "|" + payee)
	return "OBL_" + uuid.NewSHA1(uuid.NameSpaceOID, seed).String()
}
