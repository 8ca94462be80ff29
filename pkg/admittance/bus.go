package admittance

import (
	"math"
	"math/cmplx"
	"slices"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

// Entry is one non-zero of a Y row.
type Entry struct {
	Col   int
	Value complex128
}

// Branch is the 2x2 admittance of a line in p.u., between node positions
// From and To:
//
//	[I_f]   [YFF YFT] [U_f]
//	[I_t] = [YTF YTT] [U_t]
type Branch struct {
	From, To           int
	YFF, YFT, YTF, YTT complex128
}

// SourceBus is the internal bus of a connected source: an ideal voltage
// behind Y, attached to node Node.
type SourceBus struct {
	Source int // position in the network's sources
	Node   int
	Bus    int // column index, Size + k
	Y      complex128
	U      complex128
}

// Bus is the sparse node admittance matrix of a network, indexed by node
// position. Columns beyond Size refer to source internal buses.
type Bus struct {
	Size     int
	Rows     [][]Entry
	Branches []Branch
	Sources  []SourceBus
}

// LineAdmittance returns the pi model of line i. An open side removes its
// row and column; with one side open the series branch and far shunt reduce
// to a shunt on the closed side.
func LineAdmittance(net *network.Network, i int) Branch {
	l := net.Line(i)
	from, to := net.LineNodes(i)
	br := Branch{From: from, To: to}
	if !l.FromStatus && !l.ToStatus {
		return br
	}

	zBase := net.BaseImpedance(from)
	ys := complex(zBase, 0) / complex(l.R1, l.X1)
	yHalf := complex(l.Tan1, 1) * complex(consts.Omega*l.C1*zBase/2, 0)

	switch {
	case l.FromStatus && l.ToStatus:
		br.YFF = ys + yHalf
		br.YFT = -ys
		br.YTF = -ys
		br.YTT = ys + yHalf
	case l.FromStatus:
		br.YFF = yHalf + seriesShunt(ys, yHalf)
	default:
		br.YTT = yHalf + seriesShunt(ys, yHalf)
	}
	return br
}

func seriesShunt(ys, ysh complex128) complex128 {
	if ys+ysh == 0 {
		return 0
	}
	return ys * ysh / (ys + ysh)
}

// SourceAdmittance returns the internal admittance of a source in p.u.
func SourceAdmittance(s network.Source) complex128 {
	sk := s.Sk
	if sk == 0 {
		sk = consts.SourceSk
	}
	rx := consts.SourceRxRatio
	if s.RxRatio != nil {
		rx = *s.RxRatio
	}
	z := complex(consts.BasePower/sk/math.Sqrt(1+rx*rx), 0) * complex(rx, 1)
	return 1 / z
}

// LoadAdmittance returns the constant impedance equivalent of a load at
// rated voltage, in p.u. Disconnected loads return 0.
func LoadAdmittance(l network.SymLoad) complex128 {
	if !l.Status {
		return 0
	}
	return complex(l.PSpecified/consts.BasePower, -l.QSpecified/consts.BasePower)
}

// LoadPower returns the consumed power of a load at voltage magnitude v and
// its derivatives with respect to v, in p.u.
func LoadPower(l network.SymLoad, v float64) (p, q, dp, dq float64) {
	if !l.Status {
		return 0, 0, 0, 0
	}
	k := l.Type.Exponent()
	p0 := l.PSpecified / consts.BasePower
	q0 := l.QSpecified / consts.BasePower
	scale := math.Pow(v, k)
	p, q = p0*scale, q0*scale
	if k != 0 {
		d := k * math.Pow(v, k-1)
		dp, dq = p0*d, q0*d
	}
	return p, q, dp, dq
}

type rowBuilder []map[int]complex128

func (r rowBuilder) add(i, j int, v complex128) {
	r[i][j] += v
}

// Build assembles Y of the network without source impedances.
func Build(net *network.Network) *Bus {
	n := net.Count(network.KindNode)
	rows := make(rowBuilder, n)
	for i := range rows {
		rows[i] = map[int]complex128{i: 0}
	}

	bus := &Bus{Size: n, Branches: make([]Branch, net.Count(network.KindLine))}
	for i := range bus.Branches {
		br := LineAdmittance(net, i)
		bus.Branches[i] = br
		l := net.Line(i)
		if !l.FromStatus && !l.ToStatus {
			continue
		}
		rows.add(br.From, br.From, br.YFF)
		rows.add(br.To, br.To, br.YTT)
		if l.Closed() {
			rows.add(br.From, br.To, br.YFT)
			rows.add(br.To, br.From, br.YTF)
		}
	}

	bus.Rows = rows.entries()
	return bus
}

// BuildWithSources assembles Y and appends an internal bus per connected
// source. The source admittance lands on its node's diagonal and the
// coupling to the internal bus in column Size + k.
func BuildWithSources(net *network.Network) *Bus {
	bus := Build(net)
	rows := make(rowBuilder, bus.Size)
	for i, row := range bus.Rows {
		rows[i] = make(map[int]complex128, len(row)+1)
		for _, e := range row {
			rows[i][e.Col] = e.Value
		}
	}

	for i := 0; i < net.Count(network.KindSource); i++ {
		s := net.Source(i)
		if !s.Status {
			continue
		}
		node := net.SourceNode(i)
		sb := SourceBus{
			Source: i,
			Node:   node,
			Bus:    bus.Size + len(bus.Sources),
			Y:      SourceAdmittance(s),
			U:      complex(s.URef*math.Cos(s.URefAngle), s.URef*math.Sin(s.URefAngle)),
		}
		rows.add(node, node, sb.Y)
		rows.add(node, sb.Bus, -sb.Y)
		bus.Sources = append(bus.Sources, sb)
	}

	bus.Rows = rows.entries()
	return bus
}

func (r rowBuilder) entries() [][]Entry {
	out := make([][]Entry, len(r))
	for i, m := range r {
		row := make([]Entry, 0, len(m))
		for col, v := range m {
			row = append(row, Entry{Col: col, Value: v})
		}
		slices.SortFunc(row, func(a, b Entry) int { return a.Col - b.Col })
		out[i] = row
	}
	return out
}

// Diagonal returns Y_ii.
func (b *Bus) Diagonal(i int) complex128 {
	for _, e := range b.Rows[i] {
		if e.Col == i {
			return e.Value
		}
	}
	return 0
}

// Current returns the current leaving node i into the network, sum_j Y_ij U_j.
// u must cover every column of the row, including internal buses.
func (b *Bus) Current(i int, u []complex128) complex128 {
	var sum complex128
	for _, e := range b.Rows[i] {
		sum += e.Value * u[e.Col]
	}
	return sum
}

// Flow returns the complex power and current entering line i at a side.
func (br Branch) Flow(side network.TerminalType, u []complex128) (s, i complex128) {
	if side == network.BranchTo {
		i = br.YTF*u[br.From] + br.YTT*u[br.To]
		return u[br.To] * cmplx.Conj(i), i
	}
	i = br.YFF*u[br.From] + br.YFT*u[br.To]
	return u[br.From] * cmplx.Conj(i), i
}
