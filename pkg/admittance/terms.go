package admittance

import (
	"math"

	"github.com/edp1096/toy-powerflow/pkg/network"
)

// State is a polar voltage state indexed by column: node positions first,
// then source internal buses.
type State struct {
	V     []float64
	Theta []float64
}

// FlatState returns V = 1, theta = angle for n columns.
func FlatState(n int, angle float64) State {
	st := State{V: make([]float64, n), Theta: make([]float64, n)}
	for i := range st.V {
		st.V[i] = 1
		st.Theta[i] = angle
	}
	return st
}

func (st State) Clone() State {
	return State{V: append([]float64(nil), st.V...), Theta: append([]float64(nil), st.Theta...)}
}

// Phasors returns the complex voltages of the state.
func (st State) Phasors() []complex128 {
	u := make([]complex128, len(st.V))
	for i := range u {
		u[i] = complex(st.V[i]*math.Cos(st.Theta[i]), st.V[i]*math.Sin(st.Theta[i]))
	}
	return u
}

// Partial holds the derivatives of P and Q with respect to the angle and
// magnitude of one bus.
type Partial struct {
	Node     int
	DPdTheta float64
	DPdV     float64
	DQdTheta float64
	DQdV     float64
}

// Terms is a computed P, Q pair with its gradient.
type Terms struct {
	P, Q     float64
	Partials []Partial
}

func (t *Terms) partial(node int) *Partial {
	for k := range t.Partials {
		if t.Partials[k].Node == node {
			return &t.Partials[k]
		}
	}
	t.Partials = append(t.Partials, Partial{Node: node})
	return &t.Partials[len(t.Partials)-1]
}

// Partial returns the derivatives with respect to bus node, zero if the
// terms do not depend on it.
func (t Terms) Partial(node int) Partial {
	for _, p := range t.Partials {
		if p.Node == node {
			return p
		}
	}
	return Partial{Node: node}
}

// S_i = U_i * conj(sum_j Y_ij U_j), expanded term by term in polar form.
func terms(i int, row []Entry, st State) Terms {
	t := Terms{Partials: make([]Partial, 0, len(row))}
	vi := st.V[i]
	for _, e := range row {
		g, b := real(e.Value), imag(e.Value)
		if e.Col == i {
			t.P += vi * vi * g
			t.Q -= vi * vi * b
			p := t.partial(i)
			p.DPdV += 2 * vi * g
			p.DQdV -= 2 * vi * b
			continue
		}

		j := e.Col
		vj := st.V[j]
		sin, cos := math.Sincos(st.Theta[i] - st.Theta[j])
		pt := vi * vj * (g*cos + b*sin)
		qt := vi * vj * (g*sin - b*cos)
		t.P += pt
		t.Q += qt

		pi := t.partial(i)
		pi.DPdTheta -= qt
		pi.DQdTheta += pt
		if vi != 0 {
			pi.DPdV += pt / vi
			pi.DQdV += qt / vi
		}

		pj := t.partial(j)
		pj.DPdTheta += qt
		pj.DQdTheta -= pt
		if vj != 0 {
			pj.DPdV += pt / vj
			pj.DQdV += qt / vj
		}
	}
	return t
}

// InjectionTerms returns the power injected into the network at node i.
func (b *Bus) InjectionTerms(i int, st State) Terms {
	return terms(i, b.Rows[i], st)
}

// BranchTerms returns the power entering line k at the given side.
func (b *Bus) BranchTerms(k int, side network.TerminalType, st State) Terms {
	br := b.Branches[k]
	if side == network.BranchTo {
		return terms(br.To, []Entry{{Col: br.To, Value: br.YTT}, {Col: br.From, Value: br.YTF}}, st)
	}
	return terms(br.From, []Entry{{Col: br.From, Value: br.YFF}, {Col: br.To, Value: br.YFT}}, st)
}
