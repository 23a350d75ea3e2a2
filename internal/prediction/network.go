package prediction

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-7
)

// denseLayer is a fully connected layer holding its weights and Adam moments
type denseLayer struct {
	weights *mat.Dense // out x in
	bias    []float64
	relu    bool

	mW, vW *mat.Dense
	mB, vB []float64

	// cached by forward for the backward pass
	input  *mat.Dense
	preAct *mat.Dense
	mask   *mat.Dense
}

func newDenseLayer(in, out int, relu bool, rng *rand.Rand) *denseLayer {
	limit := math.Sqrt(6 / float64(in+out))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}

	return &denseLayer{
		weights: mat.NewDense(out, in, data),
		bias:    make([]float64, out),
		relu:    relu,
		mW:      mat.NewDense(out, in, nil),
		vW:      mat.NewDense(out, in, nil),
		mB:      make([]float64, out),
		vB:      make([]float64, out),
	}
}

// network is a small feed-forward regressor: ReLU hidden layers and a linear output
type network struct {
	layers  []*denseLayer
	dropout float64
	step    int
}

func newNetwork(inputs int, hidden []int, dropout float64, rng *rand.Rand) *network {
	n := &network{dropout: dropout}
	prev := inputs
	for _, units := range hidden {
		n.layers = append(n.layers, newDenseLayer(prev, units, true, rng))
		prev = units
	}
	n.layers = append(n.layers, newDenseLayer(prev, 1, false, rng))
	return n
}

// forward runs a batch (rows = samples) through the network. A non-nil rng
// marks a training pass: dropout is applied after every hidden layer and the
// intermediate values backward needs are cached on the layers. Inference
// passes (rng == nil) do not write to the network.
func (n *network) forward(x *mat.Dense, rng *rand.Rand) *mat.Dense {
	training := rng != nil
	a := x
	for i, l := range n.layers {
		var z mat.Dense
		z.Mul(a, l.weights.T())
		z.Apply(func(_, j int, v float64) float64 { return v + l.bias[j] }, &z)
		if training {
			l.input = a
			l.preAct = &z
			l.mask = nil
		}

		out := mat.DenseCopyOf(&z)
		if l.relu {
			out.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, out)
		}

		if training && n.dropout > 0 && i < len(n.layers)-1 {
			rows, cols := out.Dims()
			keep := 1 - n.dropout
			mask := mat.NewDense(rows, cols, nil)
			mask.Apply(func(_, _ int, _ float64) float64 {
				if rng.Float64() < keep {
					return 1 / keep
				}
				return 0
			}, mask)
			out.MulElem(out, mask)
			l.mask = mask
		}

		a = out
	}
	return a
}

// backward propagates dLoss/dOutput and applies one Adam update
func (n *network) backward(grad *mat.Dense, learningRate float64) {
	n.step++
	t := float64(n.step)
	correction1 := 1 - math.Pow(adamBeta1, t)
	correction2 := 1 - math.Pow(adamBeta2, t)

	for i := len(n.layers) - 1; i >= 0; i-- {
		l := n.layers[i]

		dz := mat.DenseCopyOf(grad)
		if l.mask != nil {
			dz.MulElem(dz, l.mask)
		}
		if l.relu {
			dz.Apply(func(r, c int, v float64) float64 {
				if l.preAct.At(r, c) <= 0 {
					return 0
				}
				return v
			}, dz)
		}

		var dW mat.Dense
		dW.Mul(dz.T(), l.input)

		rows, cols := dz.Dims()
		dB := make([]float64, cols)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				dB[c] += dz.At(r, c)
			}
		}

		if i > 0 {
			var next mat.Dense
			next.Mul(dz, l.weights)
			grad = &next
		}

		adamUpdate(l.weights.RawMatrix().Data, dW.RawMatrix().Data, l.mW.RawMatrix().Data, l.vW.RawMatrix().Data, learningRate, correction1, correction2)
		adamUpdate(l.bias, dB, l.mB, l.vB, learningRate, correction1, correction2)
	}
}

func adamUpdate(params, grads, m, v []float64, lr, c1, c2 float64) {
	for i, g := range grads {
		m[i] = adamBeta1*m[i] + (1-adamBeta1)*g
		v[i] = adamBeta2*v[i] + (1-adamBeta2)*g*g
		params[i] -= lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + adamEpsilon)
	}
}

// predictOne runs a single input row without dropout
func (n *network) predictOne(in []float64) float64 {
	x := mat.NewDense(1, len(in), in)
	return n.forward(x, nil).At(0, 0)
}

// mseLoss returns the mean squared error and its gradient w.r.t. the output
func mseLoss(out *mat.Dense, targets []float64) (float64, *mat.Dense) {
	rows, _ := out.Dims()
	grad := mat.NewDense(rows, 1, nil)
	var loss float64
	for r := 0; r < rows; r++ {
		diff := out.At(r, 0) - targets[r]
		loss += diff * diff
		grad.Set(r, 0, 2*diff/float64(rows))
	}
	return loss / float64(rows), grad
}

type layerSnapshot struct {
	Rows    int       `json:"rows"`
	Cols    int       `json:"cols"`
	Weights []float64 `json:"weights"`
	Bias    []float64 `json:"bias"`
	ReLU    bool      `json:"relu"`
}

func (n *network) snapshot() []layerSnapshot {
	out := make([]layerSnapshot, len(n.layers))
	for i, l := range n.layers {
		rows, cols := l.weights.Dims()
		weights := make([]float64, 0, rows*cols)
		for r := 0; r < rows; r++ {
			weights = append(weights, l.weights.RawRowView(r)...)
		}
		bias := make([]float64, len(l.bias))
		copy(bias, l.bias)
		out[i] = layerSnapshot{Rows: rows, Cols: cols, Weights: weights, Bias: bias, ReLU: l.relu}
	}
	return out
}

func networkFromSnapshot(layers []layerSnapshot, dropout float64) (*network, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("snapshot has no layers")
	}

	n := &network{dropout: dropout}
	prev := inputSize
	for i, ls := range layers {
		if ls.Cols != prev || len(ls.Weights) != ls.Rows*ls.Cols || len(ls.Bias) != ls.Rows {
			return nil, fmt.Errorf("snapshot layer %d has inconsistent shape", i)
		}
		weights := make([]float64, len(ls.Weights))
		copy(weights, ls.Weights)
		bias := make([]float64, len(ls.Bias))
		copy(bias, ls.Bias)

		n.layers = append(n.layers, &denseLayer{
			weights: mat.NewDense(ls.Rows, ls.Cols, weights),
			bias:    bias,
			relu:    ls.ReLU,
			mW:      mat.NewDense(ls.Rows, ls.Cols, nil),
			vW:      mat.NewDense(ls.Rows, ls.Cols, nil),
			mB:      make([]float64, ls.Rows),
			vB:      make([]float64, ls.Rows),
		})
		prev = ls.Rows
	}
	if prev != 1 {
		return nil, fmt.Errorf("snapshot output width is %d, expected 1", prev)
	}
	return n, nil
}
