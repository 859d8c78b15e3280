package evaluate

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// logistic is a binary L2-regularised logistic regression over
// standardised features.
type logistic struct {
	w    []float64
	b    float64
	mean []float64
	std  []float64
}

// design standardises the columns of x and returns them as a dense matrix
// with the column means and population standard deviations used.
func design(x [][]float64) (*mat.Dense, []float64, []float64) {
	n, dim := len(x), len(x[0])
	z := mat.NewDense(n, dim, nil)
	for i, row := range x {
		z.SetRow(i, row)
	}
	mean, std := make([]float64, dim), make([]float64, dim)
	col := make([]float64, n)
	for d := 0; d < dim; d++ {
		mat.Col(col, d, z)
		mean[d], std[d] = stat.PopMeanStdDev(col, nil)
		if std[d] == 0 {
			std[d] = 1
		}
		floats.AddConst(-mean[d], col)
		floats.Scale(1/std[d], col)
		z.SetCol(d, col)
	}
	return z, mean, std
}

// fitLogistic minimises mean log-loss plus ||w||²/(2·C·n) with L-BFGS. The
// parameter vector is the weights followed by the intercept.
func fitLogistic(x [][]float64, y []bool, opts Options) (logistic, error) {
	z, mean, std := design(x)
	n, dim := z.Dims()
	target := mat.NewVecDense(n, nil)
	for i, v := range y {
		if v {
			target.SetVec(i, 1)
		}
	}
	lambda := 1 / (opts.C * float64(n))

	logits := mat.NewVecDense(n, nil)
	resid := mat.NewVecDense(n, nil)
	forward := func(params []float64) {
		logits.MulVec(z, mat.NewVecDense(dim, params[:dim]))
		for i := 0; i < n; i++ {
			logits.SetVec(i, logits.AtVec(i)+params[dim])
		}
	}
	problem := optimize.Problem{
		Func: func(params []float64) float64 {
			forward(params)
			loss := 0.0
			for i := 0; i < n; i++ {
				l := logits.AtVec(i)
				loss += softplus(l) - target.AtVec(i)*l
			}
			w := params[:dim]
			return loss/float64(n) + lambda/2*floats.Dot(w, w)
		},
		Grad: func(grad, params []float64) {
			forward(params)
			for i := 0; i < n; i++ {
				resid.SetVec(i, (sigmoid(logits.AtVec(i))-target.AtVec(i))/float64(n))
			}
			gw := mat.NewVecDense(dim, grad[:dim])
			gw.MulVec(z.T(), resid)
			floats.AddScaled(grad[:dim], lambda, params[:dim])
			grad[dim] = mat.Sum(resid)
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   opts.MaxIter,
		GradientThreshold: 1e-8,
	}
	res, err := optimize.Minimize(problem, make([]float64, dim+1), settings, &optimize.LBFGS{})
	if res == nil {
		return logistic{}, fmt.Errorf("fit logistic regression: %w", err)
	}
	// A run stopped by the iteration limit or a failed line search still
	// carries the best parameters found.
	return logistic{
		w:    append([]float64(nil), res.X[:dim]...),
		b:    res.X[dim],
		mean: mean,
		std:  std,
	}, nil
}

// prob returns P(y=1 | row).
func (m logistic) prob(row []float64) float64 {
	s := m.b
	for d, v := range row {
		s += m.w[d] * (v - m.mean[d]) / m.std[d]
	}
	return sigmoid(s)
}

// oneVsRest trains one logistic model per class column of y.
type oneVsRest struct {
	models []logistic
	// constant[c] holds the fixed answer for a class seen with one value only.
	constant []*bool
}

func fitOneVsRest(ctx context.Context, x [][]float64, y [][]bool, opts Options) (*oneVsRest, error) {
	classes := len(y[0])
	ovr := &oneVsRest{models: make([]logistic, classes), constant: make([]*bool, classes)}
	for c := 0; c < classes; c++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		col := make([]bool, len(y))
		pos := 0
		for i := range y {
			col[i] = y[i][c]
			if col[i] {
				pos++
			}
		}
		if pos == 0 || pos == len(y) {
			v := pos > 0
			ovr.constant[c] = &v
			continue
		}
		m, err := fitLogistic(x, col, opts)
		if err != nil {
			return nil, fmt.Errorf("class %d: %w", c, err)
		}
		ovr.models[c] = m
	}
	return ovr, nil
}

func (o *oneVsRest) probs(row []float64) []float64 {
	out := make([]float64, len(o.models))
	for c := range o.models {
		if k := o.constant[c]; k != nil {
			if *k {
				out[c] = 1
			}
			continue
		}
		out[c] = o.models[c].prob(row)
	}
	return out
}

// predict returns one class per row (argmax) when multiLabel is false and
// every class above one half otherwise.
func (o *oneVsRest) predict(x [][]float64, multiLabel bool) [][]bool {
	out := make([][]bool, len(x))
	for i, row := range x {
		p := o.probs(row)
		out[i] = make([]bool, len(p))
		if multiLabel {
			for c, v := range p {
				out[i][c] = v > 0.5
			}
			continue
		}
		out[i][floats.MaxIdx(p)] = true
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// softplus is log(1+e^x) without overflow for large x.
func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}
