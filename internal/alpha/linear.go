package alpha

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// linearModel implements ridge, lasso and elastic-net regression. Ridge is
// solved in closed form from the normal equations; the L1 variants use
// cyclic coordinate descent with soft thresholding.
type linearModel struct {
	kind    Family
	alpha   float64
	l1Ratio float64 // 0 = pure L2, 1 = pure L1

	coef      []float64
	intercept float64
}

const (
	cdMaxIter = 1000
	cdTol     = 1e-7
)

func (m *linearModel) Fit(X [][]float64, y []float64) error {
	n := len(X)
	if n == 0 || n != len(y) {
		return fmt.Errorf("linear fit: %d rows vs %d labels", n, len(y))
	}
	p := len(X[0])

	// Center so the intercept drops out of the penalty.
	xMean := make([]float64, p)
	for _, row := range X {
		for j, v := range row {
			xMean[j] += v
		}
	}
	for j := range xMean {
		xMean[j] /= float64(n)
	}
	var yMean float64
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)

	xc := mat.NewDense(n, p, nil)
	yc := make([]float64, n)
	for i, row := range X {
		for j, v := range row {
			xc.Set(i, j, v-xMean[j])
		}
		yc[i] = y[i] - yMean
	}

	var err error
	if m.kind == FamilyRidge {
		m.coef, err = solveRidge(xc, yc, m.alpha)
	} else {
		m.coef = solveCoordinateDescent(xc, yc, m.alpha, m.l1Ratio)
	}
	if err != nil {
		return err
	}

	m.intercept = yMean
	for j := range m.coef {
		m.intercept -= m.coef[j] * xMean[j]
	}
	return nil
}

func (m *linearModel) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		v := m.intercept
		for j, c := range m.coef {
			v += c * row[j]
		}
		out[i] = v
	}
	return out
}

// FeatureImportance is the absolute coefficient magnitude.
func (m *linearModel) FeatureImportance() []float64 {
	out := make([]float64, len(m.coef))
	for j, c := range m.coef {
		out[j] = math.Abs(c)
	}
	return out
}

// solveRidge solves (XᵀX + αI)β = Xᵀy.
func solveRidge(X *mat.Dense, y []float64, alpha float64) ([]float64, error) {
	_, p := X.Dims()
	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	for j := 0; j < p; j++ {
		xtx.Set(j, j, xtx.At(j, j)+alpha)
	}
	var xty mat.VecDense
	xty.MulVec(X.T(), mat.NewVecDense(len(y), y))

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return nil, fmt.Errorf("ridge solve: %w", err)
	}
	coef := make([]float64, p)
	for j := 0; j < p; j++ {
		coef[j] = beta.AtVec(j)
	}
	return coef, nil
}

// solveCoordinateDescent minimizes
//
//	(1/2n)·||y − Xβ||² + α·(l1·||β||₁ + (1−l1)/2·||β||²)
//
// with cyclic updates until the largest coefficient change falls below tol.
func solveCoordinateDescent(X *mat.Dense, y []float64, alpha, l1Ratio float64) []float64 {
	n, p := X.Dims()
	nf := float64(n)

	colNorm := make([]float64, p)
	for j := 0; j < p; j++ {
		for i := 0; i < n; i++ {
			v := X.At(i, j)
			colNorm[j] += v * v
		}
		colNorm[j] /= nf
	}

	beta := make([]float64, p)
	resid := make([]float64, n)
	copy(resid, y)

	l1Pen := alpha * l1Ratio
	l2Pen := alpha * (1 - l1Ratio)

	for iter := 0; iter < cdMaxIter; iter++ {
		maxDelta := 0.0
		for j := 0; j < p; j++ {
			if colNorm[j] == 0 {
				continue
			}
			// Partial residual correlation with column j.
			var rho float64
			for i := 0; i < n; i++ {
				rho += X.At(i, j) * (resid[i] + X.At(i, j)*beta[j])
			}
			rho /= nf

			updated := softThreshold(rho, l1Pen) / (colNorm[j] + l2Pen)
			if delta := updated - beta[j]; delta != 0 {
				for i := 0; i < n; i++ {
					resid[i] -= X.At(i, j) * delta
				}
				if ad := math.Abs(delta); ad > maxDelta {
					maxDelta = ad
				}
				beta[j] = updated
			}
		}
		if maxDelta < cdTol {
			break
		}
	}
	return beta
}

func softThreshold(v, threshold float64) float64 {
	switch {
	case v > threshold:
		return v - threshold
	case v < -threshold:
		return v + threshold
	default:
		return 0
	}
}
