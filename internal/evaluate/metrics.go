package evaluate

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// F1Micro pools true positives, false positives and false negatives over
// all classes. truth and pred are row-aligned indicator matrices. For
// single-label rows it equals accuracy.
func F1Micro(truth, pred [][]bool) (float64, error) {
	tp, fp, fn, err := confusion(truth, pred)
	if err != nil {
		return 0, err
	}
	var t, p, n int
	for c := range tp {
		t += tp[c]
		p += fp[c]
		n += fn[c]
	}
	return f1(t, p, n), nil
}

// F1Macro averages the per-class F1 score over the classes that occur in
// truth or pred.
func F1Macro(truth, pred [][]bool) (float64, error) {
	tp, fp, fn, err := confusion(truth, pred)
	if err != nil {
		return 0, err
	}
	sum, count := 0.0, 0
	for c := range tp {
		if tp[c]+fp[c]+fn[c] == 0 {
			continue
		}
		sum += f1(tp[c], fp[c], fn[c])
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}

func f1(tp, fp, fn int) float64 {
	if tp == 0 {
		return 0
	}
	return 2 * float64(tp) / float64(2*tp+fp+fn)
}

func confusion(truth, pred [][]bool) (tp, fp, fn []int, err error) {
	if len(truth) != len(pred) {
		return nil, nil, nil, fmt.Errorf("%w: %d truth rows, %d predicted", ErrShapeMismatch, len(truth), len(pred))
	}
	if len(truth) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: no rows", ErrShapeMismatch)
	}
	width := len(truth[0])
	tp, fp, fn = make([]int, width), make([]int, width), make([]int, width)
	for i := range truth {
		if len(truth[i]) != width || len(pred[i]) != width {
			return nil, nil, nil, fmt.Errorf("%w: row %d", ErrShapeMismatch, i)
		}
		for c := 0; c < width; c++ {
			switch {
			case truth[i][c] && pred[i][c]:
				tp[c]++
			case pred[i][c]:
				fp[c]++
			case truth[i][c]:
				fn[c]++
			}
		}
	}
	return tp, fp, fn, nil
}

// ROCAUC is the area under the ROC curve of scores against binary truth.
// Tied scores share one threshold, so they contribute a diagonal segment.
func ROCAUC(scores []float64, truth []bool) (float64, error) {
	if len(scores) != len(truth) {
		return 0, fmt.Errorf("%w: %d scores, %d labels", ErrShapeMismatch, len(scores), len(truth))
	}
	var pos int
	for _, t := range truth {
		if t {
			pos++
		}
	}
	if pos == 0 || pos == len(truth) {
		return 0, ErrSingleClass
	}

	// stat.ROC wants scores in increasing order.
	y := append([]float64(nil), scores...)
	classes := append([]bool(nil), truth...)
	sort.Sort(byScore{y, classes})

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// byScore sorts scores with their labels attached.
type byScore struct {
	y       []float64
	classes []bool
}

func (b byScore) Len() int           { return len(b.y) }
func (b byScore) Less(i, j int) bool { return b.y[i] < b.y[j] }
func (b byScore) Swap(i, j int) {
	b.y[i], b.y[j] = b.y[j], b.y[i]
	b.classes[i], b.classes[j] = b.classes[j], b.classes[i]
}
