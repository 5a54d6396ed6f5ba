package network

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/gridflow/gridflow/pkg/model"
)

func TestLineAdmittancePerUnit(t *testing.T) {
	net, err := Compile(threeNodeDataset())
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	series, shunt := net.LineAdmittance(0)

	// z_base = 10.5e3^2 / 1e6 = 110.25 ohm; y_series = z_base / (r + jx).
	zBase := 10.5e3 * 10.5e3 / BasePower
	wantSeries := complex(zBase, 0) / complex(0.25, 0.2)
	if cmplx.Abs(series-wantSeries) > 1e-9 {
		t.Errorf("series = %v, want %v", series, wantSeries)
	}

	// Lossless shunt: y = j 2 pi f c z_base.
	wantShunt := complex(0, 2*math.Pi*Frequency*10e-6*zBase)
	if cmplx.Abs(shunt-wantShunt) > 1e-9 {
		t.Errorf("shunt = %v, want %v", shunt, wantShunt)
	}
}

func TestZeroImpedanceLineHasNoSeriesAdmittance(t *testing.T) {
	d := threeNodeDataset()
	d.Lines[0].R1 = 0
	d.Lines[0].X1 = 0
	net, err := Compile(d)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	series, _ := net.LineAdmittance(0)
	if series != 0 {
		t.Errorf("series = %v, want 0 for a zero-impedance line", series)
	}
}

func TestAdmittanceMatrixRowSums(t *testing.T) {
	net, err := Compile(threeNodeDataset())
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	e := net.Energize()
	a := net.AdmittanceMatrix(e)

	if a.N != 3 {
		t.Fatalf("N = %d, want 3", a.N)
	}

	// With all switches closed each row sums to the node's total shunt
	// admittance: the series terms cancel against the off-diagonals.
	for row := 0; row < a.N; row++ {
		var sum, shuntSum complex128
		for _, en := range a.Rows[row] {
			sum += en.Y
		}
		node := e.NodeOf[row]
		for _, li := range net.LinesAt(node) {
			_, shunt := net.LineAdmittance(li)
			shuntSum += shunt / 2
		}
		if cmplx.Abs(sum-shuntSum) > 1e-9 {
			t.Errorf("row %d sums to %v, want shunt total %v", row, sum, shuntSum)
		}
	}
}

func TestAdmittanceMatrixHalfOpenLine(t *testing.T) {
	net, err := Compile(threeNodeDataset())
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	work := net.Clone()
	if err := work.ApplyUpdate(&model.UpdateSet{
		Lines: []model.LineUpdate{{ID: 8, ToStatus: model.Bool(false)}},
	}); err != nil {
		t.Fatalf("ApplyUpdate() error: %v", err)
	}

	e := work.Energize()
	a := work.AdmittanceMatrix(e)

	// The half-open line must not couple its endpoints.
	row := a.Rows[e.SolveOf[0]]
	for _, en := range row[1:] {
		if en.Col == e.SolveOf[2] {
			// Line 5 still couples nodes 2 and 6; line 8 connected 1 and 6.
			t.Error("half-open line 8 should not produce an off-diagonal between its endpoints")
		}
	}

	// Its closed terminal carries the one-side admittance on the diagonal.
	series, shunt := work.LineAdmittance(2)
	oneSide := OneSideAdmittance(series, shunt)
	if oneSide == 0 {
		t.Fatal("one-side admittance should be nonzero for a line with shunt")
	}
}

func TestOneSideAdmittanceReduces(t *testing.T) {
	series := complex(2.0, -1.5)
	shunt := complex(0, 0.04)

	got := OneSideAdmittance(series, shunt)
	want := shunt/2 + series*(shunt/2)/(series+shunt/2)
	if cmplx.Abs(got-want) > 1e-12 {
		t.Errorf("OneSideAdmittance = %v, want %v", got, want)
	}

	// Pure series line: no shunt means the open far end blocks all current.
	if got := OneSideAdmittance(series, 0); got != 0 {
		t.Errorf("OneSideAdmittance with zero shunt = %v, want 0", got)
	}
}
