package model

import (
	"errors"
	"testing"
)

func validDataset() *Dataset {
	return &Dataset{
		Nodes: []Node{
			{ID: 1, URated: 10.5e3},
			{ID: 2, URated: 10.5e3},
		},
		Lines: []Line{
			{ID: 3, FromNode: 1, ToNode: 2, FromStatus: true, ToStatus: true, R1: 0.25, X1: 0.2, C1: 10e-6, IN: 1000},
		},
		Sources: []Source{
			{ID: 4, Node: 1, Status: true, URef: 1.0},
		},
		SymLoads: []SymLoad{
			{ID: 5, Node: 2, Status: true, Type: LoadConstPower, PSpecified: 20e6, QSpecified: 5e6},
		},
	}
}

func TestValidateAcceptsWellFormedDataset(t *testing.T) {
	if err := validDataset().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsBadRecords(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Dataset)
		wantCT ComponentType
		wantID int
	}{
		{
			name:   "zero rated voltage",
			mutate: func(d *Dataset) { d.Nodes[0].URated = 0 },
			wantCT: ComponentNode,
			wantID: 1,
		},
		{
			name:   "negative resistance",
			mutate: func(d *Dataset) { d.Lines[0].R1 = -0.1 },
			wantCT: ComponentLine,
			wantID: 3,
		},
		{
			name:   "zero reference voltage",
			mutate: func(d *Dataset) { d.Sources[0].URef = 0 },
			wantCT: ComponentSource,
			wantID: 4,
		},
		{
			name:   "unknown load type",
			mutate: func(d *Dataset) { d.SymLoads[0].Type = "const_frequency" },
			wantCT: ComponentSymLoad,
			wantID: 5,
		},
		{
			name: "zero voltage sigma",
			mutate: func(d *Dataset) {
				d.SymVoltageSensors = []SymVoltageSensor{
					{ID: 6, MeasuredObject: 1, USigma: 0, UMeasured: 10.4e3},
				}
			},
			wantCT: ComponentSymVoltageSensor,
			wantID: 6,
		},
		{
			name: "unknown terminal type",
			mutate: func(d *Dataset) {
				d.SymPowerSensors = []SymPowerSensor{
					{ID: 7, MeasuredObject: 3, MeasuredTerminalType: "branch_middle", PowerSigma: 1e4},
				}
			},
			wantCT: ComponentSymPowerSensor,
			wantID: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDataset()
			tt.mutate(d)

			err := d.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want validation error")
			}
			var me *Error
			if !errors.As(err, &me) {
				t.Fatalf("Validate() returned %T, want *model.Error", err)
			}
			if me.Kind != KindValidation {
				t.Errorf("kind = %s, want %s", me.Kind, KindValidation)
			}
			if me.Component != tt.wantCT || me.ComponentID != tt.wantID {
				t.Errorf("component = %s id=%d, want %s id=%d", me.Component, me.ComponentID, tt.wantCT, tt.wantID)
			}
		})
	}
}

func TestUpdateSetEmpty(t *testing.T) {
	var u UpdateSet
	if !u.Empty() {
		t.Error("zero UpdateSet should be empty")
	}

	u.Lines = append(u.Lines, LineUpdate{ID: 3, FromStatus: Bool(false)})
	if u.Empty() {
		t.Error("UpdateSet with a line record should not be empty")
	}
}
