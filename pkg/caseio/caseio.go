// Package caseio reads and writes network case files and scenario files.
// Cases are YAML documents whose top-level keys are component type names;
// scenario files hold a list of sparse update sets in the same shape.
package caseio

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gridflow/gridflow/pkg/model"
	"github.com/gridflow/gridflow/pkg/solver"
)

// ReadCase parses a case document into a component dataset.
func ReadCase(r io.Reader) (*model.Dataset, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var d model.Dataset
	if err := dec.Decode(&d); err != nil {
		if err == io.EOF {
			return &model.Dataset{}, nil
		}
		return nil, fmt.Errorf("parsing case: %w", err)
	}
	return &d, nil
}

// ReadCaseFile reads and parses a case file.
func ReadCaseFile(path string) (*model.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening case file: %w", err)
	}
	defer f.Close()
	return ReadCase(f)
}

// scenarioFile is the on-disk shape of a scenario document.
type scenarioFile struct {
	Scenarios []model.UpdateSet `yaml:"scenarios"`
}

// ReadScenarios parses a scenario document into a list of update sets.
func ReadScenarios(r io.Reader) ([]model.UpdateSet, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sf scenarioFile
	if err := dec.Decode(&sf); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("parsing scenarios: %w", err)
	}
	return sf.Scenarios, nil
}

// ReadScenarioFile reads and parses a scenario file.
func ReadScenarioFile(path string) ([]model.UpdateSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening scenario file: %w", err)
	}
	defer f.Close()
	return ReadScenarios(f)
}

// WriteResults writes a result set as a YAML document.
func WriteResults(w io.Writer, rs *solver.ResultSet) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(rs); err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	return nil
}

// batchResultFile is the on-disk shape of a batch result document.
type batchResultFile struct {
	Results []*solver.ResultSet `yaml:"results"`
}

// WriteBatchResults writes one result set per scenario as a YAML document,
// in scenario order.
func WriteBatchResults(w io.Writer, results []*solver.ResultSet) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(batchResultFile{Results: results}); err != nil {
		return fmt.Errorf("encoding batch results: %w", err)
	}
	return nil
}
