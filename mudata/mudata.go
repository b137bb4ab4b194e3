// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mudata provides a minimal multi-modal single-cell container.
//
// A Dataset holds an ordered list of modalities that observe the same cells. Each modality
// carries a cells × features matrix, dense or sparse, an optional highly-variable feature mask
// and an unstructured annotation slot. The dataset itself carries per-cell embeddings.
package mudata

import (
	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrObsMismatch     = errors.New("mudata: modalities observe different numbers of cells")
	ErrDuplicateName   = errors.New("mudata: duplicate modality name")
	ErrUnknownModality = errors.New("mudata: unknown modality")
	ErrMalformed       = errors.New("mudata: malformed modality")
)

// Modality is one measurement layer of a Dataset.
type Modality struct {
	Name string
	// X is the cells × features count matrix, dense or CSR.
	X mat.Matrix
	// HighlyVariable selects the features used for factorization; nil selects all of them.
	HighlyVariable []bool
	VarNames       []string
	ObsNames       []string
	// Uns holds unstructured per-modality results such as factor matrices.
	Uns map[string]*mat.Dense
}

// NumObs returns the number of cells.
func (m *Modality) NumObs() int {
	r, _ := m.X.Dims()
	return r
}

// NumVar returns the number of features.
func (m *Modality) NumVar() int {
	_, c := m.X.Dims()
	return c
}

// Variable returns the indices of the selected features.
// A mask whose length differs from the number of features yields ErrMalformed.
func (m *Modality) Variable() ([]int, error) {
	if m.X == nil {
		return nil, errors.Wrapf(ErrMalformed, "modality %q has no matrix", m.Name)
	}
	n := m.NumVar()
	if m.HighlyVariable != nil && len(m.HighlyVariable) != n {
		return nil, errors.Wrapf(ErrMalformed, "modality %q: mask length %d, want %d", m.Name, len(m.HighlyVariable), n)
	}
	idx := make([]int, 0, n)
	for j := 0; j < n; j++ {
		if m.HighlyVariable == nil || m.HighlyVariable[j] {
			idx = append(idx, j)
		}
	}
	return idx, nil
}

// SelectVariable returns a dense copy of X restricted to the selected features (cells × selected).
func (m *Modality) SelectVariable() (*mat.Dense, error) {
	idx, err := m.Variable()
	if err != nil {
		return nil, err
	}
	if len(idx) == 0 {
		return nil, errors.Wrapf(ErrMalformed, "modality %q selects no feature", m.Name)
	}
	if len(idx) == m.NumVar() {
		return Dense(m.X), nil
	}
	return Columns(m.X, idx), nil
}

func (m *Modality) validate() error {
	if m.X == nil {
		return errors.Wrapf(ErrMalformed, "modality %q has no matrix", m.Name)
	}
	r, c := m.X.Dims()
	switch {
	case r == 0 || c == 0:
		return errors.Wrapf(ErrMalformed, "modality %q is empty (%d×%d)", m.Name, r, c)
	case m.HighlyVariable != nil && len(m.HighlyVariable) != c:
		return errors.Wrapf(ErrMalformed, "modality %q: mask length %d, want %d", m.Name, len(m.HighlyVariable), c)
	case m.VarNames != nil && len(m.VarNames) != c:
		return errors.Wrapf(ErrMalformed, "modality %q: %d variable names, want %d", m.Name, len(m.VarNames), c)
	case m.ObsNames != nil && len(m.ObsNames) != r:
		return errors.Wrapf(ErrMalformed, "modality %q: %d observation names, want %d", m.Name, len(m.ObsNames), r)
	}
	if m.Uns == nil {
		m.Uns = make(map[string]*mat.Dense)
	}
	return nil
}

// Dataset is an ordered collection of modalities over the same cells.
type Dataset struct {
	mods  []*Modality
	index map[string]int
	nObs  int
	// Obsm holds per-cell embeddings (cells × k).
	Obsm map[string]*mat.Dense
}

// New creates a dataset from the given modalities, kept in order.
func New(mods ...*Modality) (*Dataset, error) {
	d := &Dataset{
		index: make(map[string]int, len(mods)),
		Obsm:  make(map[string]*mat.Dense),
	}
	for _, m := range mods {
		if err := d.Add(m); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Add appends a modality.
func (d *Dataset) Add(m *Modality) error {
	if err := m.validate(); err != nil {
		return err
	}
	if _, dup := d.index[m.Name]; dup {
		return errors.Wrapf(ErrDuplicateName, "%q", m.Name)
	}
	if len(d.mods) > 0 && m.NumObs() != d.nObs {
		return errors.Wrapf(ErrObsMismatch, "modality %q has %d cells, want %d", m.Name, m.NumObs(), d.nObs)
	}
	d.nObs = m.NumObs()
	d.index[m.Name] = len(d.mods)
	d.mods = append(d.mods, m)
	return nil
}

// Mod returns the named modality or nil.
func (d *Dataset) Mod(name string) *Modality {
	if i, ok := d.index[name]; ok {
		return d.mods[i]
	}
	return nil
}

// Lookup returns the named modality or ErrUnknownModality.
func (d *Dataset) Lookup(name string) (*Modality, error) {
	if m := d.Mod(name); m != nil {
		return m, nil
	}
	return nil, errors.Wrapf(ErrUnknownModality, "%q", name)
}

// Names returns the modality names in order.
func (d *Dataset) Names() []string {
	names := make([]string, len(d.mods))
	for i, m := range d.mods {
		names[i] = m.Name
	}
	return names
}

// Len returns the number of modalities.
func (d *Dataset) Len() int { return len(d.mods) }

// NumObs returns the number of cells shared by all modalities.
func (d *Dataset) NumObs() int { return d.nObs }
