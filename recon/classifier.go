package recon

import "github.com/warp/authz-report/table"

// Classifier assigns an account class from the CKH / KKH extracts.
//
// The fixed-term set is keyed by CUSTSEQ while the demand set is keyed by
// IDXACNO. Both are looked up with the authorized account id.
type Classifier struct {
	fixedTerm map[string]struct{}
	demand    map[string]struct{}
}

// NewClassifier builds the two membership sets. A table lacking its key
// column contributes an empty set.
func NewClassifier(fixedTerm, demand *table.Table) *Classifier {
	return &Classifier{
		fixedTerm: valueSet(fixedTerm, ColCustomerSeq),
		demand:    valueSet(demand, ColAccountID),
	}
}

// Classify returns CKH, then KKH, then NA.
func (c *Classifier) Classify(id string) AccountClass {
	if _, ok := c.fixedTerm[id]; ok {
		return ClassFixedTerm
	}
	if _, ok := c.demand[id]; ok {
		return ClassDemand
	}
	return ClassUnknown
}

// Sizes returns the sizes of the fixed-term and demand sets.
func (c *Classifier) Sizes() (fixedTerm, demand int) {
	return len(c.fixedTerm), len(c.demand)
}

// valueSet collects the present values of one column.
func valueSet(t *table.Table, col string) map[string]struct{} {
	set := make(map[string]struct{})
	if t == nil || !t.Has(col) {
		return set
	}
	for _, v := range t.Column(col) {
		if s, ok := v.Str(); ok {
			set[s] = struct{}{}
		}
	}
	return set
}
