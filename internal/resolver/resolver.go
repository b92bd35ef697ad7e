// Package resolver selects which model output a trial displays and parses
// semi-structured findings output into plain text plus spatial annotations.
package resolver

import "github.com/medbench/engine/internal/domain"

// Source identifies which precedence branch produced a resolved output.
type Source int

const (
	// SourceNone means no branch matched; the caller receives an empty
	// placeholder.
	SourceNone Source = iota

	// SourceGeneratedKeyed matched a generated entry by the pairing's
	// exact generation key.
	SourceGeneratedKeyed

	// SourceGeneratedLatest fell back to the most recently appended
	// generated entry for an index -1 pairing.
	SourceGeneratedLatest

	// SourceUploaded read an uploaded output column by index.
	SourceUploaded
)

// Generated reports whether the source is one of the generated branches,
// whose content goes through the findings parser before display.
func (s Source) Generated() bool {
	return s == SourceGeneratedKeyed || s == SourceGeneratedLatest
}

// Resolve picks the output a trial shows for one dataset-model pairing.
// Precedence is fixed: a generated entry tagged with the pairing's exact
// generation key wins over everything, then the latest generated entry for
// index -1 pairings, then the uploaded column at the pairing's index, then
// an empty placeholder. A keyed match beats an uploaded column regardless of
// the index value.
func Resolve(obj *domain.DataObject, pairing domain.DataSetModel) (domain.DataContent, Source) {
	if pairing.GeneratedOutputKey != "" {
		for _, g := range obj.GeneratedOutputData {
			if g.GeneratedForTask == pairing.GeneratedOutputKey {
				return g, SourceGeneratedKeyed
			}
		}
	}
	if pairing.ModelOutputIndex == domain.GeneratedNone && len(obj.GeneratedOutputData) > 0 {
		return obj.GeneratedOutputData[len(obj.GeneratedOutputData)-1], SourceGeneratedLatest
	}
	if i := pairing.ModelOutputIndex; i >= 0 && i < len(obj.OutputData) {
		return obj.OutputData[i], SourceUploaded
	}
	return domain.DataContent{Type: domain.ContentText}, SourceNone
}
