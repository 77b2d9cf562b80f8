// Package taxonomy loads the target label list, validates it against the
// classifier vocabulary, and builds the optional inclusion filter.
//
// It also extracts candidate label lists from GBIF occurrence exports.
package taxonomy
