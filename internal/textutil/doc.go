// Package textutil holds small string helpers shared across packages, chiefly
// turning classifier labels and category names into safe directory names.
package textutil
