// Package router turns classifier predictions for one image into a routing
// decision: the ranks queried, the winning label at each, and the category
// directory the image belongs in.
//
// Four modes are supported. Family and merged route on the best family label
// against the target set; merged additionally joins the secondary source by
// file name. Cascade routes on order first and only descends to family for
// the interesting orders. Gated rejects images whose class predictions lack
// the gate class before applying the family rules.
package router
