// Package discovery finds the images a run still has to classify.
package discovery
