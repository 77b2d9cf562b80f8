package taxonomy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"taxosort/internal/classifier"
	"taxosort/internal/logging"
	"taxosort/internal/services"
)

// FilterBuilder constructs an inclusion filter on the classification backend.
type FilterBuilder interface {
	InclusionFilter(ctx context.Context, rank classifier.Rank, labels []string) (*classifier.Filter, error)
}

// TargetSet is the validated partition of a requested label list.
type TargetSet struct {
	Rank      classifier.Rank
	Requested []string
	Valid     []string
	Excluded  []string

	index map[string]struct{}
}

// Contains reports whether label, after normalization, is a valid target.
func (s *TargetSet) Contains(label string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[Normalize(label)]
	return ok
}

// Result is the outcome of loading and validating a target list.
type Result struct {
	Path      string
	Targets   *TargetSet
	Filter    *classifier.Filter
	FilterErr error
}

// Normalize canonicalizes a label for comparison: NFC form, trimmed, spaces
// replaced by underscores.
func Normalize(label string) string {
	return strings.ReplaceAll(norm.NFC.String(strings.TrimSpace(label)), " ", "_")
}

// ReadLabels reads one label per line, skipping blank and # comment lines and
// dropping duplicates while preserving order.
func ReadLabels(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "taxonomy", "read target labels", path, err)
	}
	defer file.Close()
	return parseLabels(file)
}

func parseLabels(r io.Reader) ([]string, error) {
	var labels []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan target labels: %w", err)
	}
	return labels, nil
}

// Partition splits requested into labels known to vocab at rank and labels
// that are not. Valid labels take the vocabulary's spelling.
func Partition(requested []string, vocab classifier.Vocabulary, rank classifier.Rank) *TargetSet {
	canonical := make(map[string]string, len(vocab[rank]))
	for label := range vocab[rank] {
		canonical[Normalize(label)] = label
	}
	set := &TargetSet{
		Rank:      rank,
		Requested: append([]string(nil), requested...),
		index:     make(map[string]struct{}, len(requested)),
	}
	for _, label := range requested {
		key := Normalize(label)
		known, ok := canonical[key]
		if !ok {
			set.Excluded = append(set.Excluded, label)
			continue
		}
		if _, dup := set.index[key]; dup {
			continue
		}
		set.index[key] = struct{}{}
		set.Valid = append(set.Valid, known)
	}
	return set
}

// Load reads the target list at path, validates it against vocab, and asks
// builder for an inclusion filter over the valid labels. A filter failure is
// logged and leaves Result.Filter nil; it never fails the load.
func Load(ctx context.Context, path string, vocab classifier.Vocabulary, rank classifier.Rank, builder FilterBuilder, logger *slog.Logger) (*Result, error) {
	logger = logging.NewComponentLogger(logger, "taxonomy")
	requested, err := ReadLabels(path)
	if err != nil {
		return nil, err
	}
	targets := Partition(requested, vocab, rank)
	result := &Result{Path: path, Targets: targets}

	logger.Info("target labels validated",
		logging.String("rank", string(rank)),
		logging.Int("requested", len(targets.Requested)),
		logging.Int("valid", len(targets.Valid)),
		logging.Int("excluded", len(targets.Excluded)),
	)
	if len(targets.Excluded) > 0 {
		logging.WarnWithContext(logger, "target labels missing from classifier vocabulary", "target_labels_excluded",
			logging.String("excluded", strings.Join(targets.Excluded, ", ")),
			logging.String(logging.FieldErrorHint, "check spelling against 'taxosort taxa validate'"),
			logging.String(logging.FieldImpact, "matching images route to other_families"),
		)
	}

	if len(targets.Valid) == 0 || builder == nil {
		return result, nil
	}
	filter, err := builder.InclusionFilter(ctx, rank, targets.Valid)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		result.FilterErr = err
		logging.WarnWithContext(logger, "inclusion filter unavailable", "inclusion_filter_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "predictions are not restricted to target labels"),
		)
		return result, nil
	}
	result.Filter = filter
	return result, nil
}

// Report writes a human readable validation summary.
func Report(w io.Writer, result *Result) error {
	if result == nil || result.Targets == nil {
		_, err := fmt.Fprintln(w, "No target labels loaded.")
		return err
	}
	t := result.Targets
	var b strings.Builder
	fmt.Fprintf(&b, "Target labels (%s rank) from %s\n", t.Rank, result.Path)
	fmt.Fprintf(&b, "  Requested: %d\n", len(t.Requested))
	fmt.Fprintf(&b, "  Valid:     %d\n", len(t.Valid))
	fmt.Fprintf(&b, "  Excluded:  %d\n", len(t.Excluded))
	if len(t.Excluded) > 0 {
		excluded := append([]string(nil), t.Excluded...)
		sort.Strings(excluded)
		b.WriteString("Excluded labels (not in classifier vocabulary):\n")
		for _, label := range excluded {
			fmt.Fprintf(&b, "  - %s\n", label)
		}
	}
	switch {
	case result.Filter != nil:
		fmt.Fprintf(&b, "Inclusion filter: built (%s, %d labels)\n", result.Filter.ID, len(result.Filter.Labels))
	case result.FilterErr != nil:
		fmt.Fprintf(&b, "Inclusion filter: unavailable (%v)\n", result.FilterErr)
	default:
		b.WriteString("Inclusion filter: not used\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
