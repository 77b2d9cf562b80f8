package organizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"taxosort/internal/config"
	"taxosort/internal/fileutil"
	"taxosort/internal/logging"
	"taxosort/internal/router"
	"taxosort/internal/services"
	"taxosort/internal/textutil"
)

// Outcome describes what Place did with an image.
type Outcome string

const (
	OutcomePlaced  Outcome = "placed"
	OutcomePresent Outcome = "present"
	OutcomeRenamed Outcome = "renamed"
)

const maxSuffixAttempts = 10000

// Placement is the result of projecting one image.
type Placement struct {
	Source      string
	Destination string
	Outcome     Outcome
}

// Organizer copies or moves classified images under root.
type Organizer struct {
	root   string
	action string
	logger *slog.Logger
}

// New returns an organizer rooted at root. action is config.ActionCopy or
// config.ActionMove.
func New(root, action string, logger *slog.Logger) (*Organizer, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "organizer", "init", "organize_dir is not set", nil)
	}
	switch action {
	case config.ActionCopy, config.ActionMove:
	default:
		return nil, services.Wrap(services.ErrConfiguration, "organizer", "init", fmt.Sprintf("unknown organize action %q", action), nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "organizer", "ensure root", "Failed to create organize directory", err)
	}
	return &Organizer{
		root:   root,
		action: action,
		logger: logging.NewComponentLogger(logger, "organizer"),
	}, nil
}

// Root returns the projection root.
func (o *Organizer) Root() string { return o.root }

// Action returns the configured placement action.
func (o *Organizer) Action() string { return o.action }

// Destination returns where an image named name lands for category.
func (o *Organizer) Destination(category, name string) string {
	return filepath.Join(o.root, textutil.SanitizeRelPath(category), textutil.SanitizeSegment(name))
}

// Place projects a classified image into its category directory.
func (o *Organizer) Place(ctx context.Context, d router.Decision) (Placement, error) {
	return o.place(ctx, d.Path, d.Category)
}

func (o *Organizer) place(ctx context.Context, src, category string) (Placement, error) {
	if err := ctx.Err(); err != nil {
		return Placement{}, err
	}
	logger := logging.WithContext(ctx, o.logger)
	dst := o.Destination(category, filepath.Base(src))
	placement := Placement{Source: src, Destination: dst}

	srcExists, err := exists(src)
	if err != nil {
		return placement, services.Wrap(services.ErrExternalTool, "organizer", "stat source", src, err)
	}
	if !srcExists {
		// A move that completed before a crash leaves only the destination.
		if present, err := exists(dst); err == nil && present {
			placement.Outcome = OutcomePresent
			return placement, nil
		}
		return placement, services.Wrap(services.ErrNotFound, "organizer", "place", "source image missing: "+src, fs.ErrNotExist)
	}

	target, present, err := o.resolveTarget(src, dst)
	if err != nil {
		return placement, services.Wrap(services.ErrExternalTool, "organizer", "allocate destination", dst, err)
	}
	placement.Destination = target
	if present {
		placement.Outcome = OutcomePresent
		if o.action == config.ActionMove {
			// Copy finished but the source removal did not.
			if err := os.Remove(src); err != nil {
				return placement, services.Wrap(services.ErrExternalTool, "organizer", "finish move", src, err)
			}
		}
		return placement, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return placement, services.Wrap(services.ErrExternalTool, "organizer", "ensure category dir", filepath.Dir(target), err)
	}
	if o.action == config.ActionMove {
		err = fileutil.MoveFile(src, target)
	} else {
		err = fileutil.CopyFileVerified(src, target)
	}
	if err != nil {
		return placement, services.Wrap(services.ErrExternalTool, "organizer", o.action+" image", src, err)
	}

	placement.Outcome = OutcomePlaced
	if target != dst {
		placement.Outcome = OutcomeRenamed
		logger.Info("destination name taken by a different file",
			logging.String("requested", dst),
			logging.String("destination", target),
			logging.String(logging.FieldDecisionType, "organizer_collision"),
			logging.String("decision_result", "suffix"),
			logging.String("decision_reason", "content differs"),
		)
	}
	logger.Debug("image placed",
		logging.String("source", src),
		logging.String("destination", target),
		logging.String("action", textutil.Ternary(o.action == config.ActionMove, "moved", "copied")),
	)
	return placement, nil
}

// resolveTarget finds the path src should occupy. present is true when src's
// content already sits at the returned path.
func (o *Organizer) resolveTarget(src, dst string) (string, bool, error) {
	ext := filepath.Ext(dst)
	stem := strings.TrimSuffix(dst, ext)
	candidate := dst
	for attempt := 1; attempt <= maxSuffixAttempts; attempt++ {
		taken, err := exists(candidate)
		if err != nil {
			return "", false, err
		}
		if !taken {
			return candidate, false, nil
		}
		same, err := fileutil.SameFile(src, candidate)
		if err != nil {
			return "", false, err
		}
		if same {
			return candidate, true, nil
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, attempt, ext)
	}
	return "", false, fmt.Errorf("exhausted destination name slots for %s", dst)
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
