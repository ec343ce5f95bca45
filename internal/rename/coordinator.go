// Package rename moves an identity to a new handle across every record that
// refers to it.
package rename

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alecgard/kyosor/internal/identity"
	"github.com/alecgard/kyosor/internal/ledger"
)

var ErrEmptyName = errors.New("new handle must not be empty")

// Directory is the identity side of a rename.
type Directory interface {
	CurrentSession(ctx context.Context) (*identity.Session, error)
	RenameHandle(ctx context.Context, oldHandle, newHandle string) error
	RebindSession(ctx context.Context, oldHandle, newHandle string) error
}

// Missions rewrites handle references in the active set and the archive.
type Missions interface {
	RenameHandle(ctx context.Context, oldHandle, newHandle string) error
}

// Ledger moves an hour ledger to a new key.
type Ledger interface {
	Rename(ctx context.Context, oldHandle, newHandle string) (ledger.RenameOutcome, error)
}

// Coordinator applies a rename in a fixed order: directory, missions
// (active then archive), ledger, session. The directory is written first so
// it stays authoritative if a later step fails; re-running the rename
// finishes the job.
type Coordinator struct {
	dir      Directory
	missions Missions
	ledger   Ledger
}

// NewCoordinator creates a Coordinator over the three stores.
func NewCoordinator(dir Directory, missions Missions, hours Ledger) *Coordinator {
	return &Coordinator{dir: dir, missions: missions, ledger: hours}
}

// Rename moves the logged-in identity oldHandle to newHandle. It returns
// the handle now in effect.
func (c *Coordinator) Rename(ctx context.Context, oldHandle, newHandle string) (string, error) {
	sess, err := c.dir.CurrentSession(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrNotLoggedIn) {
			return "", identity.ErrNotLoggedIn
		}
		return "", err
	}
	if sess.Handle != oldHandle {
		return "", identity.ErrNotLoggedIn
	}

	newHandle = strings.TrimSpace(newHandle)
	if newHandle == "" {
		return "", ErrEmptyName
	}
	if newHandle == oldHandle {
		return oldHandle, nil
	}

	if err := c.dir.RenameHandle(ctx, oldHandle, newHandle); err != nil {
		return "", err
	}
	if err := c.missions.RenameHandle(ctx, oldHandle, newHandle); err != nil {
		return "", fmt.Errorf("renaming mission references: %w", err)
	}
	outcome, err := c.ledger.Rename(ctx, oldHandle, newHandle)
	if err != nil {
		return "", fmt.Errorf("moving hour ledger: %w", err)
	}
	if outcome == ledger.TargetExists {
		slog.Warn("hour ledger not moved, target already has one", "from", oldHandle, "to", newHandle)
	}
	if err := c.dir.RebindSession(ctx, oldHandle, newHandle); err != nil {
		return "", fmt.Errorf("rebinding session: %w", err)
	}

	slog.Info("identity renamed", "from", oldHandle, "to", newHandle)
	return newHandle, nil
}
