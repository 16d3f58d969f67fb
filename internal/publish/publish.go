// Package publish delivers finished calendar images. Publishers have
// no knowledge of layout or change detection; they receive a rendering
// artifact and either deliver it or fail.
package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	"calpost/internal/model"
)

// Artifact is a finished render plus the context a channel may want to
// show alongside it.
type Artifact struct {
	PNG         []byte
	Month       model.Month
	Title       string
	EventCount  int
	GeneratedAt time.Time
}

// Filename returns a stable attachment name for the artifact.
func (a Artifact) Filename() string {
	return fmt.Sprintf("calendar_%04d_%02d.png", a.Month.Year, int(a.Month.Month))
}

// Publisher delivers an artifact to one destination.
type Publisher interface {
	Publish(ctx context.Context, a Artifact) error
}

// Multi fans an artifact out to several publishers. Every publisher is
// attempted; any failure fails the publish so the scheduler retries the
// whole cycle on the next tick.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, a Artifact) error {
	var failures []string
	for _, p := range m {
		if err := p.Publish(ctx, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("publish: %s", strings.Join(failures, "; "))
	}
	return nil
}
