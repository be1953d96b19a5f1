// Package prompt routes outgoing user prompts: live injection into a
// detected terminal process when one exists, otherwise a managed run through
// the HTTP API.
package prompt

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/lookout-sh/lookout/internal/registry"
	"github.com/lookout-sh/lookout/internal/wire"
	"github.com/lookout-sh/lookout/pkg/logger"
)

// ErrWorkspaceAmbiguous means more than one workspace has live processes and
// the dispatcher refuses to guess.
var ErrWorkspaceAmbiguous = errors.New("ambiguous workspace")

// Injector is the live-process side of dispatch.
type Injector interface {
	HasLiveProcess(workspace string) bool
	LiveWorkspaces() []string
	InjectIntoLive(workspace, text string) error
}

// Resolver produces the run mode and session id for managed runs.
type Resolver interface {
	ResolveForPrompt(ctx context.Context) (registry.Resolution, error)
}

// RunAPI is the slice of the HTTP client the dispatcher needs.
type RunAPI interface {
	Run(ctx context.Context, req *wire.RunRequest) (*wire.RunResponse, error)
}

// Result describes where a prompt went.
type Result struct {
	// Injected is true when the prompt was typed into a live process.
	Injected bool
	// Workspace is the injection target workspace.
	Workspace string
	// SessionID is the managed session the prompt was routed to.
	SessionID string
	// LocalID is the idempotency key attached to managed runs.
	LocalID string
}

// Dispatcher decides the delivery path for each prompt.
type Dispatcher struct {
	injector  Injector
	resolver  Resolver
	api       RunAPI
	workspace string
}

// New creates a dispatcher anchored to a workspace.
func New(injector Injector, resolver Resolver, api RunAPI, workspace string) *Dispatcher {
	return &Dispatcher{
		injector:  injector,
		resolver:  resolver,
		api:       api,
		workspace: workspace,
	}
}

// Send delivers a prompt.
//
// Live injection is attempted first and applies regardless of the requested
// permission mode. Only when no live process exists does the prompt fall
// back to a managed run with the resolved mode. More than one candidate
// workspace fails with ErrWorkspaceAmbiguous rather than guessing.
func (d *Dispatcher) Send(ctx context.Context, text, permissionMode string) (*Result, error) {
	if ws, ok, err := d.resolveTarget(); err != nil {
		return nil, err
	} else if ok {
		if err := d.injector.InjectIntoLive(ws, text); err == nil {
			logger.Infof("prompt: injected into live process (workspace=%s)", ws)
			return &Result{Injected: true, Workspace: ws}, nil
		} else {
			logger.Warnf("prompt: live injection failed, falling back to managed run: %v", err)
		}
	}

	return d.managedRun(ctx, text, permissionMode)
}

// resolveTarget picks the injection workspace: the dispatcher's own
// workspace when it has a live process, else the single workspace that does.
func (d *Dispatcher) resolveTarget() (workspace string, ok bool, err error) {
	if d.workspace != "" && d.injector.HasLiveProcess(d.workspace) {
		return d.workspace, true, nil
	}
	live := d.injector.LiveWorkspaces()
	switch len(live) {
	case 0:
		return "", false, nil
	case 1:
		return live[0], true, nil
	default:
		return "", false, ErrWorkspaceAmbiguous
	}
}

func (d *Dispatcher) managedRun(ctx context.Context, text, permissionMode string) (*Result, error) {
	res, err := d.resolver.ResolveForPrompt(ctx)
	if err != nil {
		return nil, err
	}

	req := &wire.RunRequest{
		Text:           text,
		Mode:           res.Mode,
		SessionID:      res.SessionID,
		PermissionMode: permissionMode,
		LocalID:        uuid.NewString(),
	}
	resp, err := d.api.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Infof("prompt: managed run (mode=%s session=%s)", res.Mode, resp.SessionID)
	return &Result{SessionID: resp.SessionID, LocalID: req.LocalID}, nil
}
