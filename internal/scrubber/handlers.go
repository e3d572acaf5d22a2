package scrubber

import (
	"context"
	"errors"

	"github.com/XerolandRegent/unplug-suite/internal/protocol"
	"github.com/XerolandRegent/unplug-suite/internal/router"
)

// Register binds every request action to the agent.
func (a *Agent) Register(r *router.Router) {
	r.Handle(protocol.ActionCheckConnection, a.handleCheckConnection)
	r.Handle(protocol.ActionCheckArchivesStatus, a.handleCheckArchivesStatus)
	r.Handle(protocol.ActionOpenArchivesPanel, a.handleOpenArchivesPanel)
	r.Handle(protocol.ActionDeleteAllArchives, a.handleDeleteAllArchives)
	r.Handle(protocol.ActionAbortDeletion, a.handleAbortDeletion)
	r.Handle(protocol.ActionGetLogEntries, a.handleGetLogEntries)
}

func (a *Agent) handleCheckConnection(ctx context.Context, _ protocol.Message) (protocol.Response, error) {
	domain, err := a.CheckConnection(ctx)
	if err != nil {
		return protocol.Fail(err), nil
	}
	return protocol.Response{Success: true, Connected: true, Domain: domain}, nil
}

func (a *Agent) handleCheckArchivesStatus(ctx context.Context, _ protocol.Message) (protocol.Response, error) {
	open, count, err := a.CheckArchivesStatus(ctx)
	if err != nil {
		return protocol.Fail(err), nil
	}
	return protocol.Response{Success: true, ArchivesOpen: open, Count: count}, nil
}

func (a *Agent) handleOpenArchivesPanel(ctx context.Context, _ protocol.Message) (protocol.Response, error) {
	if err := a.OpenArchivesPanel(ctx); err != nil {
		a.addLog("Error opening archives: %s", err)
		return protocol.Fail(err), nil
	}
	a.addLog("Archives panel opened")
	return protocol.OK(), nil
}

func (a *Agent) handleDeleteAllArchives(ctx context.Context, msg protocol.Message) (protocol.Response, error) {
	res, err := a.DeleteAll(ctx, msg.Options)
	if err != nil {
		if errors.Is(err, ErrDeletionInProgress) {
			a.addLog("Deletion request rejected: %s", err)
		}
		return protocol.Fail(err), nil
	}
	return protocol.Response{Success: true, Result: &res}, nil
}

func (a *Agent) handleAbortDeletion(_ context.Context, _ protocol.Message) (protocol.Response, error) {
	if err := a.Abort(); err != nil {
		return protocol.Fail(err), nil
	}
	return protocol.OK(), nil
}

func (a *Agent) handleGetLogEntries(_ context.Context, _ protocol.Message) (protocol.Response, error) {
	return protocol.Response{Success: true, Entries: a.LogEntries()}, nil
}
