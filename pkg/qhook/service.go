// Package qhook ties the admission policy, the dispatcher and the supervisor
// into the single pipeline every script request goes through.
package qhook

import (
	"context"

	"github.com/quatton/qhook/pkg/qdispatch"
	"github.com/quatton/qhook/pkg/qerr"
	"github.com/quatton/qhook/pkg/qlog"
	"github.com/quatton/qhook/pkg/qpolicy"
	"github.com/quatton/qhook/pkg/qrunner"
	"github.com/quatton/qhook/pkg/qscript"
)

type Service struct {
	cfg        *qscript.Config
	chain      *qpolicy.Chain
	dispatcher *qdispatch.Dispatcher
	supervisor *qrunner.Supervisor
	logger     *qlog.Logger
}

func New(cfg *qscript.Config, chain *qpolicy.Chain, dispatcher *qdispatch.Dispatcher, supervisor *qrunner.Supervisor, logger *qlog.Logger) *Service {
	if logger == nil {
		logger = qlog.NewDiscard()
	}
	return &Service{
		cfg:        cfg,
		chain:      chain,
		dispatcher: dispatcher,
		supervisor: supervisor,
		logger:     logger.With("component", "service"),
	}
}

// Config returns the script configuration the service was built with.
func (s *Service) Config() *qscript.Config { return s.cfg }

// Admit runs the policy and dispatch steps without executing anything. It
// returns the same errors Run would.
func (s *Service) Admit(req qscript.Request, origin *qpolicy.Origin) error {
	_, err := s.admit(&req, origin)
	return err
}

func (s *Service) admit(req *qscript.Request, origin *qpolicy.Origin) (*qdispatch.Resolution, error) {
	if err := s.chain.Check(req, origin); err != nil {
		s.logger.Warn("request rejected", "script", req.Script, "reasons", qerr.Reasons(err))
		return nil, err
	}
	res, err := s.dispatcher.Resolve(req.Script)
	if err != nil {
		s.logger.Warn("script not dispatched", "script", req.Script, "reasons", qerr.Reasons(err))
		return nil, err
	}
	return res, nil
}

// Run validates, resolves and executes req. A non-nil error means the request
// was rejected and nothing ran; execution failures are reported in the
// result instead.
func (s *Service) Run(ctx context.Context, req qscript.Request, origin *qpolicy.Origin) (*qrunner.Result, error) {
	res, err := s.admit(&req, origin)
	if err != nil {
		return nil, err
	}

	result := s.supervisor.Execute(ctx, res, req.Parameters)
	attrs := []any{"id", result.ID, "script", result.ScriptName, "exitCode", result.ExitCode, "duration", result.Duration}
	if result.Success {
		s.logger.InfoContext(ctx, "script executed", attrs...)
	} else {
		s.logger.WarnContext(ctx, "script failed", append(attrs, "code", string(result.Code), "message", result.Message)...)
	}
	return result, nil
}

// Execute runs req with no HTTP origin, as queued and recurring jobs do.
func (s *Service) Execute(ctx context.Context, req qscript.Request) (*qrunner.Result, error) {
	return s.Run(ctx, req, nil)
}
