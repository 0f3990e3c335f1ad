package api

import (
	"context"
	"time"

	"github.com/matheus3301/chatter/internal/chat"
	"github.com/matheus3301/chatter/internal/rpc"
	"github.com/matheus3301/chatter/internal/status"
	"github.com/matheus3301/chatter/internal/store"
	"go.uber.org/zap"
)

// StatusService implements rpc.StatusServer.
type StatusService struct {
	workspace string
	startedAt time.Time
	machine   *status.Machine
	db        *store.DB
	identity  Identity
	session   *chat.Session
	repair    bool
	logger    *zap.Logger
}

// NewStatusService creates the status service.
func NewStatusService(workspace string, machine *status.Machine, db *store.DB, id Identity, session *chat.Session, repair bool, logger *zap.Logger) *StatusService {
	return &StatusService{
		workspace: workspace,
		startedAt: time.Now(),
		machine:   machine,
		db:        db,
		identity:  id,
		session:   session,
		repair:    repair,
		logger:    logger,
	}
}

func (s *StatusService) GetStatus(ctx context.Context, _ *rpc.Empty) (*rpc.StatusResponse, error) {
	resp := &rpc.StatusResponse{
		Workspace: s.workspace,
		Status:    string(s.machine.Current()),
		ChatState: string(s.session.State()),
		UptimeMs:  time.Since(s.startedAt).Milliseconds(),
		Repair:    s.repair,
	}
	resp.Identity, _ = s.identity.Current()
	if h, ok := s.session.Peer(); ok {
		resp.OpenPeer = h.Identity
	}

	// Counts are best effort.
	if s.db != nil {
		if n, err := s.db.EntryCount(ctx); err == nil {
			resp.EntryCount = n
		} else {
			s.logger.Warn("count entries failed", zap.Error(err))
		}
		if n, err := s.db.ReplicaCount(ctx, store.ReplicaQueued); err == nil {
			resp.PendingReplicas = n
		}
		if n, err := s.db.ReplicaCount(ctx, store.ReplicaFailed); err == nil {
			resp.FailedReplicas = n
		}
	}
	return resp, nil
}
