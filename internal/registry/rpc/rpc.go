// Package rpc exposes the registry's admin surface over the platform's
// JSON-over-TCP RPC layer: live pattern counts and on-demand snapshots.
// The gateway is the only intended caller.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/proto"
)

// Service serves RegistryService.* methods for a shard router.
type Service struct {
	router *shard.Router
	server *grpc.Server
	logger *slog.Logger
}

// NewService creates the RPC service and registers its methods.
func NewService(router *shard.Router) *Service {
	s := &Service{
		router: router,
		server: grpc.NewServer(),
		logger: slog.Default().With("component", "registry-rpc"),
	}
	s.server.Register("RegistryService.Stats", s.stats)
	s.server.Register("RegistryService.Snapshot", s.snapshot)
	return s
}

// Serve starts listening on addr. It blocks until Stop is called.
func (s *Service) Serve(addr string) error {
	return s.server.Serve(addr)
}

// Addr returns the bound listen address, or "" before Serve.
func (s *Service) Addr() string {
	return s.server.Addr()
}

// Stop shuts the RPC server down.
func (s *Service) Stop() {
	s.server.Stop()
}

// stats reports pattern counts. TotalPatterns is always platform-wide;
// a non-negative ShardID narrows the per-shard breakdown to one shard.
func (s *Service) stats(_ context.Context, raw json.RawMessage) (any, error) {
	var req proto.RegistryStatsRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decoding stats request: %w", err)
	}

	resp := &proto.RegistryStatsResponse{
		TotalPatterns: int64(s.router.TotalPatterns()),
	}

	if req.ShardID == proto.AllShards {
		for _, reg := range s.router.All() {
			resp.Shards = append(resp.Shards, proto.ShardStat{
				ShardID:      int32(reg.ShardID()),
				PatternCount: int64(reg.Len()),
			})
		}
		return resp, nil
	}

	reg, err := s.router.Route(int(req.ShardID))
	if err != nil {
		return nil, err
	}
	resp.Shards = []proto.ShardStat{{
		ShardID:      int32(reg.ShardID()),
		PatternCount: int64(reg.Len()),
	}}
	return resp, nil
}

// snapshot flushes compiled patterns to disk, either for one shard or for
// all of them.
func (s *Service) snapshot(_ context.Context, raw json.RawMessage) (any, error) {
	var req proto.SnapshotRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decoding snapshot request: %w", err)
	}

	if req.ShardID == proto.AllShards {
		if err := s.router.SnapshotAll(); err != nil {
			return nil, err
		}
		s.logger.Info("snapshot flushed over rpc", "shards", s.router.NumShards())
		return &proto.SnapshotResponse{
			Success:       true,
			ShardsFlushed: int32(s.router.NumShards()),
		}, nil
	}

	reg, err := s.router.Route(int(req.ShardID))
	if err != nil {
		return nil, err
	}
	if err := reg.Snapshot(); err != nil {
		return nil, err
	}
	s.logger.Info("snapshot flushed over rpc", "shard_id", req.ShardID)
	return &proto.SnapshotResponse{Success: true, ShardsFlushed: 1}, nil
}
