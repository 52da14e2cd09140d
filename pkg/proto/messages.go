// Package proto holds the request and response types the services
// exchange over the JSON-over-TCP RPC layer in pkg/grpc. Both ends
// import this package, so the wire shapes cannot drift apart.
package proto

// AllShards selects every shard in requests that take a ShardID.
// Shard numbering starts at zero, so zero cannot be the sentinel.
const AllShards int32 = -1

// HealthCheckResponse mirrors the gRPC health check spec.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}

// ---------- Registry ----------

// RegistryStatsRequest asks the registry service for pattern counts.
// ShardID filters to one shard; AllShards selects every shard.
type RegistryStatsRequest struct {
	ShardID int32 `json:"shard_id"`
}

// RegistryStatsResponse describes the live state of the pattern registry.
type RegistryStatsResponse struct {
	TotalPatterns int64       `json:"total_patterns"`
	Shards        []ShardStat `json:"shards,omitempty"`
}

// ShardStat holds per-shard registry statistics.
type ShardStat struct {
	ShardID      int32 `json:"shard_id"`
	PatternCount int64 `json:"pattern_count"`
}

// SnapshotRequest triggers a registry snapshot to disk.
// ShardID filters to one shard; AllShards flushes every shard.
type SnapshotRequest struct {
	ShardID int32 `json:"shard_id"`
}

// SnapshotResponse confirms the snapshot.
type SnapshotResponse struct {
	Success       bool   `json:"success"`
	ShardsFlushed int32  `json:"shards_flushed"`
	Message       string `json:"message,omitempty"`
}
