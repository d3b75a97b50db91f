package logger

// Standard field keys for structured logging.
// The text handler lifts KeyContainerID and KeySchemaVersion into the line
// prefix and moves KeyStorePath to the end of the line.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Container Lifecycle
	// ========================================================================
	KeyContainerID   = "container_id"   // Container identifier
	KeyOperation     = "operation"      // Lifecycle operation: create, load, reconcile, delete
	KeyReason        = "reason"         // Not-empty reason or skip reason
	KeyForce         = "force"          // Forced deletion indicator
	KeyVolume        = "volume"         // Volume root directory
	KeyMetadataPath  = "metadata_path"  // Container metadata directory
	KeyChunksPath    = "chunks_path"    // Container chunks directory
	KeyPath          = "path"           // Generic file/directory path
	KeyDescriptor    = "descriptor"     // Container descriptor file path
	KeyFullScan      = "full_scan"      // Reconcile recomputed counters from the block table

	// ========================================================================
	// Store
	// ========================================================================
	KeyStorePath     = "store_path"     // Path of the container store
	KeySchemaVersion = "schema_version" // Store schema version: 1, 2, 3
	KeyBlockKey      = "block_key"      // Block table key
	KeyLocalID       = "local_id"       // Block local ID
	KeyTxnID         = "txn_id"         // Delete transaction ID

	// ========================================================================
	// Counters
	// ========================================================================
	KeyBlockCount   = "block_count"   // Live block count
	KeyBytesUsed    = "bytes_used"    // Bytes used by live blocks
	KeyPendingCount = "pending_count" // Blocks pending deletion
	KeyCount        = "count"         // Generic item count

	// ========================================================================
	// Handle Cache
	// ========================================================================
	KeyCacheSize = "cache_size" // Number of cached store instances
	KeyRefCount  = "ref_count"  // Outstanding leases on a store

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyMode       = "mode"        // Inspector mode
)
