package rpc

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeRejected       = -32001
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// StakeParam is used by staking_stake. Amount is a decimal string in base
// units; amounts never cross the wire as floats.
type StakeParam struct {
	StakerID       string `json:"staker_id"`
	Amount         string `json:"amount"`
	LockDurationMs int64  `json:"lock_duration_ms,omitempty"`
}

// UnstakeParam is used by staking_unstake.
type UnstakeParam struct {
	StakerID string `json:"staker_id"`
	Amount   string `json:"amount"`
}

// SlashParam is used by staking_slash.
type SlashParam struct {
	StakerID    string `json:"staker_id"`
	Violation   string `json:"violation"`
	ChallengeID string `json:"challenge_id,omitempty"`
	Details     string `json:"details,omitempty"`
}

// StakerParam is used by endpoints that take a single staker ID.
type StakerParam struct {
	StakerID string `json:"staker_id"`
}

// LimitParam is used by staking_getLeaderboard.
type LimitParam struct {
	Limit int `json:"limit,omitempty"`
}

// CreateChallengeParam is used by consensus_createChallenge.
type CreateChallengeParam struct {
	WorkType        string         `json:"work_type"`
	Input           map[string]any `json:"input"`
	RequiredWorkers int            `json:"required_workers,omitempty"`
}

// SubmitResultParam is used by consensus_submitResult.
type SubmitResultParam struct {
	ChallengeID string         `json:"challenge_id"`
	WorkerID    string         `json:"worker_id"`
	Result      map[string]any `json:"result"`
}

// ChallengeParam is used by endpoints that take a single challenge ID.
type ChallengeParam struct {
	ChallengeID string `json:"challenge_id"`
}

// WorkerParam is used by endpoints that take a single worker ID.
type WorkerParam struct {
	WorkerID string `json:"worker_id"`
}

// WorkerRegisterParam is used by worker_register. PublicKey, when present,
// is a 33-byte compressed secp256k1 key in hex; it commits the worker to
// signed heartbeats.
type WorkerRegisterParam struct {
	WorkerID  string `json:"worker_id"`
	PublicKey string `json:"public_key,omitempty"`
}

// WorkerHeartbeatParam is used by worker_heartbeat. Timestamp and Signature
// are required for key-bearing workers and ignored otherwise.
type WorkerHeartbeatParam struct {
	WorkerID  string `json:"worker_id"`
	Timestamp int64  `json:"timestamp,omitempty"` // unix ms
	Signature string `json:"signature,omitempty"` // hex Schnorr signature
}

// AssessParam is used by difficulty_assess.
type AssessParam struct {
	WorkType string         `json:"work_type"`
	Input    map[string]any `json:"input"`
}

// ── Result types ────────────────────────────────────────────────────────

// IsValidatorResult is returned by staking_isValidator.
type IsValidatorResult struct {
	StakerID    string `json:"staker_id"`
	IsValidator bool   `json:"is_validator"`
}

// WorkerCountResult is returned by worker_count.
type WorkerCountResult struct {
	Registered int `json:"registered"`
	Eligible   int `json:"eligible"`
}

// NodeInfoResult is returned by node_getInfo.
type NodeInfoResult struct {
	Network string `json:"network"`
	Version string `json:"version"`
}
