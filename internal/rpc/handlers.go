package rpc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/attestnet/attestnet/internal/consensus"
	"github.com/attestnet/attestnet/internal/staking"
	"github.com/attestnet/attestnet/pkg/types"
)

// ── Staking endpoints ───────────────────────────────────────────────────

func (s *Server) handleStakingStake(req *Request) (interface{}, *Error) {
	if err := s.requireLedger(); err != nil {
		return nil, err
	}
	var params StakeParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.StakerID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "staker_id is required"}
	}
	amount, err := types.ParseAmount(params.Amount)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid amount: %v", err)}
	}
	if params.LockDurationMs < 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "lock_duration_ms must not be negative"}
	}

	lock := time.Duration(params.LockDurationMs) * time.Millisecond
	if err := s.ledger.Stake(params.StakerID, amount, lock); err != nil {
		return nil, stakingError(err)
	}
	return s.ledger.GetStakeInfo(params.StakerID), nil
}

func (s *Server) handleStakingUnstake(req *Request) (interface{}, *Error) {
	if err := s.requireLedger(); err != nil {
		return nil, err
	}
	var params UnstakeParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.StakerID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "staker_id is required"}
	}
	amount, err := types.ParseAmount(params.Amount)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid amount: %v", err)}
	}

	if err := s.ledger.Unstake(params.StakerID, amount); err != nil {
		return nil, stakingError(err)
	}
	// The record is removed when the balance reaches zero.
	if info := s.ledger.GetStakeInfo(params.StakerID); info != nil {
		return info, nil
	}
	return map[string]any{"staker_id": params.StakerID, "staked_amount": "0"}, nil
}

func (s *Server) handleStakingSlash(req *Request) (interface{}, *Error) {
	if err := s.requireLedger(); err != nil {
		return nil, err
	}
	var params SlashParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.StakerID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "staker_id is required"}
	}
	violation := staking.ViolationType(params.Violation)
	switch violation {
	case staking.ViolationMissedConsensus, staking.ViolationConsensusDisagreement,
		staking.ViolationRepeatedViolations, staking.ViolationFraudDetected:
	default:
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("unknown violation type %q", params.Violation)}
	}

	return s.ledger.Slash(params.StakerID, violation, params.ChallengeID, params.Details), nil
}

func (s *Server) handleStakingGetStakeInfo(req *Request) (interface{}, *Error) {
	if err := s.requireLedger(); err != nil {
		return nil, err
	}
	var params StakerParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.StakerID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "staker_id is required"}
	}

	info := s.ledger.GetStakeInfo(params.StakerID)
	if info == nil {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("no stake for %s", params.StakerID)}
	}
	return info, nil
}

func (s *Server) handleStakingGetAllStakers(req *Request) (interface{}, *Error) {
	if err := s.requireLedger(); err != nil {
		return nil, err
	}
	return s.ledger.GetAllStakers(), nil
}

func (s *Server) handleStakingGetLeaderboard(req *Request) (interface{}, *Error) {
	if err := s.requireLedger(); err != nil {
		return nil, err
	}
	var params LimitParam
	if req.Params != nil {
		if err := parseParams(req, &params); err != nil {
			return nil, err
		}
	}
	return s.ledger.GetValidatorLeaderboard(params.Limit), nil
}

func (s *Server) handleStakingGetStats(req *Request) (interface{}, *Error) {
	if err := s.requireLedger(); err != nil {
		return nil, err
	}
	return s.ledger.GetStakingStats(), nil
}

func (s *Server) handleStakingIsValidator(req *Request) (interface{}, *Error) {
	if err := s.requireLedger(); err != nil {
		return nil, err
	}
	var params StakerParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.StakerID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "staker_id is required"}
	}
	return &IsValidatorResult{
		StakerID:    params.StakerID,
		IsValidator: s.ledger.IsCurrentValidator(params.StakerID),
	}, nil
}

func (s *Server) handleStakingElectValidators(req *Request) (interface{}, *Error) {
	if err := s.requireLedger(); err != nil {
		return nil, err
	}
	return s.ledger.ElectValidators(), nil
}

func (s *Server) handleStakingStartEpoch(req *Request) (interface{}, *Error) {
	if err := s.requireLedger(); err != nil {
		return nil, err
	}
	ep, err := s.ledger.StartNewEpoch()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("start epoch: %v", err)}
	}
	return ep, nil
}

func (s *Server) handleStakingGetCurrentEpoch(req *Request) (interface{}, *Error) {
	if err := s.requireLedger(); err != nil {
		return nil, err
	}
	ep := s.ledger.GetCurrentEpoch()
	if ep == nil {
		return nil, &Error{Code: CodeNotFound, Message: "no epoch started"}
	}
	return ep, nil
}

// stakingError maps ledger errors to JSON-RPC errors. Validation failures
// are the caller's fault; anything else is internal.
func stakingError(err error) *Error {
	switch {
	case errors.Is(err, staking.ErrBelowMinimum),
		errors.Is(err, staking.ErrInvalidAmount),
		errors.Is(err, staking.ErrInsufficientStake),
		errors.Is(err, staking.ErrStakeLocked):
		return &Error{Code: CodeRejected, Message: err.Error()}
	case errors.Is(err, staking.ErrNoStake):
		return &Error{Code: CodeNotFound, Message: err.Error()}
	default:
		return &Error{Code: CodeInternalError, Message: err.Error()}
	}
}

// ── Consensus endpoints ─────────────────────────────────────────────────

func (s *Server) handleConsensusCreateChallenge(req *Request) (interface{}, *Error) {
	var params CreateChallengeParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.WorkType == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "work_type is required"}
	}

	info, err := s.engine.CreateChallenge(params.WorkType, params.Input, params.RequiredWorkers)
	if err != nil {
		if errors.Is(err, consensus.ErrInsufficientWorkers) {
			return nil, &Error{Code: CodeRejected, Message: err.Error()}
		}
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return info, nil
}

func (s *Server) handleConsensusSubmitResult(req *Request) (interface{}, *Error) {
	var params SubmitResultParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.WorkerID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "worker_id is required"}
	}
	id, err := types.HexToChallengeID(params.ChallengeID)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid challenge_id: must be 32-byte hex"}
	}

	// Rejections are outcomes, not errors: the worker inspects the reason.
	return s.engine.SubmitResult(id, params.WorkerID, params.Result), nil
}

func (s *Server) handleConsensusGetChallenge(req *Request) (interface{}, *Error) {
	id, rpcErr := parseChallengeID(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	info := s.engine.GetChallenge(id)
	if info == nil {
		return nil, &Error{Code: CodeNotFound, Message: "challenge not found"}
	}
	return info, nil
}

func (s *Server) handleConsensusGetResult(req *Request) (interface{}, *Error) {
	id, rpcErr := parseChallengeID(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	result := s.engine.GetResult(id)
	if result == nil {
		return nil, &Error{Code: CodeNotFound, Message: "no result: challenge unknown or not yet evaluated"}
	}
	return result, nil
}

func (s *Server) handleConsensusGetWorkerChallenges(req *Request) (interface{}, *Error) {
	var params WorkerParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.WorkerID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "worker_id is required"}
	}
	return s.engine.GetWorkerChallenges(params.WorkerID), nil
}

func (s *Server) handleConsensusGetWorkerStats(req *Request) (interface{}, *Error) {
	var params WorkerParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.WorkerID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "worker_id is required"}
	}
	stats := s.engine.GetWorkerStats(params.WorkerID)
	if stats == nil {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("no consensus history for %s", params.WorkerID)}
	}
	return stats, nil
}

func (s *Server) handleConsensusGetStats(req *Request) (interface{}, *Error) {
	return s.engine.GetStats(), nil
}

func (s *Server) handleDifficultyAssess(req *Request) (interface{}, *Error) {
	var params AssessParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.WorkType == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "work_type is required"}
	}
	return s.assessor.Assess(params.WorkType, params.Input), nil
}

// parseChallengeID extracts and decodes a challenge_id param.
func parseChallengeID(req *Request) (types.ChallengeID, *Error) {
	var params ChallengeParam
	if err := parseParams(req, &params); err != nil {
		return types.ChallengeID{}, err
	}
	id, err := types.HexToChallengeID(params.ChallengeID)
	if err != nil {
		return types.ChallengeID{}, &Error{Code: CodeInvalidParams, Message: "invalid challenge_id: must be 32-byte hex"}
	}
	return id, nil
}

// ── Worker endpoints ────────────────────────────────────────────────────

func (s *Server) handleWorkerRegister(req *Request) (interface{}, *Error) {
	var params WorkerRegisterParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.WorkerID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "worker_id is required"}
	}

	if params.PublicKey != "" {
		pubKey, err := hex.DecodeString(params.PublicKey)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "invalid public_key: must be hex"}
		}
		if err := s.workers.RegisterWithKey(params.WorkerID, pubKey); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
	} else {
		s.workers.Register(params.WorkerID)
	}
	return s.workers.GetStatus(params.WorkerID), nil
}

func (s *Server) handleWorkerHeartbeat(req *Request) (interface{}, *Error) {
	var params WorkerHeartbeatParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.WorkerID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "worker_id is required"}
	}

	if params.Signature != "" {
		sig, err := hex.DecodeString(params.Signature)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "invalid signature: must be hex"}
		}
		if err := s.workers.SignedHeartbeat(params.WorkerID, params.Timestamp, sig); err != nil {
			return nil, &Error{Code: CodeRejected, Message: err.Error()}
		}
	} else if err := s.workers.Heartbeat(params.WorkerID); err != nil {
		return nil, &Error{Code: CodeRejected, Message: err.Error()}
	}
	return s.workers.GetStatus(params.WorkerID), nil
}

func (s *Server) handleWorkerGetStatus(req *Request) (interface{}, *Error) {
	var params WorkerParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.WorkerID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "worker_id is required"}
	}
	status := s.workers.GetStatus(params.WorkerID)
	if status == nil {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("worker %s not registered", params.WorkerID)}
	}
	return status, nil
}

func (s *Server) handleWorkerListEligible(req *Request) (interface{}, *Error) {
	return s.workers.EligibleWorkers(), nil
}

func (s *Server) handleWorkerCount(req *Request) (interface{}, *Error) {
	return &WorkerCountResult{
		Registered: s.workers.Count(),
		Eligible:   len(s.workers.EligibleWorkers()),
	}, nil
}

// ── Node endpoints ──────────────────────────────────────────────────────

func (s *Server) handleNodeGetInfo(req *Request) (interface{}, *Error) {
	return &NodeInfoResult{
		Network: s.network,
		Version: s.version,
	}, nil
}
