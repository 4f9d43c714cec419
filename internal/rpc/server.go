// Package rpc implements the JSON-RPC 2.0 API server.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/attestnet/attestnet/config"
	"github.com/attestnet/attestnet/internal/consensus"
	"github.com/attestnet/attestnet/internal/difficulty"
	klog "github.com/attestnet/attestnet/internal/log"
	"github.com/attestnet/attestnet/internal/registry"
	"github.com/attestnet/attestnet/internal/staking"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr        string
	ledger      *staking.Ledger // nil = staking endpoints disabled
	engine      *consensus.Engine
	workers     *registry.Registry
	assessor    *difficulty.Assessor
	network     string
	version     string
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// New creates a new RPC server. The rpcCfg parameter controls IP filtering
// and CORS; a zero-value RPCConfig allows all IPs and disables CORS.
// A nil ledger disables the staking_* endpoints.
func New(addr string, ledger *staking.Ledger, engine *consensus.Engine,
	workers *registry.Registry, assessor *difficulty.Assessor, rpcCfg ...config.RPCConfig) *Server {

	s := &Server{
		addr:     addr,
		ledger:   ledger,
		engine:   engine,
		workers:  workers,
		assessor: assessor,
		logger:   klog.WithComponent("rpc"),
	}

	if len(rpcCfg) > 0 {
		s.allowedNets = parseAllowedIPs(rpcCfg[0].AllowedIPs)
		s.corsOrigins = rpcCfg[0].CORSOrigins
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// SetNodeInfo sets the identity reported by node_getInfo.
func (s *Server) SetNodeInfo(network, version string) {
	s.network = network
	s.version = version
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Try as a single IP (add /32 or /128).
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleRequest is the main HTTP handler for JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	// IP filtering.
	if len(s.allowedNets) > 0 {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ip := net.ParseIP(host)
		if ip == nil || !s.isIPAllowed(ip) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	// CORS headers.
	s.setCORSHeaders(w, r)

	// Handle CORS preflight.
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}

	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	result, rpcErr := s.dispatch(&req)
	if rpcErr != nil {
		writeJSON(w, Response{
			JSONRPC: "2.0",
			Error:   rpcErr,
			ID:      req.ID,
		})
		return
	}

	writeJSON(w, Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	})
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(req *Request) (interface{}, *Error) {
	switch req.Method {
	case "staking_stake":
		return s.handleStakingStake(req)
	case "staking_unstake":
		return s.handleStakingUnstake(req)
	case "staking_slash":
		return s.handleStakingSlash(req)
	case "staking_getStakeInfo":
		return s.handleStakingGetStakeInfo(req)
	case "staking_getAllStakers":
		return s.handleStakingGetAllStakers(req)
	case "staking_getLeaderboard":
		return s.handleStakingGetLeaderboard(req)
	case "staking_getStats":
		return s.handleStakingGetStats(req)
	case "staking_isValidator":
		return s.handleStakingIsValidator(req)
	case "staking_electValidators":
		return s.handleStakingElectValidators(req)
	case "staking_startEpoch":
		return s.handleStakingStartEpoch(req)
	case "staking_getCurrentEpoch":
		return s.handleStakingGetCurrentEpoch(req)
	case "consensus_createChallenge":
		return s.handleConsensusCreateChallenge(req)
	case "consensus_submitResult":
		return s.handleConsensusSubmitResult(req)
	case "consensus_getChallenge":
		return s.handleConsensusGetChallenge(req)
	case "consensus_getResult":
		return s.handleConsensusGetResult(req)
	case "consensus_getWorkerChallenges":
		return s.handleConsensusGetWorkerChallenges(req)
	case "consensus_getWorkerStats":
		return s.handleConsensusGetWorkerStats(req)
	case "consensus_getStats":
		return s.handleConsensusGetStats(req)
	case "difficulty_assess":
		return s.handleDifficultyAssess(req)
	case "worker_register":
		return s.handleWorkerRegister(req)
	case "worker_heartbeat":
		return s.handleWorkerHeartbeat(req)
	case "worker_getStatus":
		return s.handleWorkerGetStatus(req)
	case "worker_listEligible":
		return s.handleWorkerListEligible(req)
	case "worker_count":
		return s.handleWorkerCount(req)
	case "node_getInfo":
		return s.handleNodeGetInfo(req)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

// writeJSON writes a JSON-RPC response.
func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response.
func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	})
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			allowed = true
			break
		}
	}

	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

// parseParams unmarshals the request params into the given target.
func parseParams(req *Request, target interface{}) *Error {
	if req.Params == nil {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}

	data, err := json.Marshal(req.Params)
	if err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params"}
	}

	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

// requireLedger guards the staking_* endpoints.
func (s *Server) requireLedger() *Error {
	if s.ledger == nil {
		return &Error{Code: CodeNotFound, Message: "staking not enabled on this node"}
	}
	return nil
}
