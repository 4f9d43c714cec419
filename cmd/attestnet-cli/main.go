// attestnet-cli is a command-line client for interacting with an attestnetd node.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/attestnet/attestnet/internal/rpc"
	"github.com/attestnet/attestnet/internal/rpcclient"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	rpcURL := "http://127.0.0.1:8640"

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := rpcclient.New(rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(client)
	case "stake":
		cmdStake(client, cmdArgs)
	case "validators":
		cmdValidators(client)
	case "epoch":
		cmdEpoch(client)
	case "challenge":
		cmdChallenge(client, cmdArgs)
	case "worker":
		cmdWorker(client, cmdArgs)
	case "assess":
		cmdAssess(client, cmdArgs)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: attestnet-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         RPC endpoint (default: http://127.0.0.1:8640)

Commands:
  status                          Show node and consensus status

  stake info <staker_id>          Show stake details for a staker
  stake add --staker <id> --amount <n> [--lock <duration>]
                                  Add stake, optionally locked
  stake withdraw --staker <id> --amount <n>
                                  Withdraw unlocked stake
  stake list                      List all stakers
  stake leaderboard [--limit <n>] Show top stakers
  stake stats                     Show staking totals

  validators                      Show the current validator set
  epoch                           Show the active epoch

  challenge create --type <work_type> [--input <json>] [--workers <n>]
                                  Create a consensus challenge
  challenge show <id>             Show challenge details
  challenge result <id>           Show consensus result
  challenge submit --id <id> --worker <w> --result <json>
                                  Submit a worker result
  challenge worker <worker_id>    List a worker's challenges
  challenge stats                 Show engine statistics

  worker register <id> [--pubkey <hex>]
                                  Register a worker
  worker heartbeat <id>           Send a heartbeat
  worker status <id>              Show worker liveness
  worker list                     List eligible workers

  assess <work_type> [--input <json>]
                                  Show the difficulty assessment for work
`)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// parseJSONFlag decodes an optional JSON object argument.
func parseJSONFlag(raw, flagName string) map[string]any {
	if raw == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		fatal("--%s must be a JSON object: %v", flagName, err)
	}
	return m
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("encode: %v", err)
	}
	fmt.Println(string(data))
}

// ── status ──────────────────────────────────────────────────────────────

func cmdStatus(client *rpcclient.Client) {
	var info rpc.NodeInfoResult
	if err := client.Call("node_getInfo", nil, &info); err != nil {
		fatal("node_getInfo: %v", err)
	}

	var stats struct {
		Active           int     `json:"active_challenges"`
		ConsensusReached uint64  `json:"consensus_reached"`
		ConsensusFailed  uint64  `json:"consensus_failed"`
		Expired          uint64  `json:"expired"`
		MeanAgreement    float64 `json:"mean_agreement_rate"`
	}
	if err := client.Call("consensus_getStats", nil, &stats); err != nil {
		fatal("consensus_getStats: %v", err)
	}

	var workers rpc.WorkerCountResult
	if err := client.Call("worker_count", nil, &workers); err != nil {
		fatal("worker_count: %v", err)
	}

	fmt.Printf("Network:    %s\n", info.Network)
	fmt.Printf("Version:    %s\n", info.Version)
	fmt.Printf("Challenges: %d active, %d reached, %d failed, %d expired\n",
		stats.Active, stats.ConsensusReached, stats.ConsensusFailed, stats.Expired)
	fmt.Printf("Workers:    %d registered, %d eligible\n", workers.Registered, workers.Eligible)
}

// ── stake ───────────────────────────────────────────────────────────────

func cmdStake(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: attestnet-cli stake <info|add|withdraw|list|leaderboard|stats>")
	}

	switch args[0] {
	case "info":
		if len(args) < 2 {
			fatal("Usage: attestnet-cli stake info <staker_id>")
		}
		var raw json.RawMessage
		if err := client.Call("staking_getStakeInfo", rpc.StakerParam{StakerID: args[1]}, &raw); err != nil {
			fatal("staking_getStakeInfo: %v", err)
		}
		printJSON(raw)

	case "add":
		fs := flag.NewFlagSet("stake add", flag.ExitOnError)
		staker := fs.String("staker", "", "staker ID")
		amount := fs.String("amount", "", "amount in base units")
		lock := fs.Duration("lock", 0, "lock duration (e.g. 720h)")
		fs.Parse(args[1:])
		if *staker == "" || *amount == "" {
			fatal("Usage: attestnet-cli stake add --staker <id> --amount <n> [--lock <duration>]")
		}
		var raw json.RawMessage
		params := rpc.StakeParam{StakerID: *staker, Amount: *amount, LockDurationMs: lock.Milliseconds()}
		if err := client.Call("staking_stake", params, &raw); err != nil {
			fatal("staking_stake: %v", err)
		}
		printJSON(raw)

	case "withdraw":
		fs := flag.NewFlagSet("stake withdraw", flag.ExitOnError)
		staker := fs.String("staker", "", "staker ID")
		amount := fs.String("amount", "", "amount in base units")
		fs.Parse(args[1:])
		if *staker == "" || *amount == "" {
			fatal("Usage: attestnet-cli stake withdraw --staker <id> --amount <n>")
		}
		var raw json.RawMessage
		if err := client.Call("staking_unstake", rpc.UnstakeParam{StakerID: *staker, Amount: *amount}, &raw); err != nil {
			fatal("staking_unstake: %v", err)
		}
		printJSON(raw)

	case "list":
		var raw json.RawMessage
		if err := client.Call("staking_getAllStakers", map[string]any{}, &raw); err != nil {
			fatal("staking_getAllStakers: %v", err)
		}
		printJSON(raw)

	case "leaderboard":
		fs := flag.NewFlagSet("stake leaderboard", flag.ExitOnError)
		limit := fs.Int("limit", 10, "number of entries")
		fs.Parse(args[1:])
		var infos []struct {
			StakerID     string `json:"staker_id"`
			StakedAmount string `json:"staked_amount"`
			IsValidator  bool   `json:"is_validator"`
		}
		if err := client.Call("staking_getLeaderboard", rpc.LimitParam{Limit: *limit}, &infos); err != nil {
			fatal("staking_getLeaderboard: %v", err)
		}
		for i, info := range infos {
			marker := " "
			if info.IsValidator {
				marker = "*"
			}
			fmt.Printf("%2d %s %-24s %s\n", i+1, marker, info.StakerID, info.StakedAmount)
		}

	case "stats":
		var raw json.RawMessage
		if err := client.Call("staking_getStats", map[string]any{}, &raw); err != nil {
			fatal("staking_getStats: %v", err)
		}
		printJSON(raw)

	default:
		fatal("Unknown stake command: %s", args[0])
	}
}

// ── validators / epoch ──────────────────────────────────────────────────

func cmdValidators(client *rpcclient.Client) {
	var election struct {
		Validators []string `json:"validators"`
		TotalStake string   `json:"total_stake"`
	}
	if err := client.Call("staking_electValidators", map[string]any{}, &election); err != nil {
		fatal("staking_electValidators: %v", err)
	}
	fmt.Printf("Validators:  %d\n", len(election.Validators))
	fmt.Printf("Total stake: %s\n", election.TotalStake)
	for i, v := range election.Validators {
		fmt.Printf("  [%d] %s\n", i+1, v)
	}
}

func cmdEpoch(client *rpcclient.Client) {
	var ep struct {
		ID         uint64   `json:"id"`
		StartTime  int64    `json:"start_time"`
		EndTime    int64    `json:"end_time"`
		Status     string   `json:"status"`
		Validators []string `json:"validators"`
		TotalStake string   `json:"total_stake"`
	}
	if err := client.Call("staking_getCurrentEpoch", map[string]any{}, &ep); err != nil {
		fatal("staking_getCurrentEpoch: %v", err)
	}
	fmt.Printf("Epoch:       %d (%s)\n", ep.ID, ep.Status)
	fmt.Printf("Start:       %s\n", time.UnixMilli(ep.StartTime).UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Printf("End:         %s\n", time.UnixMilli(ep.EndTime).UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Printf("Validators:  %d\n", len(ep.Validators))
	fmt.Printf("Total stake: %s\n", ep.TotalStake)
}

// ── challenge ───────────────────────────────────────────────────────────

func cmdChallenge(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: attestnet-cli challenge <create|show|result|submit|worker|stats>")
	}

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("challenge create", flag.ExitOnError)
		workType := fs.String("type", "", "work type")
		input := fs.String("input", "", "input data as JSON object")
		workers := fs.Int("workers", 0, "required workers override")
		fs.Parse(args[1:])
		if *workType == "" {
			fatal("Usage: attestnet-cli challenge create --type <work_type> [--input <json>] [--workers <n>]")
		}
		params := rpc.CreateChallengeParam{
			WorkType:        *workType,
			Input:           parseJSONFlag(*input, "input"),
			RequiredWorkers: *workers,
		}
		var raw json.RawMessage
		if err := client.Call("consensus_createChallenge", params, &raw); err != nil {
			fatal("consensus_createChallenge: %v", err)
		}
		printJSON(raw)

	case "show":
		if len(args) < 2 {
			fatal("Usage: attestnet-cli challenge show <id>")
		}
		var raw json.RawMessage
		if err := client.Call("consensus_getChallenge", rpc.ChallengeParam{ChallengeID: args[1]}, &raw); err != nil {
			fatal("consensus_getChallenge: %v", err)
		}
		printJSON(raw)

	case "result":
		if len(args) < 2 {
			fatal("Usage: attestnet-cli challenge result <id>")
		}
		var raw json.RawMessage
		if err := client.Call("consensus_getResult", rpc.ChallengeParam{ChallengeID: args[1]}, &raw); err != nil {
			fatal("consensus_getResult: %v", err)
		}
		printJSON(raw)

	case "submit":
		fs := flag.NewFlagSet("challenge submit", flag.ExitOnError)
		id := fs.String("id", "", "challenge ID")
		worker := fs.String("worker", "", "worker ID")
		result := fs.String("result", "", "result as JSON object")
		fs.Parse(args[1:])
		if *id == "" || *worker == "" || *result == "" {
			fatal("Usage: attestnet-cli challenge submit --id <id> --worker <w> --result <json>")
		}
		params := rpc.SubmitResultParam{
			ChallengeID: *id,
			WorkerID:    *worker,
			Result:      parseJSONFlag(*result, "result"),
		}
		var outcome struct {
			Accepted bool   `json:"accepted"`
			Reason   string `json:"reason"`
		}
		if err := client.Call("consensus_submitResult", params, &outcome); err != nil {
			fatal("consensus_submitResult: %v", err)
		}
		if outcome.Accepted {
			fmt.Println("Accepted")
		} else {
			fmt.Printf("Rejected: %s\n", outcome.Reason)
		}

	case "worker":
		if len(args) < 2 {
			fatal("Usage: attestnet-cli challenge worker <worker_id>")
		}
		var raw json.RawMessage
		if err := client.Call("consensus_getWorkerChallenges", rpc.WorkerParam{WorkerID: args[1]}, &raw); err != nil {
			fatal("consensus_getWorkerChallenges: %v", err)
		}
		printJSON(raw)

	case "stats":
		var raw json.RawMessage
		if err := client.Call("consensus_getStats", map[string]any{}, &raw); err != nil {
			fatal("consensus_getStats: %v", err)
		}
		printJSON(raw)

	default:
		fatal("Unknown challenge command: %s", args[0])
	}
}

// ── worker ──────────────────────────────────────────────────────────────

func cmdWorker(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: attestnet-cli worker <register|heartbeat|status|list>")
	}

	switch args[0] {
	case "register":
		if len(args) < 2 {
			fatal("Usage: attestnet-cli worker register <id> [--pubkey <hex>]")
		}
		fs := flag.NewFlagSet("worker register", flag.ExitOnError)
		pubkey := fs.String("pubkey", "", "33-byte compressed secp256k1 key, hex")
		fs.Parse(args[2:])
		var raw json.RawMessage
		params := rpc.WorkerRegisterParam{WorkerID: args[1], PublicKey: *pubkey}
		if err := client.Call("worker_register", params, &raw); err != nil {
			fatal("worker_register: %v", err)
		}
		printJSON(raw)

	case "heartbeat":
		if len(args) < 2 {
			fatal("Usage: attestnet-cli worker heartbeat <id>")
		}
		var raw json.RawMessage
		if err := client.Call("worker_heartbeat", rpc.WorkerHeartbeatParam{WorkerID: args[1]}, &raw); err != nil {
			fatal("worker_heartbeat: %v", err)
		}
		printJSON(raw)

	case "status":
		if len(args) < 2 {
			fatal("Usage: attestnet-cli worker status <id>")
		}
		var raw json.RawMessage
		if err := client.Call("worker_getStatus", rpc.WorkerParam{WorkerID: args[1]}, &raw); err != nil {
			fatal("worker_getStatus: %v", err)
		}
		printJSON(raw)

	case "list":
		var ids []string
		if err := client.Call("worker_listEligible", map[string]any{}, &ids); err != nil {
			fatal("worker_listEligible: %v", err)
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		fmt.Printf("%d eligible\n", len(ids))

	default:
		fatal("Unknown worker command: %s", args[0])
	}
}

// ── assess ──────────────────────────────────────────────────────────────

func cmdAssess(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: attestnet-cli assess <work_type> [--input <json>]")
	}
	fs := flag.NewFlagSet("assess", flag.ExitOnError)
	input := fs.String("input", "", "input data as JSON object")
	fs.Parse(args[1:])

	var assessment struct {
		Level              string   `json:"level"`
		RequiredWorkers    int      `json:"required_workers"`
		ConsensusThreshold float64  `json:"consensus_threshold"`
		RewardMultiplier   float64  `json:"reward_multiplier"`
		Reasons            []string `json:"reasons"`
	}
	params := rpc.AssessParam{WorkType: args[0], Input: parseJSONFlag(*input, "input")}
	if err := client.Call("difficulty_assess", params, &assessment); err != nil {
		fatal("difficulty_assess: %v", err)
	}

	fmt.Printf("Level:      %s\n", assessment.Level)
	fmt.Printf("Workers:    %d\n", assessment.RequiredWorkers)
	fmt.Printf("Threshold:  %s\n", strconv.FormatFloat(assessment.ConsensusThreshold, 'f', 2, 64))
	fmt.Printf("Multiplier: %sx\n", strconv.FormatFloat(assessment.RewardMultiplier, 'f', 2, 64))
	for _, reason := range assessment.Reasons {
		fmt.Printf("  - %s\n", reason)
	}
}
