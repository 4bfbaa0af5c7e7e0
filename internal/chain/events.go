package chain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// EventKind 链上事件名
type EventKind string

const (
	EventInvestmentMade     EventKind = "InvestmentMade"
	EventMilestoneCompleted EventKind = "MilestoneCompleted"
	EventInterestClaimed    EventKind = "InterestClaimed"
)

// Event 归一化后的链上事件，金额为十进制，时间为 UTC
type Event struct {
	Kind            EventKind       `json:"kind"`
	Contract        string          `json:"contract"`
	ContractAddress string          `json:"contract_address"`
	ChainProjectId  int64           `json:"chain_project_id"`
	Investor        string          `json:"investor,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Tokens          decimal.Decimal `json:"tokens"`
	MilestoneIndex  int             `json:"milestone_index"`
	EvidenceHash    string          `json:"evidence_hash,omitempty"`
	Verifier        string          `json:"verifier,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
	TxHash          string          `json:"tx_hash"`
	BlockNumber     uint64          `json:"block_number"`
	LogIndex        uint            `json:"log_index"`
}

// decodeEvent 把日志解码为事件。不认识的事件返回 ok=false。
func decodeEvent(c *Contract, log types.Log) (Event, bool, error) {
	name, values, err := c.ParseEvent(log)
	if err != nil {
		return Event{}, false, err
	}

	ev := Event{
		Kind:            EventKind(name),
		Contract:        c.GetName(),
		ContractAddress: NormalizeAddress(c.GetAddress()),
		TxHash:          NormalizeHash(log.TxHash.Hex()),
		BlockNumber:     log.BlockNumber,
		LogIndex:        log.Index,
	}

	switch ev.Kind {
	case EventInvestmentMade, EventMilestoneCompleted, EventInterestClaimed:
	default:
		return Event{}, false, nil
	}

	projectId, err := bigArg(values, "projectId")
	if err != nil {
		return Event{}, false, err
	}
	if !projectId.IsInt64() {
		return Event{}, false, fmt.Errorf("projectId %s out of range", projectId)
	}
	ev.ChainProjectId = projectId.Int64()

	if ts, err := bigArg(values, "timestamp"); err == nil {
		ev.Timestamp = FromUnixSeconds(ts)
	}

	switch ev.Kind {
	case EventInvestmentMade:
		investor, err := addressArg(values, "investor")
		if err != nil {
			return Event{}, false, err
		}
		amount, err := bigArg(values, "amount")
		if err != nil {
			return Event{}, false, err
		}
		ev.Investor = NormalizeAddress(investor)
		ev.Amount = FromBaseUnits(amount, DefaultDecimals)
		if tokens, err := bigArg(values, "tokens"); err == nil {
			ev.Tokens = FromBaseUnits(tokens, DefaultDecimals)
		}

	case EventMilestoneCompleted:
		index, err := bigArg(values, "milestoneIndex")
		if err != nil {
			return Event{}, false, err
		}
		if !index.IsInt64() {
			return Event{}, false, fmt.Errorf("milestoneIndex %s out of range", index)
		}
		verifier, err := addressArg(values, "verifier")
		if err != nil {
			return Event{}, false, err
		}
		evidence, _ := values["evidenceHash"].(string)
		ev.MilestoneIndex = int(index.Int64())
		ev.EvidenceHash = evidence
		ev.Verifier = NormalizeAddress(verifier)

	case EventInterestClaimed:
		investor, err := addressArg(values, "investor")
		if err != nil {
			return Event{}, false, err
		}
		amount, err := bigArg(values, "amount")
		if err != nil {
			return Event{}, false, err
		}
		ev.Investor = NormalizeAddress(investor)
		ev.Amount = FromBaseUnits(amount, DefaultDecimals)
	}

	return ev, true, nil
}
