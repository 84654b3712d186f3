package actions

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tildenfx/marketstate/internal/book"
	"github.com/tildenfx/marketstate/internal/clock"
	"github.com/tildenfx/marketstate/internal/contracts"
)

// wireFrame is the superset of fields any single wire message may carry.
// Decoding picks the relevant subset based on Type.
type wireFrame struct {
	Type       string `json:"type"`
	StatusType *int   `json:"status_type"`

	ContractID *int64 `json:"contract_id"`
	Mid        string `json:"mid"`
	MPID       string `json:"mpid"`
	CID        string `json:"cid"`
	Clock      int64  `json:"clock"`
	Ticks      int64  `json:"ticks"`
	IsAsk      bool   `json:"is_ask"`
	Price      int64  `json:"price"`
	Size       int64  `json:"size"`
	FilledSize int64  `json:"filled_size"`
	FilledPrice int64 `json:"filled_price"`

	BestBid *int64 `json:"bid"`
	BestAsk *int64 `json:"ask"`

	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`

	Collateral *struct {
		AvailableBalances      map[string]int64 `json:"available_balances"`
		PositionLockedBalances map[string]int64 `json:"position_locked_balances"`
	} `json:"collateral"`

	Positions []struct {
		ID            int64 `json:"id"`
		ContractID    int64 `json:"contract_id"`
		Size          int64 `json:"size"`
		AssignedSize  int64 `json:"assigned_size"`
		ExercisedSize int64 `json:"exercised_size"`
	} `json:"positions"`

	ID              *int64 `json:"id"`
	Label           string `json:"label"`
	DerivativeType  string `json:"derivative_type"`
	UnderlyingAsset string `json:"underlying_asset"`
	DateExpires     string `json:"date_expires"`
	Active          *bool  `json:"active"`
	IsNextDay       bool   `json:"is_next_day"`
	IsCall          bool   `json:"is_call"`
	StrikePrice     int64  `json:"strike_price"`

	TradeID string `json:"trade_id"`
}

var derivativeTypeFromWire = map[string]contracts.DerivativeType{
	"future_contract":        contracts.Future,
	"options_contract":       contracts.Option,
	"day_ahead_swap_contract": contracts.DayAheadSwap,
}

// dateLayouts covers the ISO-ish timestamp formats observed on contract
// and heartbeat payloads.
var dateLayouts = []string{
	"2006-01-02 15:04:05-07:00",
	time.RFC3339,
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

// Decode classifies and parses one raw websocket/REST-reload frame.
// Frames with no recognized `type` become Other; frames of a known type
// that fail to parse a required field return an error so the caller can
// log and drop them (spec §7 taxonomy item 4 — invariant violation,
// never fatal, but the caller decides how to log it).
func Decode(raw []byte) (Action, error) {
	var w wireFrame
	if err := json.Unmarshal(raw, &w); err != nil {
		return Action{}, fmt.Errorf("actions: malformed frame: %w", err)
	}

	switch Kind(w.Type) {
	case KindBookTop:
		if w.ContractID == nil {
			return Action{}, fmt.Errorf("actions: book_top missing contract_id")
		}
		return Action{Kind: KindBookTop, BookTop: &BookTopPayload{
			ContractID: contracts.ID(*w.ContractID),
			BestBid:    w.BestBid,
			BestAsk:    w.BestAsk,
			Clock:      w.Clock,
		}}, nil

	case KindActionReport:
		if w.ContractID == nil {
			return Action{}, fmt.Errorf("actions: action_report missing contract_id")
		}
		if w.StatusType == nil {
			return Action{}, fmt.Errorf("actions: action_report missing status_type")
		}
		order := book.Order{
			ContractID:  contracts.ID(*w.ContractID),
			Mid:         book.Mid(w.Mid),
			MPID:        w.MPID,
			CID:         w.CID,
			Clock:       clock.Clock{Seq: w.Clock, Ticks: w.Ticks},
			StatusType:  book.StatusType(*w.StatusType),
			IsAsk:       w.IsAsk,
			Price:       w.Price,
			Size:        w.Size,
			FilledSize:  w.FilledSize,
			FilledPrice: w.FilledPrice,
		}
		return Action{Kind: KindActionReport, ActionReport: &order}, nil

	case KindHeartbeat:
		return Action{Kind: KindHeartbeat, Heartbeat: &HeartbeatPayload{
			Ticks:     w.Ticks,
			RunID:     w.RunID,
			Timestamp: w.Timestamp,
		}}, nil

	case KindCollateralUpdate:
		payload := &CollateralUpdatePayload{}
		if w.Collateral != nil {
			payload.AvailableBalances = w.Collateral.AvailableBalances
			payload.PositionLockedBalances = w.Collateral.PositionLockedBalances
		}
		return Action{Kind: KindCollateralUpdate, CollateralUpdate: payload}, nil

	case KindOpenPositionsUpdate:
		updates := make([]PositionUpdate, 0, len(w.Positions))
		for _, p := range w.Positions {
			updates = append(updates, PositionUpdate{
				ID:            p.ID,
				ContractID:    contracts.ID(p.ContractID),
				Size:          p.Size,
				AssignedSize:  p.AssignedSize,
				ExercisedSize: p.ExercisedSize,
			})
		}
		return Action{Kind: KindOpenPositionsUpdate, OpenPositionsUpdate: &OpenPositionsUpdatePayload{Positions: updates}}, nil

	case KindExposureReport:
		return Action{Kind: KindExposureReport, ExposureReport: &struct{}{}}, nil

	case KindContractAdded:
		if w.ID == nil {
			return Action{}, fmt.Errorf("actions: contract_added missing id")
		}
		expires, err := parseTimestamp(w.DateExpires)
		if err != nil {
			return Action{}, fmt.Errorf("actions: contract_added: bad date_expires: %w", err)
		}
		active := true
		if w.Active != nil {
			active = *w.Active
		}
		ct := &contracts.Contract{
			ID:              contracts.ID(*w.ID),
			Label:           w.Label,
			DerivativeType:  derivativeTypeFromWire[w.DerivativeType],
			UnderlyingAsset: w.UnderlyingAsset,
			DateExpires:     expires,
			Active:          active,
			IsNextDay:       w.IsNextDay,
			IsCall:          w.IsCall,
			StrikePrice:     w.StrikePrice,
		}
		if ct.DerivativeType == "" {
			ct.DerivativeType = contracts.DerivativeType(w.DerivativeType)
		}
		return Action{Kind: KindContractAdded, ContractAdded: ct}, nil

	case KindContractRemoved:
		if w.ContractID == nil && w.ID == nil {
			return Action{}, fmt.Errorf("actions: contract_removed missing id")
		}
		id := w.ContractID
		if id == nil {
			id = w.ID
		}
		return Action{Kind: KindContractRemoved, ContractRemoved: &ContractRemovedPayload{ContractID: contracts.ID(*id)}}, nil

	case KindTradeBusted:
		var cid contracts.ID
		if w.ContractID != nil {
			cid = contracts.ID(*w.ContractID)
		}
		return Action{Kind: KindTradeBusted, TradeBusted: &TradeBustedPayload{ContractID: cid, TradeID: w.TradeID}}, nil

	default:
		if len(w.Type) >= len("_success") && w.Type[len(w.Type)-len("_success"):] == "_success" {
			return Action{Kind: KindSuccess, Success: &SuccessPayload{WireType: w.Type}}, nil
		}
		return Action{Kind: KindOther, Other: &OtherPayload{WireType: w.Type, Raw: raw}}, nil
	}
}
