package restapi

import (
	"time"

	"github.com/tildenfx/marketstate/internal/book"
	"github.com/tildenfx/marketstate/internal/clock"
	"github.com/tildenfx/marketstate/internal/contracts"
	"github.com/tildenfx/marketstate/internal/ledger"
	"github.com/tildenfx/marketstate/internal/positions"
	"github.com/tildenfx/marketstate/internal/session"
)

// wire DTOs mirror the exchange's JSON shapes. Timestamps on the wire are
// unix milliseconds; prices and sizes are already integer cents/contracts,
// matching spec.md's glossary.

type contractDTO struct {
	ID              contracts.ID `json:"id"`
	Name            string       `json:"name"`
	DerivativeType  string       `json:"derivative_type"`
	UnderlyingAsset string       `json:"underlying_asset"`
	DateExpires     int64        `json:"date_expires"`
	Active          bool         `json:"active"`
	IsNextDay       bool         `json:"is_next_day"`
	IsCall          bool         `json:"is_call"`
	StrikePrice     int64        `json:"strike_price"`
}

func (d contractDTO) toDomain() contracts.Contract {
	return contracts.Contract{
		ID:              d.ID,
		Label:           d.Name,
		DerivativeType:  contracts.DerivativeType(d.DerivativeType),
		UnderlyingAsset: d.UnderlyingAsset,
		DateExpires:     time.UnixMilli(d.DateExpires).UTC(),
		Active:          d.Active,
		IsNextDay:       d.IsNextDay,
		IsCall:          d.IsCall,
		StrikePrice:     d.StrikePrice,
	}
}

type contractsPage struct {
	Data []contractDTO `json:"data"`
	Meta struct {
		Next *string `json:"next"`
	} `json:"meta"`
}

type positionDTO struct {
	ID            int64        `json:"id"`
	ContractID    contracts.ID `json:"contract_id"`
	Type          string       `json:"type"`
	Size          int64        `json:"size"`
	AssignedSize  int64        `json:"assigned_size"`
	ExercisedSize int64        `json:"exercised_size"`
}

func (d positionDTO) toDomain() session.RESTPosition {
	typ := positions.Long
	if d.Type == "short" {
		typ = positions.Short
	}
	return session.RESTPosition{
		ServerID:      d.ID,
		ContractID:    d.ContractID,
		Type:          typ,
		Size:          d.Size,
		AssignedSize:  d.AssignedSize,
		ExercisedSize: d.ExercisedSize,
	}
}

type positionsPage struct {
	Data []positionDTO `json:"data"`
	Meta struct {
		Next *string `json:"next"`
	} `json:"meta"`
}

type tradeDTO struct {
	Side       string `json:"side"`
	FilledSize int64  `json:"filled_size"`
	Premium    int64  `json:"premium"`
	Fee        int64  `json:"fee"`
	Rebate     int64  `json:"rebate"`
}

func (d tradeDTO) toDomain() positions.Trade {
	side := positions.Bid
	if d.Side == "ask" {
		side = positions.Ask
	}
	return positions.Trade{
		Side:       side,
		FilledSize: d.FilledSize,
		Premium:    d.Premium,
		Fee:        d.Fee,
		Rebate:     d.Rebate,
	}
}

type tradesPage struct {
	Data []tradeDTO `json:"data"`
	Meta struct {
		Next *string `json:"next"`
	} `json:"meta"`
}

type transactionDTO struct {
	Asset             string `json:"asset"`
	State             string `json:"state"`
	Amount            int64  `json:"amount"`
	DebitAccountField string `json:"debit_account_field"`
	CreditAccountField string `json:"credit_account_field"`
	DebitPostBalance   *int64 `json:"debit_post_balance"`
	CreditPostBalance  *int64 `json:"credit_post_balance"`
}

func (d transactionDTO) toDomain() ledger.Transaction {
	return ledger.Transaction{
		Asset:             d.Asset,
		State:             d.State,
		Amount:            d.Amount,
		DebitField:        d.DebitAccountField,
		CreditField:       d.CreditAccountField,
		DebitPostBalance:  d.DebitPostBalance,
		CreditPostBalance: d.CreditPostBalance,
	}
}

type transactionsPage struct {
	Data []transactionDTO `json:"data"`
	Meta struct {
		Next *string `json:"next"`
	} `json:"meta"`
}

type orderDTO struct {
	ContractID  contracts.ID `json:"contract_id"`
	Mid         string       `json:"mid"`
	MPID        string       `json:"mpid"`
	CID         string       `json:"cid"`
	Ticks       int64        `json:"ticks"`
	Seq         int64        `json:"clock"`
	IsAsk       bool         `json:"is_ask"`
	Price       int64        `json:"price"`
	Size        int64        `json:"size"`
	FilledSize  int64        `json:"filled_size"`
	FilledPrice int64        `json:"filled_price"`
}

func (d orderDTO) toDomain() book.Order {
	return book.Order{
		ContractID:  d.ContractID,
		Mid:         book.Mid(d.Mid),
		MPID:        d.MPID,
		CID:         d.CID,
		Clock:       clock.Clock{Seq: d.Seq, Ticks: d.Ticks},
		StatusType:  book.StatusResting,
		IsAsk:       d.IsAsk,
		Price:       d.Price,
		Size:        d.Size,
		FilledSize:  d.FilledSize,
		FilledPrice: d.FilledPrice,
	}
}

type openOrdersPage struct {
	Data []orderDTO `json:"data"`
	Meta struct {
		Next *string `json:"next"`
	} `json:"meta"`
}

type bookStatesResponse struct {
	ContractID contracts.ID `json:"contract_id"`
	BookStates []orderDTO   `json:"book_states"`
}
