package gomarket

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// BookMessage is an L2 snapshot as delivered on the feed. Pointer fields let
// the parser tell a missing field from an empty one.
//
//	{"timestamp":"2025-05-04T10:39:13Z","exchange":"okx","symbol":"BTC-USDT-SWAP",
//	 "asks":[["95445.5","9.06"],...],"bids":[["95445.4","1104.23"],...]}
type BookMessage struct {
	Timestamp *string     `json:"timestamp"`
	Exchange  *string     `json:"exchange"`
	Symbol    *string     `json:"symbol"`
	Asks      *[][]string `json:"asks"`
	Bids      *[][]string `json:"bids"`
}

// ParseMessage decodes one raw feed message into a snapshot stamped with
// receivedAt. Every failure wraps domain.ErrParse; the caller is expected to
// drop the message and keep the connection.
func ParseMessage(raw []byte, receivedAt time.Time) (domain.OrderbookData, error) {
	var msg BookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.OrderbookData{}, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	return BookToDomain(&msg, receivedAt)
}

// BookToDomain validates a decoded BookMessage and converts it to
// domain.OrderbookData.
func BookToDomain(msg *BookMessage, receivedAt time.Time) (domain.OrderbookData, error) {
	switch {
	case msg.Timestamp == nil:
		return domain.OrderbookData{}, missingField("timestamp")
	case msg.Exchange == nil:
		return domain.OrderbookData{}, missingField("exchange")
	case msg.Symbol == nil:
		return domain.OrderbookData{}, missingField("symbol")
	case msg.Asks == nil:
		return domain.OrderbookData{}, missingField("asks")
	case msg.Bids == nil:
		return domain.OrderbookData{}, missingField("bids")
	}

	asks, err := parseLevels(*msg.Asks)
	if err != nil {
		return domain.OrderbookData{}, fmt.Errorf("asks: %w", err)
	}
	bids, err := parseLevels(*msg.Bids)
	if err != nil {
		return domain.OrderbookData{}, fmt.Errorf("bids: %w", err)
	}

	return domain.OrderbookData{
		Timestamp:  *msg.Timestamp,
		Exchange:   *msg.Exchange,
		Symbol:     *msg.Symbol,
		Asks:       asks,
		Bids:       bids,
		ReceivedAt: receivedAt,
	}, nil
}

func missingField(name string) error {
	return fmt.Errorf("%w: missing required field %q", domain.ErrParse, name)
}

// parseLevels converts [price, size] string pairs. Entries with fewer than two
// elements are skipped.
func parseLevels(entries [][]string) (domain.PriceLevels, error) {
	levels := make(domain.PriceLevels, 0, len(entries))
	for i, e := range entries {
		if len(e) < 2 {
			continue
		}
		price, err := parseNumber(e[0])
		if err != nil {
			return nil, fmt.Errorf("%w: level %d price: %v", domain.ErrParse, i, err)
		}
		size, err := parseNumber(e[1])
		if err != nil {
			return nil, fmt.Errorf("%w: level %d size: %v", domain.ErrParse, i, err)
		}
		if size < 0 {
			return nil, fmt.Errorf("%w: level %d size %g is negative", domain.ErrParse, i, size)
		}
		levels = append(levels, domain.PriceLevel{Price: price, Size: size})
	}
	return levels, nil
}

func parseNumber(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return f, nil
}
