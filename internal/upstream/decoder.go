package upstream

import (
	"encoding/json"
	"fmt"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
)

// eventRecord is the wire shape of one upstream event. The provider batches
// heterogeneous records into a single JSON array; "ev" discriminates
// aggregates ("A" per-second, "AM" per-minute) from control frames ("status").
type eventRecord struct {
	Ev      string          `json:"ev"`
	Sym     string          `json:"sym"`
	Close   json.RawMessage `json:"c"`
	Start   int64           `json:"s"`
	End     int64           `json:"e"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
}

// DecodeBatch parses a raw upstream frame into price ticks and status events.
// A malformed individual record is skipped; only a frame that is not a JSON
// array at all fails, in which case the whole batch is discarded and the next
// one is independent.
func DecodeBatch(raw []byte) ([]domain.PriceTick, []domain.StatusEvent, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, nil, fmt.Errorf("upstream: decode batch: %w", err)
	}

	var ticks []domain.PriceTick
	var statuses []domain.StatusEvent
	for _, rec := range records {
		var ev eventRecord
		if err := json.Unmarshal(rec, &ev); err != nil {
			continue
		}
		switch ev.Ev {
		case "A", "AM":
			tick, ok := ev.toTick()
			if !ok {
				continue
			}
			ticks = append(ticks, tick)
		case "status":
			statuses = append(statuses, domain.StatusEvent{
				Status:  ev.Status,
				Message: ev.Message,
			})
		}
	}
	return ticks, statuses, nil
}

// toTick converts an aggregate record into a PriceTick, rejecting records with
// a missing symbol or an unparseable close price.
func (ev eventRecord) toTick() (domain.PriceTick, bool) {
	if ev.Sym == "" || len(ev.Close) == 0 {
		return domain.PriceTick{}, false
	}
	var price float64
	if err := json.Unmarshal(ev.Close, &price); err != nil {
		return domain.PriceTick{}, false
	}
	return domain.PriceTick{
		Ticker:    ev.Sym,
		Price:     price,
		Timestamp: ev.End,
	}, true
}
