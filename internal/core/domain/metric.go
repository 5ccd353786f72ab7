package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/berfenger/aurum2mqtt/pkg/aurum"
)

const (
	METER_INDEX_MIN = 1
	METER_INDEX_MAX = 23
)

var ErrInvalidSelection = errors.New("invalid meter selection")

type NumberedPayload = aurum.NumberedData

type MetricMap = aurum.MeterData

type MetricValue = aurum.Value

// Selection is the ordered set of meter indices an entry reads from.
type Selection []int

func DefaultSelection() Selection {
	sel := make(Selection, 0, METER_INDEX_MAX-METER_INDEX_MIN+1)
	for i := METER_INDEX_MIN; i <= METER_INDEX_MAX; i++ {
		sel = append(sel, i)
	}
	return sel
}

// ParseSelection parses a comma separated list of meter indices.
// An empty string selects every known index.
func ParseSelection(s string) (Selection, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultSelection(), nil
	}
	tokens := strings.Split(s, ",")
	sel := make(Selection, 0, len(tokens))
	seen := make(map[int]struct{}, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		idx, err := strconv.Atoi(token)
		if err != nil || idx < METER_INDEX_MIN {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSelection, token)
		}
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		sel = append(sel, idx)
	}
	return sel, nil
}

func (s Selection) Contains(idx int) bool {
	for _, i := range s {
		if i == idx {
			return true
		}
	}
	return false
}

func (s Selection) String() string {
	parts := make([]string, len(s))
	for i, idx := range s {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ",")
}
