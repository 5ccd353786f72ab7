package service

import (
	"maps"
	"slices"

	"github.com/berfenger/aurum2mqtt/internal/core/domain"
)

// FilterPayload merges the metric maps of the selected meter indices.
// Indices are merged in ascending order, so a key reported by more than one
// selected index takes the value of the highest one.
func FilterPayload(payload domain.NumberedPayload, selection domain.Selection) domain.MetricMap {
	filtered := domain.MetricMap{}
	if len(payload) == 0 || len(selection) == 0 {
		return filtered
	}
	for _, idx := range slices.Sorted(maps.Keys(payload)) {
		if !selection.Contains(idx) {
			continue
		}
		for key, value := range payload[idx] {
			filtered[key] = value
		}
	}
	return filtered
}
