package service

import (
	"testing"

	"github.com/berfenger/aurum2mqtt/internal/core/domain"
	"github.com/berfenger/aurum2mqtt/pkg/aurum"

	"github.com/stretchr/testify/assert"
)

func samplePayload() domain.NumberedPayload {
	return domain.NumberedPayload{
		1: {"powerSolar": aurum.NumberValue(120), "counterOutSolar": aurum.NumberValue(10.5)},
		2: {"powerSolar": aurum.NumberValue(80)},
		3: {"counterGas": aurum.NumberValue(5.2), "smartMeterTimestamp": aurum.TextValue("210325143000W")},
		7: {"powerMain": aurum.NumberValue(-300)},
	}
}

func TestFilterOnlySelectedIndices(t *testing.T) {

	assert := assert.New(t)

	payload := samplePayload()
	filtered := FilterPayload(payload, domain.Selection{3, 7, 9})

	assert.Len(filtered, 3)
	assert.Equal(aurum.NumberValue(5.2), filtered["counterGas"])
	assert.Equal(aurum.NumberValue(-300), filtered["powerMain"])
	assert.NotContains(filtered, "powerSolar")
	assert.NotContains(filtered, "counterOutSolar")
}

func TestFilterNeverLeaksUnselectedIndices(t *testing.T) {

	payload := samplePayload()
	for _, sel := range []domain.Selection{{1}, {2}, {3}, {7}, {1, 3}, {2, 7}, {4, 5}} {
		filtered := FilterPayload(payload, sel)
		for key, value := range filtered {
			found := false
			for idx, meter := range payload {
				if v, ok := meter[key]; ok && v == value && sel.Contains(idx) {
					found = true
				}
			}
			assert.True(t, found, "key %s sourced from an unselected index (selection %v)", key, sel)
		}
	}
}

func TestFilterEmptyInputs(t *testing.T) {

	assert := assert.New(t)

	assert.Empty(FilterPayload(domain.NumberedPayload{}, domain.DefaultSelection()))
	assert.Empty(FilterPayload(nil, domain.DefaultSelection()))
	assert.Empty(FilterPayload(samplePayload(), domain.Selection{}))
	assert.NotNil(FilterPayload(nil, nil))
}

func TestFilterLaterIndexWins(t *testing.T) {

	assert := assert.New(t)

	payload := domain.NumberedPayload{
		1: {"powerSolar": aurum.NumberValue(120)},
		2: {"powerSolar": aurum.NumberValue(80)},
	}
	for i := 0; i < 20; i++ {
		filtered := FilterPayload(payload, domain.Selection{2, 1})
		assert.Equal(aurum.NumberValue(80), filtered["powerSolar"], "ascending index order, index 2 wins")
	}
}

func TestFilterIsPure(t *testing.T) {

	assert := assert.New(t)

	payload := samplePayload()
	sel := domain.Selection{1, 3}

	first := FilterPayload(payload, sel)
	second := FilterPayload(payload, sel)
	assert.Equal(first, second)

	first["powerSolar"] = aurum.NumberValue(1)
	assert.Equal(aurum.NumberValue(120), payload[1]["powerSolar"], "input not aliased")
	assert.Equal(domain.Selection{1, 3}, sel)
}

func TestFilterSkipsMissingIndices(t *testing.T) {
	filtered := FilterPayload(domain.NumberedPayload{1: {"counterGas": aurum.NumberValue(5.2)}}, domain.Selection{2})
	assert.Empty(t, filtered)
}
