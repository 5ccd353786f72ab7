package aurum

import (
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type ValueKind uint8

const (
	VALUE_KIND_ABSENT ValueKind = iota
	VALUE_KIND_NUMBER
	VALUE_KIND_TEXT
)

// Value is a single reading as reported by the device.
type Value struct {
	Kind   ValueKind
	Number float64
	Text   string
}

// MeterData maps metric keys (e.g. powerSolar) to their value for one meter index.
type MeterData map[string]Value

// NumberedData maps the 1-based meter index to its readings.
type NumberedData map[int]MeterData

func NumberValue(v float64) Value {
	return Value{Kind: VALUE_KIND_NUMBER, Number: v}
}

func TextValue(v string) Value {
	return Value{Kind: VALUE_KIND_TEXT, Text: v}
}

func (v Value) IsAbsent() bool {
	return v.Kind == VALUE_KIND_ABSENT
}

func (v Value) String() string {
	switch v.Kind {
	case VALUE_KIND_NUMBER:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case VALUE_KIND_TEXT:
		return v.Text
	default:
		return ""
	}
}

func (d NumberedData) Copy() NumberedData {
	out := make(NumberedData, len(d))
	for idx, meter := range d {
		m := make(MeterData, len(meter))
		for k, v := range meter {
			m[k] = v
		}
		out[idx] = m
	}
	return out
}

// output.xml document:
//
//	<output>
//	  <powerBattery value="0.00" />
//	  <counterOutBattery value="12.345" />
//	  ...
//	</output>
type outputDocument struct {
	XMLName  xml.Name         `xml:"output"`
	Readings []readingElement `xml:",any"`
}

type readingElement struct {
	XMLName xml.Name
	Value   *string `xml:"value,attr"`
	Valid   *string `xml:"valid,attr"`
}

func parseOutput(body []byte) (NumberedData, error) {
	var doc outputDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrXMLDataMissing, err)
	}
	if len(doc.Readings) == 0 {
		return nil, ErrXMLDataMissing
	}
	data := make(NumberedData, len(doc.Readings))
	for i, r := range doc.Readings {
		data[i+1] = MeterData{r.XMLName.Local: parseValue(r)}
	}
	return data, nil
}

// parseValue maps a reading to its value. Missing or empty values, readings
// flagged valid="0" and non-finite numbers are absent.
func parseValue(r readingElement) Value {
	if r.Value == nil {
		return Value{}
	}
	if r.Valid != nil && strings.TrimSpace(*r.Valid) == "0" {
		return Value{}
	}
	raw := strings.TrimSpace(*r.Value)
	if raw == "" {
		return Value{}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}
		}
		return NumberValue(f)
	}
	return TextValue(raw)
}
