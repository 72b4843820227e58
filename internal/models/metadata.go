package models

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"gorm.io/datatypes"
)

const (
	MetaChosenNumbers   = "chosen_numbers"
	MetaPaidNumbers     = "paid_numbers"
	MetaConflictNumbers = "conflict_numbers"
)

type ChosenSource int

const (
	ChosenAbsent ChosenSource = iota
	ChosenExplicit
	ChosenLegacy
)

// ChosenNumbers is the decoded form of a payment's requested numbers.
// Numbers is always sorted, deduplicated and positive.
type ChosenNumbers struct {
	Source  ChosenSource
	Numbers []int
}

func (c ChosenNumbers) Empty() bool {
	return len(c.Numbers) == 0
}

// DecodeChosenNumbers reads chosen_numbers from the metadata document,
// falling back to the legacy single-number column. Malformed entries are
// dropped.
func DecodeChosenNumbers(meta datatypes.JSON, legacy *int) ChosenNumbers {
	doc := DecodeMetadata(meta)
	if raw, ok := doc[MetaChosenNumbers]; ok {
		if list, ok := raw.([]interface{}); ok {
			nums := make([]int, 0, len(list))
			for _, v := range list {
				if n, ok := toInt(v); ok {
					nums = append(nums, n)
				}
			}
			return ChosenNumbers{Source: ChosenExplicit, Numbers: NormalizeNumbers(nums)}
		}
	}
	if legacy != nil && *legacy > 0 {
		return ChosenNumbers{Source: ChosenLegacy, Numbers: []int{*legacy}}
	}
	return ChosenNumbers{Source: ChosenAbsent}
}

// DecodeMetadata never fails; an unreadable document is treated as empty.
func DecodeMetadata(meta datatypes.JSON) map[string]interface{} {
	doc := map[string]interface{}{}
	if len(meta) == 0 {
		return doc
	}
	dec := json.NewDecoder(strings.NewReader(string(meta)))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil || doc == nil {
		return map[string]interface{}{}
	}
	return doc
}

func EncodeMetadata(doc map[string]interface{}) datatypes.JSON {
	b, err := json.Marshal(doc)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}

// NormalizeNumbers returns the positive values of nums sorted and deduplicated.
func NormalizeNumbers(nums []int) []int {
	seen := make(map[int]struct{}, len(nums))
	out := make([]int, 0, len(nums))
	for _, n := range nums {
		if n <= 0 {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func toInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i), true
		}
		f, err := x.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int(x), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}
