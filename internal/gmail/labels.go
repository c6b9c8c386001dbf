package gmail

import "strings"

// LabelFilter drops messages client side. A message passes when it carries
// none of Exclude and every one of Include.
type LabelFilter struct {
	Include []LabelID
	Exclude []LabelID
}

func (f LabelFilter) Allows(labels []LabelID) bool {
	if labelsContainAny(labels, f.Exclude) {
		return false
	}
	return labelsContainAll(labels, f.Include)
}

func (f LabelFilter) IsZero() bool {
	return len(f.Include) == 0 && len(f.Exclude) == 0
}

// ParseLabelIDs splits a comma separated list into label IDs.
func ParseLabelIDs(input string) []LabelID {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]LabelID, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, LabelID(part))
	}
	return out
}

func labelSet(labels []LabelID) map[LabelID]struct{} {
	set := make(map[LabelID]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	return set
}

func labelsContainAll(have, want []LabelID) bool {
	if len(want) == 0 {
		return true
	}
	set := labelSet(have)
	for _, l := range want {
		if _, ok := set[l]; !ok {
			return false
		}
	}
	return true
}

func labelsContainAny(have, want []LabelID) bool {
	if len(want) == 0 {
		return false
	}
	set := labelSet(have)
	for _, l := range want {
		if _, ok := set[l]; ok {
			return true
		}
	}
	return false
}
