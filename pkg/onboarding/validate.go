package onboarding

import "strings"

type propertyKey struct {
	id       string
	language string
}

// Validate checks a batch before it is sent and returns the entities that will
// be imported. Nil entries are dropped and nil Properties are replaced with an
// empty slice in place; nothing else about the entities is modified. Checks
// stop at the first failing rule.
func Validate(dataSource string, entities []*DynamicEntity) ([]*DynamicEntity, error) {
	if entities == nil {
		return nil, &PreconditionError{Argument: "entities", Message: "value cannot be nil"}
	}
	if err := checkDataSource(dataSource); err != nil {
		return nil, err
	}

	valid := make([]*DynamicEntity, 0, len(entities))
	for _, e := range entities {
		if e == nil {
			continue
		}
		if e.Properties == nil {
			e.Properties = []DynamicProperty{}
		}
		valid = append(valid, e)
	}

	for _, e := range valid {
		if strings.TrimSpace(e.Key) == "" {
			return nil, &ValidationError{Reason: ErrMissingKey}
		}
	}

	if dups := duplicateKeys(valid); len(dups) > 0 {
		return nil, &ValidationError{Reason: ErrDuplicateKeys, Keys: dups}
	}

	var offending []string
	for _, e := range valid {
		if hasDuplicateProperties(e) {
			offending = append(offending, e.Key)
		}
	}
	if len(offending) > 0 {
		return nil, &ValidationError{Reason: ErrDuplicateProperties, Keys: offending}
	}

	return valid, nil
}

// checkDataSource rejects names that cannot address an import path segment.
// "." and ".." would be resolved away and send the batch elsewhere.
func checkDataSource(dataSource string) error {
	switch strings.TrimSpace(dataSource) {
	case "":
		return &PreconditionError{Argument: "dataSource", Message: "value cannot be empty or whitespace"}
	case ".", "..":
		return &PreconditionError{Argument: "dataSource", Message: "value cannot be a dot segment"}
	}
	return nil
}

// duplicateKeys returns each key seen more than once, in order of first appearance.
func duplicateKeys(entities []*DynamicEntity) []string {
	counts := make(map[string]int, len(entities))
	var order []string
	for _, e := range entities {
		if counts[e.Key] == 0 {
			order = append(order, e.Key)
		}
		counts[e.Key]++
	}

	var dups []string
	for _, key := range order {
		if counts[key] > 1 {
			dups = append(dups, key)
		}
	}
	return dups
}

func hasDuplicateProperties(e *DynamicEntity) bool {
	seen := make(map[propertyKey]struct{}, len(e.Properties))
	for _, p := range e.Properties {
		k := propertyKey{id: p.ID, language: p.Language}
		if _, ok := seen[k]; ok {
			return true
		}
		seen[k] = struct{}{}
	}
	return false
}
