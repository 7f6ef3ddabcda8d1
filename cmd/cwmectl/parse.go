package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/contextwave/cwme/internal/types"
)

// parseRelation parses a "source:relation:target" flag value into an Edge.
func parseRelation(spec string) (types.Edge, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return types.Edge{}, fmt.Errorf("relation %q must be source:relation:target", spec)
	}
	return types.Edge{Source: parts[0], Relation: parts[1], Target: parts[2]}, nil
}

// parseDrive parses a "name=value" flag value into a drive name and its
// satisfaction level.
func parseDrive(spec string) (string, float64, error) {
	parts := strings.SplitN(spec, "=", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("drive %q must be name=value", spec)
	}
	val, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return "", 0, fmt.Errorf("drive %q: %w", spec, err)
	}
	return parts[0], val, nil
}
