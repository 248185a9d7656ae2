package alibaba

import (
	"fmt"
	"strings"

	"github.com/softwareone-finops/cloud-billing/internal/billing"
)

// ParseTag parses an Alibaba Cloud resource tag string into a map.
//
// Two formats appear in bill exports:
//
//	key:Environment value:PROD; key:Role value:App
//	key:Environment value:Prod; key:Application_Owner value:owner@example.com;
//
// A pair without the "key:" prefix is tolerated; a pair without "value:" is
// an error. Values may contain colons.
func ParseTag(tag string) (map[string]string, error) {
	if strings.TrimSpace(tag) == "" {
		return map[string]string{}, nil
	}

	result := map[string]string{}
	for _, pair := range strings.Split(tag, ";") {
		if strings.TrimSpace(pair) == "" {
			continue
		}

		key, value, err := splitTagPair(pair)
		if err != nil {
			return nil, &billing.ValidationError{
				Field:  "tag",
				Reason: fmt.Sprintf("failed to parse tag pair %q: %v", strings.TrimSpace(pair), err),
			}
		}
		result[key] = value
	}

	return result, nil
}

func splitTagPair(pair string) (key, value string, err error) {
	keyPart, valuePart, found := strings.Cut(pair, "value:")
	if !found {
		return "", "", fmt.Errorf("missing 'value:'")
	}

	key = strings.TrimSpace(strings.Replace(keyPart, "key:", "", 1))
	if key == "" {
		return "", "", fmt.Errorf("empty key")
	}

	return key, strings.TrimSpace(valuePart), nil
}
