package goldenrun

import (
	"fmt"
	"strings"
)

// ExpandByDigestMarker is the server-banner capability marker required
// before a Sterling expand-by-digest run may proceed.
const ExpandByDigestMarker = "supports_expand_by_digest_v1_versioned_key=true"

// ValidateExpandBanner checks that banner carries the expand-by-digest
// capability marker. A missing or negated marker is a hard failure at the
// caller: the run must not start against a server that cannot honor
// versioned-key expansion.
func ValidateExpandBanner(banner string) error {
	if banner == "" {
		return fmt.Errorf("server banner is empty; %s marker required", ExpandByDigestMarker)
	}
	for _, field := range strings.Fields(banner) {
		if field == ExpandByDigestMarker {
			return nil
		}
		if strings.HasPrefix(field, "supports_expand_by_digest_v1_versioned_key=") {
			return fmt.Errorf("server banner marker invalid: %q", field)
		}
	}
	return fmt.Errorf("server banner missing %s marker", ExpandByDigestMarker)
}
