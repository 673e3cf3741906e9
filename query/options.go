package query

import (
	"fmt"
	"strings"

	"github.com/drpcorg/lsindex/lsindex_errors"
)

// Ordering is the direction of an index scan.
type Ordering byte

const (
	Ascending  Ordering = 'A'
	Descending Ordering = 'D'
)

func (o Ordering) String() string {
	if o == Descending {
		return "DESC"
	}
	return "ASC"
}

const OrderKey = "ORDER"

// Options are the scan directives smuggled in as the value of an
// expression on the query options pseudo-column.
type Options struct {
	Order Ordering
}

var DefaultOptions = Options{Order: Ascending}

func (o Options) Reversed() bool {
	return o.Order == Descending
}

// ParseOptions reads "key:value;key:value". Tokens are trimmed and empty
// ones skipped; keys are case sensitive. An unknown key, a token without
// exactly one colon, a bad value or a key given twice is a usage error:
// duplicates are rejected even when they repeat the same value.
func ParseOptions(s string) (Options, error) {
	opts := DefaultOptions
	seen := make(map[string]bool)
	for _, token := range strings.Split(s, ";") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		kv := strings.Split(token, ":")
		if len(kv) != 2 {
			return opts, fmt.Errorf("%w: %q", lsindex_errors.ErrMalformedQueryOption, token)
		}
		key, value := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if seen[key] {
			return opts, fmt.Errorf("%w: %s", lsindex_errors.ErrDuplicateQueryOption, key)
		}
		seen[key] = true
		switch key {
		case OrderKey:
			switch value {
			case "ASC":
				opts.Order = Ascending
			case "DESC":
				opts.Order = Descending
			default:
				return opts, fmt.Errorf("%w: %s:%s", lsindex_errors.ErrBadQueryOptionValue, key, value)
			}
		default:
			return opts, fmt.Errorf("%w: %s", lsindex_errors.ErrUnknownQueryOption, key)
		}
	}
	return opts, nil
}

func (o Options) String() string {
	return OrderKey + ":" + o.Order.String()
}
