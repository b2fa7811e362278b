package config

import (
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	veilerr "github.com/mrz1836/veil/pkg/errors"
)

// maxSuggestionDistance bounds how far a typo may be from a suggestion.
const maxSuggestionDistance = 3

type field struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringField(p func(c *Config) *string) field {
	return field{
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func intField(key string, p func(c *Config) *int) field {
	return field{
		get: func(c *Config) string { return strconv.Itoa(*p(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return invalidValue(key, v, "an integer")
			}
			*p(c) = n
			return nil
		},
	}
}

func int64Field(key string, p func(c *Config) *int64) field {
	return field{
		get: func(c *Config) string { return strconv.FormatInt(*p(c), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return invalidValue(key, v, "an integer")
			}
			*p(c) = n
			return nil
		},
	}
}

func floatField(key string, p func(c *Config) *float64) field {
	return field{
		get: func(c *Config) string { return strconv.FormatFloat(*p(c), 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return invalidValue(key, v, "a number")
			}
			*p(c) = f
			return nil
		},
	}
}

func boolField(p func(c *Config) *bool) field {
	return field{
		get: func(c *Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *Config, v string) error { *p(c) = parseBool(v); return nil },
	}
}

//nolint:gochecknoglobals // Lookup table
var fields = map[string]field{
	"home":                        stringField(func(c *Config) *string { return &c.Home }),
	"chain.chain_id":              int64Field("chain.chain_id", func(c *Config) *int64 { return &c.Chain.ChainID }),
	"chain.contracts_chain_id":    int64Field("chain.contracts_chain_id", func(c *Config) *int64 { return &c.Chain.ContractsChainID }),
	"chain.verifying_contract":    stringField(func(c *Config) *string { return &c.Chain.VerifyingContract }),
	"storage.backend":             stringField(func(c *Config) *string { return &c.Storage.Backend }),
	"storage.path":                stringField(func(c *Config) *string { return &c.Storage.Path }),
	"storage.encrypt":             boolField(func(c *Config) *bool { return &c.Storage.Encrypt }),
	"storage.identity_file":       stringField(func(c *Config) *string { return &c.Storage.IdentityFile }),
	"storage.ttl":                 stringField(func(c *Config) *string { return &c.Storage.TTL }),
	"storage.redis_addr":          stringField(func(c *Config) *string { return &c.Storage.RedisAddr }),
	"storage.redis_db":            intField("storage.redis_db", func(c *Config) *int { return &c.Storage.RedisDB }),
	"storage.redis_prefix":        stringField(func(c *Config) *string { return &c.Storage.RedisPrefix }),
	"signature.duration_days":     intField("signature.duration_days", func(c *Config) *int { return &c.Signature.DurationDays }),
	"signature.key_by_public_key": boolField(func(c *Config) *bool { return &c.Signature.KeyByPublicKey }),
	"retry.max_retries":           intField("retry.max_retries", func(c *Config) *int { return &c.Retry.MaxRetries }),
	"retry.initial_delay_ms":      intField("retry.initial_delay_ms", func(c *Config) *int { return &c.Retry.InitialDelayMs }),
	"retry.max_delay_ms":          intField("retry.max_delay_ms", func(c *Config) *int { return &c.Retry.MaxDelayMs }),
	"retry.backoff_multiplier":    floatField("retry.backoff_multiplier", func(c *Config) *float64 { return &c.Retry.BackoffMultiplier }),
	"retry.jitter":                boolField(func(c *Config) *bool { return &c.Retry.Jitter }),
	"retry.timeout_seconds":       intField("retry.timeout_seconds", func(c *Config) *int { return &c.Retry.TimeoutSeconds }),
	"output.default_format":       stringField(func(c *Config) *string { return &c.Output.DefaultFormat }),
	"output.color":                stringField(func(c *Config) *string { return &c.Output.Color }),
	"output.verbose":              boolField(func(c *Config) *bool { return &c.Output.Verbose }),
	"logging.level":               stringField(func(c *Config) *string { return &c.Logging.Level }),
	"logging.file":                stringField(func(c *Config) *string { return &c.Logging.File }),
}

// Keys returns every settable configuration path, sorted. The redis password
// is not listed; set it through VEIL_REDIS_PASSWORD or the file.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value at a dot-separated path such as "storage.backend".
func Get(c *Config, path string) (string, error) {
	f, err := lookup(path)
	if err != nil {
		return "", err
	}
	return f.get(c), nil
}

// Set assigns value at path and validates the result. On a validation error c
// is left unchanged.
func Set(c *Config, path, value string) error {
	f, err := lookup(path)
	if err != nil {
		return err
	}

	next := *c
	if err := f.set(&next, value); err != nil {
		return err
	}
	if err := Validate(&next); err != nil {
		return err
	}
	*c = next
	return nil
}

func lookup(path string) (field, error) {
	key := strings.ToLower(strings.TrimSpace(path))
	if f, ok := fields[key]; ok {
		return f, nil
	}

	err := veilerr.WithDetails(veilerr.ErrUnknownConfigKey, map[string]string{"key": path})
	if s := Suggest(key, Keys()); s != "" {
		return field{}, veilerr.WithSuggestion(err, "did you mean '"+s+"'?")
	}
	return field{}, err
}

// Suggest returns the candidate closest to input by edit distance, or "" when
// none is within a few edits.
func Suggest(input string, candidates []string) string {
	input = strings.ToLower(strings.TrimSpace(input))

	best, bestDist := "", maxSuggestionDistance+1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(input, strings.ToLower(c))
		if d == 0 {
			return c
		}
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func invalidValue(key, value, want string) error {
	return veilerr.WithDetails(veilerr.ErrConfigInvalid, map[string]string{
		"key":   key,
		"value": value,
		"want":  want,
	})
}
