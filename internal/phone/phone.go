package phone

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrUnsupportedNumber is returned when a raw value cannot be mapped to a
// supported country and expected digit length. No partial result is ever
// returned alongside it.
var ErrUnsupportedNumber = errors.New("phone: unsupported or malformed number")

// Country describes one supported calling code.
type Country struct {
	Name string
	// Length is the expected total digit count including the calling code.
	// Numbers within +/-1 of this are accepted.
	Length int
}

// Table maps calling codes to country metadata.
type Table map[string]Country

// DefaultTable lists the calling codes the platform supports.
var DefaultTable = Table{
	// North America
	"1": {Name: "USA/Canada", Length: 11},

	// Latin America
	"52":  {Name: "Mexico", Length: 12},
	"54":  {Name: "Argentina", Length: 12},
	"55":  {Name: "Brazil", Length: 13},
	"56":  {Name: "Chile", Length: 11},
	"57":  {Name: "Colombia", Length: 12},
	"58":  {Name: "Venezuela", Length: 12},
	"51":  {Name: "Peru", Length: 11},
	"593": {Name: "Ecuador", Length: 12},
	"507": {Name: "Panama", Length: 11},
	"506": {Name: "Costa Rica", Length: 11},
	"504": {Name: "Honduras", Length: 11},
	"503": {Name: "El Salvador", Length: 11},
	"502": {Name: "Guatemala", Length: 11},

	// Europe
	"34": {Name: "Spain", Length: 11},
	"33": {Name: "France", Length: 12},
	"44": {Name: "United Kingdom", Length: 13},
	"49": {Name: "Germany", Length: 13},
	"39": {Name: "Italy", Length: 13},

	// Asia
	"86": {Name: "China", Length: 14},
	"81": {Name: "Japan", Length: 13},
	"82": {Name: "South Korea", Length: 13},
	"91": {Name: "India", Length: 13},
}

// Number is the canonical representation of a supported phone number.
type Number struct {
	Formatted   string // e.g. "+57 300 123 4567", the de-duplication key
	Digits      string // e.g. "573001234567", what channel APIs dial
	CountryCode string
	CountryName string
}

// Config controls normalization. Table and the backward-compatibility rule
// are injected so tests can run against alternate numbering plans.
type Config struct {
	Table Table
	// DefaultCountryCode is prepended to bare national mobile numbers
	// (exactly ten digits starting with MobilePrefix).
	DefaultCountryCode string
	MobilePrefix       string
}

// Normalizer converts raw phone strings into canonical international form.
type Normalizer struct {
	table        Table
	codes        []string // sorted by length descending, then lexically
	defaultCode  string
	mobilePrefix string
}

// NewNormalizer builds a Normalizer from cfg, falling back to the default
// table and the Colombian mobile rule when fields are unset.
func NewNormalizer(cfg Config) *Normalizer {
	table := cfg.Table
	if table == nil {
		table = DefaultTable
	}
	code := cfg.DefaultCountryCode
	if code == "" {
		code = "57"
	}
	prefix := cfg.MobilePrefix
	if prefix == "" {
		prefix = "3"
	}
	codes := make([]string, 0, len(table))
	for c := range table {
		codes = append(codes, c)
	}
	// Longest prefix first so e.g. 593 is not shadowed by 59x lookups.
	sort.Slice(codes, func(i, j int) bool {
		if len(codes[i]) != len(codes[j]) {
			return len(codes[i]) > len(codes[j])
		}
		return codes[i] < codes[j]
	})
	return &Normalizer{
		table:        table,
		codes:        codes,
		defaultCode:  code,
		mobilePrefix: prefix,
	}
}

// Default returns a Normalizer over the built-in table.
func Default() *Normalizer {
	return NewNormalizer(Config{})
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// Digits strips everything but digits from raw.
func Digits(raw string) string {
	return nonDigits.ReplaceAllString(raw, "")
}

// Normalize converts raw into canonical international form, or returns
// ErrUnsupportedNumber. It is the single source of truth for "is this a
// supported number".
func (n *Normalizer) Normalize(raw string) (Number, error) {
	digits := Digits(raw)
	if len(digits) < 10 {
		return Number{}, fmt.Errorf("%w: %q too short", ErrUnsupportedNumber, raw)
	}

	// Backward compatibility: a bare ten-digit mobile number belongs to
	// the default home country.
	if len(digits) == 10 && strings.HasPrefix(digits, n.mobilePrefix) {
		digits = n.defaultCode + digits
	}

	code := n.detectCountry(digits)
	if code == "" {
		return Number{}, fmt.Errorf("%w: no supported country prefix in %q", ErrUnsupportedNumber, raw)
	}
	country := n.table[code]
	if len(digits) < country.Length-1 || len(digits) > country.Length+1 {
		return Number{}, fmt.Errorf("%w: %q has %d digits, expected %d±1 for %s",
			ErrUnsupportedNumber, raw, len(digits), country.Length, country.Name)
	}

	return Number{
		Formatted:   formatByCountry(digits, code),
		Digits:      digits,
		CountryCode: code,
		CountryName: country.Name,
	}, nil
}

func (n *Normalizer) detectCountry(digits string) string {
	for _, code := range n.codes {
		if strings.HasPrefix(digits, code) {
			return code
		}
	}
	return ""
}

var digitRun = regexp.MustCompile(`[0-9]{10,15}`)

// Extract pulls a canonical number out of an opaque identifier such as a
// channel JID. It tries the whole value first, then each embedded digit run
// long enough to be a phone number.
func (n *Normalizer) Extract(raw string) (Number, error) {
	if num, err := n.Normalize(raw); err == nil {
		return num, nil
	}
	for _, run := range digitRun.FindAllString(raw, -1) {
		if num, err := n.Normalize(run); err == nil {
			return num, nil
		}
	}
	return Number{}, fmt.Errorf("%w: no phone number in %q", ErrUnsupportedNumber, raw)
}

// formatByCountry applies the registered grouping for the calling code, or a
// generic two-group split of the subscriber digits.
func formatByCountry(digits, code string) string {
	// Fixed groupings only apply at the nominal length or above; shorter
	// in-tolerance numbers fall through to the generic split.
	switch {
	case code == "1" && len(digits) >= 11:
		return fmt.Sprintf("+1 %s %s %s", digits[1:4], digits[4:7], digits[7:11])
	case code == "52" && len(digits) >= 12:
		return fmt.Sprintf("+52 %s %s %s", digits[2:4], digits[4:8], digits[8:12])
	case code == "57" && len(digits) >= 12:
		return fmt.Sprintf("+57 %s %s %s", digits[2:5], digits[5:8], digits[8:12])
	case code == "44" && len(digits) >= 12:
		return fmt.Sprintf("+44 %s %s", digits[2:6], digits[6:12])
	case code == "34" && len(digits) >= 11:
		return fmt.Sprintf("+34 %s %s %s", digits[2:5], digits[5:8], digits[8:11])
	case code == "51" && len(digits) >= 11:
		return fmt.Sprintf("+51 %s %s %s", digits[2:5], digits[5:8], digits[8:11])
	case code == "507" && len(digits) >= 11:
		return fmt.Sprintf("+507 %s %s", digits[3:7], digits[7:11])
	}
	rest := digits[len(code):]
	if len(rest) >= 6 {
		half := len(rest) / 2
		return fmt.Sprintf("+%s %s %s", code, rest[:half], rest[half:])
	}
	return fmt.Sprintf("+%s %s", code, rest)
}
