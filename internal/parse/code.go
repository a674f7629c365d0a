package parse

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cargo-placement-backend/internal/apperr"
)

var (
	unitNumberRe = regexp.MustCompile(`^([0-9A-Z]{4,32})/(\d{2})/(\d{2})$`)
	unitCodeRe   = regexp.MustCompile(`^(?i:UNIT):([^:\s]+):(\d+)$`)
	cellFullRe   = regexp.MustCompile(`^(?i:CELL:)?(\d+)-(\d+)-(\d+)-(\d+)$`)
	cellShortRe  = regexp.MustCompile(`^(?i)B(\d+)-S(\d+)-C(\d+)$`)
)

// timestamps above this are taken as milliseconds
const millisThreshold = 1_000_000_000_000

// Kind names the variant of a scanned payload.
type Kind string

const (
	KindUnit      Kind = "unit"
	KindCellFull  Kind = "cell_full"
	KindCellShort Kind = "cell_short"
)

// Scanned is one of UnitCode, CellCodeFull or CellCodeShort.
type Scanned interface {
	Kind() Kind
}

// UnitCode references an individual unit. IssuedAt is nil for a hand-typed unit number.
type UnitCode struct {
	Number   string
	IssuedAt *time.Time
}

func (UnitCode) Kind() Kind { return KindUnit }

// MaxClockSkew is how far ahead of the server clock a label printer may be.
const MaxClockSkew = 5 * time.Minute

// Expired reports whether the code is older than maxAge, or dated further in the
// future than MaxClockSkew. A zero maxAge never expires.
func (c UnitCode) Expired(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 || c.IssuedAt == nil {
		return false
	}
	if c.IssuedAt.After(now.Add(MaxClockSkew)) {
		return true
	}
	return now.Sub(*c.IssuedAt) > maxAge
}

// CellCodeFull is {warehouse_short_number}-{block}-{shelf}-{cell}.
type CellCodeFull struct {
	ShortNumber int
	Block       int
	Shelf       int
	Cell        int
}

func (CellCodeFull) Kind() Kind { return KindCellFull }

// CellCodeShort is B{block}-S{shelf}-C{cell}; the warehouse comes from the caller's scope.
type CellCodeShort struct {
	Block int
	Shelf int
	Cell  int
}

func (CellCodeShort) Kind() Kind { return KindCellShort }

type jsonUnitPayload struct {
	Type   string `json:"type"`
	Number string `json:"number"`
	TS     int64  `json:"ts"`
}

// Scan classifies a raw scanner or keyboard payload. Shape errors are InvalidArgument;
// whether the referenced unit or cell exists is left to the resolver.
func Scan(raw string) (Scanned, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, apperr.InvalidArgument("empty code")
	}

	if strings.HasPrefix(s, "{") {
		return scanJSON(s)
	}

	if m := unitCodeRe.FindStringSubmatch(s); m != nil {
		number, err := UnitNumber(m[1])
		if err != nil {
			return nil, err
		}
		ts, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil || ts <= 0 {
			return nil, apperr.InvalidArgument("unit code timestamp %q is out of range", m[2])
		}
		issued := fromUnix(ts)
		return UnitCode{Number: number, IssuedAt: &issued}, nil
	}

	if m := cellFullRe.FindStringSubmatch(s); m != nil {
		n, err := positiveInts(m[1:])
		if err != nil {
			return nil, err
		}
		return CellCodeFull{ShortNumber: n[0], Block: n[1], Shelf: n[2], Cell: n[3]}, nil
	}

	if m := cellShortRe.FindStringSubmatch(s); m != nil {
		n, err := positiveInts(m[1:])
		if err != nil {
			return nil, err
		}
		return CellCodeShort{Block: n[0], Shelf: n[1], Cell: n[2]}, nil
	}

	if number, err := UnitNumber(s); err == nil {
		return UnitCode{Number: number}, nil
	}

	return nil, apperr.InvalidArgument("unrecognized code %q", raw)
}

func scanJSON(s string) (Scanned, error) {
	var p jsonUnitPayload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, apperr.InvalidArgument("malformed code payload: %v", err)
	}
	if !strings.EqualFold(p.Type, string(KindUnit)) {
		return nil, apperr.InvalidArgument("unsupported code type %q", p.Type)
	}
	if p.TS <= 0 {
		return nil, apperr.InvalidArgument("unit code is missing its timestamp")
	}
	number, err := UnitNumber(p.Number)
	if err != nil {
		return nil, err
	}
	issued := fromUnix(p.TS)
	return UnitCode{Number: number, IssuedAt: &issued}, nil
}

// UnitNumber validates and normalizes a unit number (display part upper-cased).
func UnitNumber(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '/'); i > 0 {
		s = strings.ToUpper(s[:i]) + s[i:]
	}
	m := unitNumberRe.FindStringSubmatch(s)
	if m == nil {
		return "", apperr.InvalidArgument("malformed unit number %q", raw)
	}
	if _, err := positiveInts(m[2:]); err != nil {
		return "", err
	}
	return s, nil
}

func positiveInts(parts []string) ([]int, error) {
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return nil, apperr.InvalidArgument("coordinate %q must be a positive integer", p)
		}
		out[i] = n
	}
	return out, nil
}

func fromUnix(ts int64) time.Time {
	if ts >= millisThreshold {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}
