package validate

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vk/evalgraph/internal/value"
)

// Result is the outcome of one validation.
type Result struct {
	Value   value.Value
	Valid   bool
	Message string
}

func valid(v value.Value) Result { return Result{Value: v, Valid: true} }

func invalid(t Type, now time.Time, format string, args ...any) Result {
	return Result{Value: Default(t, now), Message: fmt.Sprintf(format, args...)}
}

// Validate coerces raw to t. now is the evaluation time, used as the date
// default.
func Validate(raw value.Value, t Type, now time.Time) Result {
	switch t {
	case TypeText:
		return validateText(raw)
	case TypeNumber:
		return validateNumber(raw, now)
	case TypeBoolean:
		return validateBoolean(raw)
	case TypeObject:
		return validateShape(raw, TypeObject, value.KindObject, now)
	case TypeArray:
		return validateShape(raw, TypeArray, value.KindArray, now)
	case TypeTableRows:
		return validateTableRows(raw, now)
	case TypeDate:
		return validateDate(raw, now)
	}
	return valid(raw)
}

func validateText(raw value.Value) Result {
	switch raw.Kind() {
	case value.KindString:
		return valid(raw)
	case value.KindUndefined, value.KindNull:
		return valid(value.String(""))
	}
	return valid(value.String(raw.String()))
}

func validateNumber(raw value.Value, now time.Time) Result {
	switch raw.Kind() {
	case value.KindNumber:
		return valid(raw)
	case value.KindString:
		s := strings.TrimSpace(raw.Str())
		n, err := strconv.ParseFloat(s, 64)
		if s == "" || err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
			return invalid(TypeNumber, now, "value %q is not a number", raw.Str())
		}
		return valid(value.Number(n))
	}
	return invalid(TypeNumber, now, "expected a number, got %s", raw.Kind())
}

func validateBoolean(raw value.Value) Result {
	switch raw.Kind() {
	case value.KindBoolean:
		return valid(raw)
	case value.KindString:
		switch strings.ToLower(strings.TrimSpace(raw.Str())) {
		case "true":
			return valid(value.Bool(true))
		case "false":
			return valid(value.Bool(false))
		}
	}
	return valid(value.Bool(raw.Truthy()))
}

func validateShape(raw value.Value, t Type, want value.Kind, now time.Time) Result {
	if raw.Kind() == want {
		return valid(raw)
	}
	if raw.Kind() == value.KindString {
		parsed, err := value.ParseJSON([]byte(raw.Str()))
		if err == nil && parsed.Kind() == want {
			return valid(parsed)
		}
		return invalid(t, now, "value is not a valid %s", t)
	}
	return invalid(t, now, "expected %s, got %s", t, raw.Kind())
}

func validateTableRows(raw value.Value, now time.Time) Result {
	res := validateShape(raw, TypeTableRows, value.KindArray, now)
	if !res.Valid {
		return res
	}
	for i, row := range res.Value.Items() {
		if row.Kind() != value.KindObject {
			return invalid(TypeTableRows, now, "row %d is %s, expected object", i, row.Kind())
		}
	}
	return res
}

// maxEpochMillis bounds numeric dates to +/-100,000,000 days around the
// epoch, the range of a JavaScript Date.
const maxEpochMillis = 8.64e15

// dateLayouts are tried in order on string input.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func validateDate(raw value.Value, now time.Time) Result {
	switch raw.Kind() {
	case value.KindString:
		s := strings.TrimSpace(raw.Str())
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return valid(value.String(formatDate(ts)))
			}
		}
		return invalid(TypeDate, now, "value %q is not a valid date", raw.Str())
	case value.KindNumber:
		n := raw.Num()
		if math.IsNaN(n) || math.Abs(n) > maxEpochMillis {
			return invalid(TypeDate, now, "value %s is not a valid date", value.FormatNumber(n))
		}
		return valid(value.String(formatDate(time.UnixMilli(int64(n)))))
	}
	return invalid(TypeDate, now, "expected a date, got %s", raw.Kind())
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
