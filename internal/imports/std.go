package imports

import (
	"context"
	"strings"
	"time"

	"github.com/goodsign/monday"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/proto"
)

// registerStd links the std namespace: buffer materialization and the
// date helpers.
func registerStd(ctx context.Context, rt wazero.Runtime, env *Env) error {
	b := rt.NewHostModuleBuilder("std")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32) int32 {
		buf, err := env.materialize(d)
		if err != nil {
			return proto.SentinelUnknown
		}
		return int32(len(buf))
	}).Export("buffer_len")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, d int32, ptr, size uint32) int32 {
		buf, err := env.materialize(d)
		if err != nil {
			return proto.SentinelUnknown
		}
		n := uint32(len(buf))
		if size < n {
			n = size
		}
		if n > 0 && !mod.Memory().Write(ptr, buf[:n]) {
			env.Logger.Warn("guest passed out-of-bounds read_buffer target",
				zap.Uint32("ptr", ptr), zap.Uint32("size", size))
			return proto.SentinelUnknown
		}
		return int32(n)
	}).Export("read_buffer")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, d int32) {
		env.Store.Take(d)
		env.dropBuffer(d)
	}).Export("destroy")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context) float64 {
		now := time.Now()
		return float64(now.UnixNano()) / float64(time.Second)
	}).Export("current_date")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context) int64 {
		_, offset := time.Now().Zone()
		return int64(offset)
	}).Export("utc_offset")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, d int32, fptr, flen, lptr, llen, zptr, zlen uint32) float64 {
		v, ok := env.Store.Get(d)
		if !ok {
			return -1
		}
		text := string(v.StringBytes())
		pattern := env.readString(mod, fptr, flen)
		locale := env.readString(mod, lptr, llen)
		tz := env.readString(mod, zptr, zlen)

		t, err := parseDate(text, pattern, locale, tz)
		if err != nil {
			env.Logger.Debug("date parse failed",
				zap.String("text", text), zap.String("pattern", pattern),
				zap.String("locale", locale), zap.Error(err))
			return -1
		}
		return float64(t.UnixNano()) / float64(time.Second)
	}).Export("parse_date")

	_, err := b.Instantiate(ctx)
	return err
}

// parseDate applies a Unicode date pattern with an optional locale and
// time zone name. Extensions ship patterns like "yyyy-MM-dd'T'HH:mm:ss"
// and BCP 47 locales like "en_US" or "pt-BR".
func parseDate(text, pattern, locale, tz string) (time.Time, error) {
	loc := time.Local
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, err
		}
		loc = l
	}
	layout := patternToLayout(pattern)
	if locale == "" {
		return time.ParseInLocation(layout, text, loc)
	}
	return monday.ParseInLocation(layout, text, loc, mondayLocale(locale))
}

// mondayLocale normalizes a BCP 47 tag to the underscore form monday
// expects. Unknown tags still parse when the layout has no localized
// words in it.
func mondayLocale(tag string) monday.Locale {
	return monday.Locale(strings.Replace(tag, "-", "_", 1))
}

// patternToLayout converts a Unicode date-format pattern to a Go
// reference layout. Single-quoted runs are literals; '' is a literal
// quote.
func patternToLayout(pattern string) string {
	var out strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); {
		c := runes[i]
		if c == '\'' {
			if i+1 < len(runes) && runes[i+1] == '\'' {
				out.WriteRune('\'')
				i += 2
				continue
			}
			i++
			for i < len(runes) && runes[i] != '\'' {
				out.WriteRune(runes[i])
				i++
			}
			i++
			continue
		}
		if !isPatternLetter(c) {
			out.WriteRune(c)
			i++
			continue
		}
		j := i
		for j < len(runes) && runes[j] == c {
			j++
		}
		out.WriteString(patternField(c, j-i))
		i = j
	}
	return out.String()
}

func isPatternLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// patternField maps one repeated pattern letter to its Go layout
// fragment.
func patternField(c rune, n int) string {
	switch c {
	case 'y':
		if n == 2 {
			return "06"
		}
		return "2006"
	case 'M':
		switch {
		case n >= 4:
			return "January"
		case n == 3:
			return "Jan"
		case n == 2:
			return "01"
		default:
			return "1"
		}
	case 'd':
		if n >= 2 {
			return "02"
		}
		return "2"
	case 'E':
		if n >= 4 {
			return "Monday"
		}
		return "Mon"
	case 'H':
		return "15"
	case 'h':
		if n >= 2 {
			return "03"
		}
		return "3"
	case 'm':
		if n >= 2 {
			return "04"
		}
		return "4"
	case 's':
		if n >= 2 {
			return "05"
		}
		return "5"
	case 'S':
		return strings.Repeat("0", n)
	case 'a':
		return "PM"
	case 'z':
		return "MST"
	case 'Z':
		if n >= 5 {
			return "-07:00"
		}
		return "-0700"
	case 'X', 'x':
		return "-07:00"
	case 'G', 'w', 'W', 'D', 'F', 'k', 'K', 'u':
		// No Go layout equivalent; drop the field.
		return ""
	default:
		return ""
	}
}
