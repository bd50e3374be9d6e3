package delta

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/datapult/insightsync/internal"
	"github.com/datapult/insightsync/internal/coerce"
	"github.com/datapult/insightsync/internal/models"
)

// Parser turns raw delta lines into typed change records for one target
// object. Malformed lines are skipped and logged, never retried: ingestion is
// at most once per bad line and a bad line never blocks the batch.
type Parser struct {
	target string
	log    *slog.Logger
}

func NewParser(targetObject string, log *slog.Logger) *Parser {
	return &Parser{
		target: targetObject,
		log:    log,
	}
}

// ParseLines parses an ordered batch of raw lines. The first line is a header
// and is skipped. Records for other target objects are filtered out.
func (p *Parser) ParseLines(lines []string) []models.DeltaRecord {
	records := make([]models.DeltaRecord, 0, len(lines))

	for i, line := range lines {
		if i == 0 {
			// header
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		rec, ok := p.parseLine(line)
		if !ok {
			continue
		}
		records = append(records, rec)
	}

	return records
}

func (p *Parser) parseLine(line string) (zero models.DeltaRecord, _ bool) {
	fields := SplitFields(line, internal.DeltaFieldDelimiter)
	if len(fields) < internal.DeltaMinColumns {
		p.log.Warn("skipping malformed delta line",
			"columns", len(fields),
			"required", internal.DeltaMinColumns)
		return zero, false
	}

	target := strings.TrimSpace(fields[2])
	if !strings.EqualFold(target, p.target) {
		return zero, false
	}

	// The payload is the last logical column; rejoin in case it carried
	// unquoted delimiters.
	payload, err := ParsePayload(strings.Join(fields[4:], string(internal.DeltaFieldDelimiter)))
	if err != nil {
		p.log.Warn("discarding delta line with unparsable payload", "error", err)
		return zero, false
	}

	rec := models.DeltaRecord{
		SourceRowID:      strings.TrimSpace(fields[0]),
		SourceSequence:   strings.TrimSpace(fields[1]),
		TargetObjectName: target,
		Payload:          payload,
	}

	// An unparsable timestamp does not discard the record; it only loses
	// every reconciliation tie-break.
	if ts, err := coerce.ParseExternalDateTime(fields[3]); err == nil {
		rec.ChangeTimestamp = ts
	} else {
		p.log.Debug("delta line has unparsable change timestamp", "raw", fields[3])
	}

	return rec, true
}

// SplitFields splits one raw line on the delimiter, honoring quoted fields:
// each quote character toggles an "inside quotes" flag and only unquoted
// delimiters split. Quote characters are preserved in the field text.
func SplitFields(line string, delim byte) []string {
	fields := make([]string, 0, internal.DeltaMinColumns)
	var sb strings.Builder
	inQuotes := false

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			sb.WriteByte(c)
		case c == delim && !inQuotes:
			fields = append(fields, sb.String())
			sb.Reset()
		default:
			sb.WriteByte(c)
		}
	}
	fields = append(fields, sb.String())

	return fields
}

// ParsePayload normalizes the semi-structured payload column and parses it
// into a key/value mapping.
func ParsePayload(raw string) (map[string]any, error) {
	norm := normalizePayload(raw)

	if !gjson.Valid(norm) {
		return nil, fmt.Errorf("payload is not structurally valid after normalization: %q", norm)
	}
	parsed := gjson.Parse(norm)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("payload is not an object: %q", norm)
	}

	payload := make(map[string]any)
	parsed.ForEach(func(key, value gjson.Result) bool {
		payload[key.String()] = value.Value()
		return true
	})

	return payload, nil
}

// normalizePayload repairs the two damage modes the payload column arrives
// with: doubled quote escaping from the CSV layer, and bare identifiers or
// scalar values missing their quotes.
func normalizePayload(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, `""`, `"`)

	var b strings.Builder
	b.Grow(len(s) + 16)
	inQuotes := false

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			b.WriteByte(c)
			i++
		case !inQuotes && isBareTokenStart(c):
			j := i
			for j < len(s) && !isTokenBoundary(s[j]) {
				j++
			}
			token := strings.TrimSpace(s[i:j])
			// JSON literals must survive as literals: quoting a bare null
			// would turn an absent value into the text "null".
			switch token {
			case "null", "true", "false":
				b.WriteString(token)
			default:
				b.WriteByte('"')
				b.WriteString(token)
				b.WriteByte('"')
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String()
}

func isBareTokenStart(c byte) bool {
	switch c {
	case '{', '}', '[', ']', ':', ',', '"', ' ', '\t':
		return false
	default:
		return true
	}
}

func isTokenBoundary(c byte) bool {
	switch c {
	case ':', ',', '}', ']', '"':
		return true
	default:
		return false
	}
}
