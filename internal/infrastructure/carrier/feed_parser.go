package carrier

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/erp/marketsync/internal/domain/integration"
)

// Feed column names
const (
	ColumnTrackingID     = "tracking_id"
	ColumnCustomerNumber = "customer_number"
	ColumnOrderCode      = "order_code"
	ColumnArticleNumber  = "article_number"
	ColumnQuantity       = "quantity"
	ColumnCarrier        = "carrier"
	ColumnShippedAt      = "shipped_at"
)

// requiredColumns must all be present in the header row
var requiredColumns = []string{
	ColumnTrackingID,
	ColumnCustomerNumber,
	ColumnOrderCode,
	ColumnArticleNumber,
	ColumnQuantity,
}

// Feed parsing errors
var (
	ErrEmptyFeed       = errors.New("carrier: feed file is empty")
	ErrInvalidEncoding = errors.New("carrier: feed file is not valid UTF-8")
	ErrMissingHeader   = errors.New("carrier: feed file missing header row")
	ErrMissingColumn   = errors.New("carrier: feed header missing required column")
)

// RowError describes a feed row that could not be turned into a record
type RowError struct {
	Line    int
	Column  string
	Message string
}

// Error implements the error interface
func (e *RowError) Error() string {
	return fmt.Sprintf("line %d, column %s: %s", e.Line, e.Column, e.Message)
}

// FeedParser reads a delimited carrier batch feed
type FeedParser struct {
	delimiter rune
	carrier   string
}

// ParserOption is a functional option for FeedParser configuration
type ParserOption func(*FeedParser)

// WithDelimiter sets the field delimiter (default is semicolon)
func WithDelimiter(d rune) ParserOption {
	return func(p *FeedParser) {
		p.delimiter = d
	}
}

// WithDefaultCarrier sets the carrier used for rows without a carrier column
func WithDefaultCarrier(carrier string) ParserOption {
	return func(p *FeedParser) {
		p.carrier = carrier
	}
}

// NewFeedParser creates a new FeedParser
func NewFeedParser(opts ...ParserOption) *FeedParser {
	p := &FeedParser{delimiter: ';'}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse reads all records. Rows that fail to parse are skipped and
// reported in the returned row errors; a structural problem with the file
// is returned as error.
func (p *FeedParser) Parse(r io.Reader) ([]integration.FeedRecord, []*RowError, error) {
	br := bufio.NewReader(r)

	// UTF-8 BOM: 0xEF, 0xBB, 0xBF
	head, err := br.Peek(3)
	if err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("carrier: failed to read feed: %w", err)
	}
	if len(head) >= 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		_, _ = br.Discard(3)
	}

	sample, err := br.Peek(4096)
	if err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("carrier: failed to read feed: %w", err)
	}
	if len(strings.TrimSpace(string(sample))) == 0 {
		return nil, nil, ErrEmptyFeed
	}
	if !utf8.Valid(sample) {
		return nil, nil, ErrInvalidEncoding
	}

	reader := csv.NewReader(br)
	reader.Comma = p.delimiter
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, ErrMissingHeader
	}
	if err != nil {
		return nil, nil, fmt.Errorf("carrier: failed to read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := columns[c]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	var (
		records   []integration.FeedRecord
		rowErrors []*RowError
		line      = 1
	)
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			rowErrors = append(rowErrors, &RowError{Line: line, Column: "*", Message: err.Error()})
			continue
		}
		get := func(col string) string {
			i, ok := columns[col]
			if !ok || i >= len(fields) {
				return ""
			}
			return strings.TrimSpace(fields[i])
		}
		if isBlank(fields) {
			continue
		}

		rec, rowErr := p.toRecord(line, get)
		if rowErr != nil {
			rowErrors = append(rowErrors, rowErr)
			continue
		}
		records = append(records, rec)
	}

	return records, rowErrors, nil
}

func (p *FeedParser) toRecord(line int, get func(string) string) (integration.FeedRecord, *RowError) {
	rec := integration.FeedRecord{
		RowNumber:      line,
		TrackingID:     get(ColumnTrackingID),
		CustomerNumber: get(ColumnCustomerNumber),
		OrderCode:      get(ColumnOrderCode),
		ArticleNumber:  get(ColumnArticleNumber),
		Carrier:        get(ColumnCarrier),
	}
	if rec.TrackingID == "" {
		return rec, &RowError{Line: line, Column: ColumnTrackingID, Message: "is required"}
	}
	if rec.OrderCode == "" {
		return rec, &RowError{Line: line, Column: ColumnOrderCode, Message: "is required"}
	}
	if rec.ArticleNumber == "" {
		return rec, &RowError{Line: line, Column: ColumnArticleNumber, Message: "is required"}
	}

	qty, err := strconv.Atoi(get(ColumnQuantity))
	if err != nil || qty <= 0 {
		return rec, &RowError{Line: line, Column: ColumnQuantity, Message: "must be a positive integer"}
	}
	rec.Quantity = qty

	if rec.Carrier == "" {
		rec.Carrier = p.carrier
	}

	if raw := get(ColumnShippedAt); raw != "" {
		ts, err := parseShippedAt(raw)
		if err != nil {
			return rec, &RowError{Line: line, Column: ColumnShippedAt, Message: "unrecognized date"}
		}
		rec.ShippedAt = ts
	}
	return rec, nil
}

var shippedAtLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006",
}

func parseShippedAt(raw string) (time.Time, error) {
	for _, layout := range shippedAtLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
