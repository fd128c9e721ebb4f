package carrier

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedHeader = "tracking_id;customer_number;order_code;article_number;quantity;carrier;shipped_at\n"

func TestFeedParser_Parse(t *testing.T) {
	content := "\xEF\xBB\xBF" + feedHeader +
		"00340434161094042557;K-100;MK-1001;4006381333931;10;DHL;2026-04-02\n" +
		"00340434161094042557;K-100;MK-1001;4006381333948;5;;2026-04-02 10:15:00\n" +
		";;;;;;\n" +
		"00340434161094042564;K-200;MK-1002; 4006 3813 3393 1 ;1;DPD;\n"

	records, rowErrors, err := NewFeedParser(WithDefaultCarrier("DHL")).Parse(strings.NewReader(content))

	require.NoError(t, err)
	assert.Empty(t, rowErrors)
	require.Len(t, records, 3)

	assert.Equal(t, "00340434161094042557", records[0].TrackingID)
	assert.Equal(t, "K-100", records[0].CustomerNumber)
	assert.Equal(t, "MK-1001", records[0].OrderCode)
	assert.Equal(t, 10, records[0].Quantity)
	assert.Equal(t, time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC), records[0].ShippedAt)
	assert.Equal(t, 2, records[0].RowNumber)

	assert.Equal(t, "DHL", records[1].Carrier, "default carrier applies to empty column")
	assert.Equal(t, "4006 3813 3393 1", records[2].ArticleNumber)
	assert.True(t, records[2].ShippedAt.IsZero())
}

func TestFeedParser_RowErrors(t *testing.T) {
	content := feedHeader +
		"T1;K;MK-1;A1;zero;DHL;\n" +
		"T2;K;;A1;1;DHL;\n" +
		"T3;K;MK-1;A1;2;DHL;yesterday\n" +
		"T4;K;MK-1;A1;3;DHL;\n"

	records, rowErrors, err := NewFeedParser().Parse(strings.NewReader(content))

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "T4", records[0].TrackingID)
	require.Len(t, rowErrors, 3)
	assert.Equal(t, ColumnQuantity, rowErrors[0].Column)
	assert.Equal(t, ColumnOrderCode, rowErrors[1].Column)
	assert.Equal(t, ColumnShippedAt, rowErrors[2].Column)
	assert.Equal(t, 4, rowErrors[2].Line)
}

func TestFeedParser_StructuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"empty", "", ErrEmptyFeed},
		{"whitespace only", "  \n\n", ErrEmptyFeed},
		{"invalid utf8", "tracking_id;\xff\xfe\n", ErrInvalidEncoding},
		{"missing column", "tracking_id;order_code;quantity\nT;MK;1\n", ErrMissingColumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewFeedParser().Parse(strings.NewReader(tt.content))
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestFeedParser_CustomDelimiter(t *testing.T) {
	content := strings.ReplaceAll(feedHeader, ";", ",") + "T1,K,MK-1,A1,2,DHL,\n"

	records, _, err := NewFeedParser(WithDelimiter(',')).Parse(strings.NewReader(content))

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Quantity)
}
