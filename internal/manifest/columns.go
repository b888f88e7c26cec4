package manifest

import "strings"

// Layout maps positional spreadsheet columns to line-item fields. Column
// positions are a versioned contract with the manifest producers; format
// drift becomes a new Layout value, not a code change.
type Layout struct {
	Version        int
	AWB            int
	Extra          int
	Shipper        int
	ShipperAddress int
	Consignee      int
	BinVAT         int
	Destination    int
	ConsigneeAddr  int
	Contact        int
	Telephone      int
	Pieces         int
	Weight         int
	Volume         int
	Description    int
	COD            int
	Value          int
	Remarks        int
	BagNo          int
	// Width is the minimum cell count a row needs before positional reads
	// start returning empty strings.
	Width int
}

// LayoutV2 is the current 19-column manifest format:
// NO, AWB NO, EXTRA, SHIPPER, SHIPPER ADDRESS, CONSIGNEE, BIN/VAT, DEST,
// CNEE ADDRESS, CTC, TEL NO, NOP, WT, VOL, DSCT, COD, VAL, RE, BAG NO.
var LayoutV2 = Layout{
	Version:        2,
	AWB:            1,
	Extra:          2,
	Shipper:        3,
	ShipperAddress: 4,
	Consignee:      5,
	BinVAT:         6,
	Destination:    7,
	ConsigneeAddr:  8,
	Contact:        9,
	Telephone:      10,
	Pieces:         11,
	Weight:         12,
	Volume:         13,
	Description:    14,
	COD:            15,
	Value:          16,
	Remarks:        17,
	BagNo:          18,
	Width:          19,
}

// LayoutV1 is the legacy 12-column format:
// NO, AWB NO, SHIPPER, CONSIGNEE, DEST, CNEE ADDRESS, CTC, NOP, WT, DSCT, VAL, RE.
// Columns absent from the format map to -1.
var LayoutV1 = Layout{
	Version:        1,
	AWB:            1,
	Extra:          -1,
	Shipper:        2,
	ShipperAddress: -1,
	Consignee:      3,
	BinVAT:         -1,
	Destination:    4,
	ConsigneeAddr:  5,
	Contact:        6,
	Telephone:      -1,
	Pieces:         7,
	Weight:         8,
	Volume:         -1,
	Description:    9,
	COD:            -1,
	Value:          10,
	Remarks:        11,
	BagNo:          -1,
	Width:          12,
}

// LayoutForVersion returns the layout for a configured version, defaulting to
// the current format for unknown versions.
func LayoutForVersion(v int) Layout {
	if v == 1 {
		return LayoutV1
	}
	return LayoutV2
}

// Cell reads a positional cell, returning "" for out-of-range or unmapped
// columns.
func (l Layout) Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

var headerTokens = []string{"NO", "AWB NO", "SHIPPER"}

// IsHeaderRow reports whether a row looks like the column header line.
func IsHeaderRow(row []string) bool {
	for _, cell := range row {
		v := strings.ToUpper(strings.TrimSpace(cell))
		for _, token := range headerTokens {
			if v == token {
				return true
			}
		}
	}
	return false
}

// FindHeader returns the index of the header row, or -1 when the input has
// no recognizable header and must be treated as all data.
func FindHeader(rows [][]string) int {
	for i, row := range rows {
		if IsHeaderRow(row) {
			return i
		}
	}
	return -1
}
