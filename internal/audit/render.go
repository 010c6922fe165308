package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ditar94/LabAid-sub000/pkg/domain"
)

// archiveDocument is the envelope every artifact format renders.
type archiveDocument struct {
	JobID       string            `json:"job_id"`
	GeneratedAt time.Time         `json:"generated_at"`
	Scope       ArchiveScope      `json:"scope"`
	Count       int               `json:"count"`
	Movements   []domain.Movement `json:"movements"`
}

var movementColumns = []string{
	"vial_id",
	"lot_id",
	"from_unit",
	"from_position",
	"to_unit",
	"to_position",
	"actor",
	"occurred_at",
}

func render(format ArchiveFormat, doc archiveDocument) ([]byte, error) {
	switch format {
	case FormatJSON:
		return renderJSON(doc)
	case FormatCSV:
		return renderCSV(doc)
	case FormatXLSX:
		return renderXLSX(doc)
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}
}

func renderJSON(doc archiveDocument) ([]byte, error) {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal archive: %w", err)
	}
	return payload, nil
}

func renderCSV(doc archiveDocument) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(movementColumns); err != nil {
		return nil, err
	}
	for _, mv := range doc.Movements {
		if err := writer.Write(movementRow(mv)); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const movementSheet = "Movements"

func renderXLSX(doc archiveDocument) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo needs the file open, so Close happens explicitly, not deferred.

	index, err := f.NewSheet(movementSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for col, header := range movementColumns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("convert coordinates: %w", err)
		}
		if err := f.SetCellValue(movementSheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(movementSheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("set header style: %w", err)
		}
	}

	columnWidths := []float64{
		16, // vial_id
		16, // lot_id
		16, // from_unit
		14, // from_position
		16, // to_unit
		14, // to_position
		14, // actor
		22, // occurred_at
	}
	for i := range movementColumns {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("convert column number: %w", err)
		}
		if err := f.SetColWidth(movementSheet, col, col, columnWidths[i]); err != nil {
			f.Close()
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	for rowIdx, mv := range doc.Movements {
		row := rowIdx + 2 // row 1 is the header
		for col, value := range movementRow(mv) {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("convert coordinates: %w", err)
			}
			if err := f.SetCellValue(movementSheet, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(movementSheet, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func movementRow(mv domain.Movement) []string {
	fromUnit := ""
	if mv.FromUnitID != nil {
		fromUnit = *mv.FromUnitID
	}
	fromPosition := ""
	if mv.FromPosition != nil {
		fromPosition = *mv.FromPosition
	}
	return []string{
		mv.VialID,
		mv.LotID,
		fromUnit,
		fromPosition,
		mv.ToUnitID,
		mv.ToPosition,
		mv.Actor,
		mv.OccurredAt.UTC().Format(time.RFC3339),
	}
}
