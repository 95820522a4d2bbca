package ocr

import (
	"strconv"
	"strings"
)

// Tesseract TSV columns:
// level page_num block_num par_num line_num word_num left top width height conf text
const (
	colLevel = 0
	colLeft  = 6
	colTop   = 7
	colWidth = 8
	colHeight = 9
	colConf  = 10
	colText  = 11
	numCols  = 12

	wordLevel = 5
)

// parseTSV converts tesseract TSV output into Regions, keeping only word
// rows that carry a box, text, and a usable confidence. Everything else
// (headers, structural rows, rows with conf -1, short rows) is dropped.
func parseTSV(out []byte) []Region {
	var regions []Region
	for i, line := range strings.Split(string(out), "\n") {
		if i == 0 || line == "" {
			continue // header or trailing blank
		}
		cols := strings.Split(line, "\t")
		if len(cols) < numCols {
			continue
		}
		if lvl, err := strconv.Atoi(cols[colLevel]); err != nil || lvl != wordLevel {
			continue
		}
		conf, err := strconv.ParseFloat(cols[colConf], 64)
		if err != nil || conf < 0 {
			continue
		}
		text := strings.TrimSpace(strings.Join(cols[colText:], " "))
		if text == "" {
			continue
		}
		left, err1 := strconv.Atoi(cols[colLeft])
		top, err2 := strconv.Atoi(cols[colTop])
		width, err3 := strconv.Atoi(cols[colWidth])
		height, err4 := strconv.Atoi(cols[colHeight])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}

		score := conf / 100.0
		if score > 1.0 {
			score = 1.0
		}
		regions = append(regions, Region{
			Polygon: [4]Point{
				{X: left, Y: top},
				{X: left + width, Y: top},
				{X: left + width, Y: top + height},
				{X: left, Y: top + height},
			},
			Text:       text,
			Confidence: score,
		})
	}
	return regions
}
