package tesseract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

const wordLevel = 5

// ParseTSV turns tesseract TSV output into text, mean word confidence (0-100)
// and word tokens. Lines break on line changes, blank lines on block changes.
func ParseTSV(raw string) (string, float64, []domain.Token, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "level") {
		return "", 0, nil, fmt.Errorf("tesseract tsv: missing header")
	}

	var (
		sb      strings.Builder
		tokens  []domain.Token
		confSum float64
	)
	lastBlock, lastPar, lastLine := -1, -1, -1
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}
		level, err := strconv.Atoi(cols[0])
		if err != nil || level != wordLevel {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		text := strings.TrimSpace(strings.Join(cols[11:], "\t"))
		if text == "" {
			continue
		}
		block, _ := strconv.Atoi(cols[2])
		par, _ := strconv.Atoi(cols[3])
		ln, _ := strconv.Atoi(cols[4])

		switch {
		case sb.Len() == 0:
		case block != lastBlock:
			sb.WriteString("\n\n")
		case par != lastPar || ln != lastLine:
			sb.WriteString("\n")
		default:
			sb.WriteString(" ")
		}
		sb.WriteString(text)
		lastBlock, lastPar, lastLine = block, par, ln

		left, _ := strconv.Atoi(cols[6])
		top, _ := strconv.Atoi(cols[7])
		width, _ := strconv.Atoi(cols[8])
		height, _ := strconv.Atoi(cols[9])
		tokens = append(tokens, domain.Token{
			Text:       text,
			Confidence: conf,
			Box:        domain.BoundingBox{X: left, Y: top, Width: width, Height: height},
		})
		confSum += conf
	}

	if len(tokens) == 0 {
		return "", 0, nil, nil
	}
	return sb.String(), confSum / float64(len(tokens)), tokens, nil
}
