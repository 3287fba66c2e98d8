// Package extract performs per-page text extraction: native PDF text layer
// first, OCR fallback for scanned pages.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Block is one run of native text with its layout metadata, the segmenter's
// input unit.
type Block struct {
	Text     string  `json:"text"`
	FontSize float64 `json:"font_size"`
	Bold     bool    `json:"bold"`
	X        float64 `json:"x"` // text-space origin of the block
	Y        float64 `json:"y"`
}

// PageContent is the native extraction result for one page.
type PageContent struct {
	Number int
	Text   string
	Blocks []Block
}

// Document wraps a parsed PDF for repeated per-page access.
type Document struct {
	ctx  *model.Context
	path string
}

// OpenDocument reads, validates, and optimizes the PDF at path.
func OpenDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return &Document{ctx: ctx, path: path}, nil
}

// Path returns the filesystem path of the underlying PDF.
func (d *Document) Path() string { return d.path }

// PageCount returns the number of physical pages.
func (d *Document) PageCount() int { return d.ctx.PageCount }

// NativePage extracts the text layer of one page (1-based) from the PDF
// content stream, grouping runs into layout blocks.
func (d *Document) NativePage(pageNr int) PageContent {
	pc := PageContent{Number: pageNr}

	r, err := pdfcpu.ExtractPageContent(d.ctx, pageNr)
	if err != nil {
		return pc
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return pc
	}

	pc.Blocks = parseContentStream(data)
	var sb strings.Builder
	for _, b := range pc.Blocks {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(b.Text)
	}
	pc.Text = sb.String()
	return pc
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)

// tfRe matches font selection: /F1 10.5 Tf
var tfRe = regexp.MustCompile(`/(\S+)\s+([\d.]+)\s+Tf`)

// tmRe matches a text matrix: a b c d e f Tm
var tmRe = regexp.MustCompile(`([-\d.]+)\s+([-\d.]+)\s+([-\d.]+)\s+([-\d.]+)\s+([-\d.]+)\s+([-\d.]+)\s+Tm`)

// tdRe matches a relative text move: x y Td (or TD)
var tdRe = regexp.MustCompile(`([-\d.]+)\s+([-\d.]+)\s+T[dD]`)

// parseContentStream walks the page content stream operators, accumulating
// text runs into blocks. A new block starts on a font-size change or a
// vertical jump larger than one line.
func parseContentStream(data []byte) []Block {
	var blocks []Block
	var cur strings.Builder

	fontSize := 10.0
	x, y := 0.0, 0.0
	blockFont := fontSize
	blockBold := false
	blockX, blockY := x, y
	lastY := y

	flush := func() {
		text := cleanText(cur.String())
		if text != "" {
			blocks = append(blocks, Block{
				Text: text, FontSize: blockFont, Bold: blockBold, X: blockX, Y: blockY,
			})
		}
		cur.Reset()
	}

	lines := bytes.Split(data, []byte{'\n'})
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		if m := tfRe.FindSubmatch(line); m != nil {
			size, err := strconv.ParseFloat(string(m[2]), 64)
			if err == nil && size > 0 && size != fontSize {
				flush()
				fontSize = size
				blockFont = size
				blockBold = strings.Contains(strings.ToLower(string(m[1])), "bold")
				blockX, blockY = x, y
			}
			continue
		}

		if m := tmRe.FindSubmatch(line); m != nil {
			nx, _ := strconv.ParseFloat(string(m[5]), 64)
			ny, _ := strconv.ParseFloat(string(m[6]), 64)
			if jump := lastY - ny; jump > fontSize*2 || jump < -fontSize*2 {
				flush()
				blockFont = fontSize
				blockX, blockY = nx, ny
			}
			x, y = nx, ny
			lastY = ny
		}

		if m := tdRe.FindSubmatch(line); m != nil {
			dx, _ := strconv.ParseFloat(string(m[1]), 64)
			dy, _ := strconv.ParseFloat(string(m[2]), 64)
			x += dx
			y += dy
			if dy < -fontSize*2 || dy > fontSize*2 {
				flush()
				blockFont = fontSize
				blockX, blockY = x, y
			} else if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			lastY = y
		}

		// Text-showing operators: Tj, TJ, '
		if bytes.HasSuffix(line, []byte("Tj")) || bytes.HasSuffix(line, []byte("TJ")) ||
			(bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("("))) {
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				cur.WriteString(decodePDFString(m[1]))
			}
		}

		if bytes.Equal(line, []byte("T*")) && cur.Len() > 0 {
			cur.WriteByte(' ')
		}
	}
	flush()

	return blocks
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '\\', '(', ')':
				sb.WriteByte(raw[i])
			default:
				if raw[i] >= '0' && raw[i] <= '7' {
					val := int(raw[i] - '0')
					for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
						i++
						val = val*8 + int(raw[i]-'0')
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(raw[i])
				}
			}
		} else {
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// cleanText normalises whitespace in extracted text.
func cleanText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
