package ingestion

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

func openZip(data []byte) (*zip.Reader, error) {
	return zip.NewReader(bytes.NewReader(data), int64(len(data)))
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// numberedParts returns the archive entries matching pattern ordered by the
// number captured in its first group, e.g. slide2 before slide10.
func numberedParts(zr *zip.Reader, pattern *regexp.Regexp) []string {
	type part struct {
		name string
		n    int
	}
	var parts []part
	for _, f := range zr.File {
		m := pattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		parts = append(parts, part{f.Name, n})
	}
	slices.SortFunc(parts, func(a, b part) int { return a.n - b.n })
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = p.name
	}
	return names
}

// extractDOCX reads paragraphs in body order. Table rows are rendered as
// cells joined by " | ".
func extractDOCX(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}
	doc, err := readZipFile(zr, "word/document.xml")
	if err != nil {
		return "", err
	}

	var (
		parts     []string
		para      strings.Builder
		inText    bool
		tableRow  []string
		cell      []string
		tableDeep int
	)
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDeep++
			case "tr":
				tableRow = nil
			case "tc":
				cell = nil
			case "p":
				para.Reset()
			case "t":
				inText = true
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				if tableDeep > 0 {
					if text != "" {
						cell = append(cell, text)
					}
				} else if text != "" {
					parts = append(parts, text)
				}
			case "tc":
				tableRow = append(tableRow, strings.Join(cell, " "))
			case "tr":
				row := strings.Join(tableRow, " | ")
				if strings.Trim(row, "| ") != "" {
					parts = append(parts, row)
				}
			case "tbl":
				tableDeep--
			}
		}
	}
	return strings.Join(parts, "\n"), nil
}

var (
	slidePattern     = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	worksheetPattern = regexp.MustCompile(`^xl/worksheets/sheet(\d+)\.xml$`)
)

// extractPPTX collects the text paragraphs of each slide.
func extractPPTX(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}
	var parts []string
	for i, name := range numberedParts(zr, slidePattern) {
		raw, err := readZipFile(zr, name)
		if err != nil {
			return "", err
		}
		paras, err := xmlParagraphs(raw)
		if err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		if len(paras) > 0 {
			parts = append(parts, fmt.Sprintf("--- Slide %d ---\n%s", i+1, strings.Join(paras, "\n")))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// xmlParagraphs returns the non-empty text of each <p> element.
func xmlParagraphs(raw []byte) ([]string, error) {
	var (
		paras  []string
		para   strings.Builder
		inText bool
	)
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return paras, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para.Reset()
			case "t":
				inText = true
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if text := strings.TrimSpace(para.String()); text != "" {
					paras = append(paras, text)
				}
			}
		}
	}
}

type xlsxWorkbook struct {
	Sheets []struct {
		Name string `xml:"name,attr"`
	} `xml:"sheets>sheet"`
}

type xlsxSharedStrings struct {
	Items []struct {
		Text string `xml:"t"`
		Runs []struct {
			Text string `xml:"t"`
		} `xml:"r"`
	} `xml:"si"`
}

type xlsxSheet struct {
	Rows []struct {
		Cells []struct {
			Type   string `xml:"t,attr"`
			Value  string `xml:"v"`
			Inline struct {
				Text string `xml:"t"`
			} `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

// extractXLSX renders each sheet's rows as cell values joined by " | ".
func extractXLSX(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}

	var shared []string
	if raw, err := readZipFile(zr, "xl/sharedStrings.xml"); err == nil {
		var ss xlsxSharedStrings
		if err := xml.Unmarshal(raw, &ss); err != nil {
			return "", fmt.Errorf("shared strings: %w", err)
		}
		for _, si := range ss.Items {
			text := si.Text
			for _, r := range si.Runs {
				text += r.Text
			}
			shared = append(shared, text)
		}
	}

	var wb xlsxWorkbook
	if raw, err := readZipFile(zr, "xl/workbook.xml"); err == nil {
		if err := xml.Unmarshal(raw, &wb); err != nil {
			return "", fmt.Errorf("workbook: %w", err)
		}
	}

	var parts []string
	for i, name := range numberedParts(zr, worksheetPattern) {
		raw, err := readZipFile(zr, name)
		if err != nil {
			return "", err
		}
		var sheet xlsxSheet
		if err := xml.Unmarshal(raw, &sheet); err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}

		title := fmt.Sprintf("Sheet%d", i+1)
		if i < len(wb.Sheets) {
			title = wb.Sheets[i].Name
		}
		parts = append(parts, fmt.Sprintf("--- Sheet: %s ---", title))
		for _, row := range sheet.Rows {
			var cells []string
			for _, c := range row.Cells {
				var v string
				switch c.Type {
				case "s":
					if idx, err := strconv.Atoi(c.Value); err == nil && idx >= 0 && idx < len(shared) {
						v = shared[idx]
					}
				case "inlineStr":
					v = c.Inline.Text
				default:
					v = c.Value
				}
				if v != "" {
					cells = append(cells, v)
				}
			}
			if len(cells) > 0 {
				parts = append(parts, strings.Join(cells, " | "))
			}
		}
	}
	return strings.Join(parts, "\n"), nil
}
