package regs

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Table is an HTML table as header names and rows of cell text.
type Table struct {
	Header []string
	Rows   [][]string
}

// FirstTable parses the first <table> in an HTML document. The header is the
// <th> row (or the first row when there is none).
func FirstTable(r io.Reader) (Table, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Table{}, fmt.Errorf("parsing html: %w", err)
	}
	tbl := find(doc, atom.Table)
	if tbl == nil {
		return Table{}, fmt.Errorf("no table in document")
	}

	var t Table
	for _, tr := range findAll(tbl, atom.Tr) {
		var cells []string
		header := false
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
				continue
			}
			if c.DataAtom == atom.Th {
				header = true
			}
			cells = append(cells, text(c))
		}
		if len(cells) == 0 {
			continue
		}
		if t.Header == nil && (header || len(t.Rows) == 0) {
			t.Header = cells
			continue
		}
		t.Rows = append(t.Rows, cells)
	}
	if t.Header == nil {
		return Table{}, fmt.Errorf("table has no rows")
	}
	return t, nil
}

// Column returns the index of the named header column, or -1.
func (t Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, a); found != nil {
			return found
		}
	}
	return nil
}

// findAll returns the a elements under n, not descending into nested tables.
func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.DataAtom == a {
				out = append(out, c)
				continue
			}
			if c.DataAtom != atom.Table {
				walk(c)
			}
		}
	}
	walk(n)
	return out
}

// text returns the element's text with whitespace collapsed.
func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
