package network

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/webgenie/pkg/models"
)

// Format is a network download format.
type Format string

const (
	FormatTSV     Format = "tsv"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatGraphML Format = "graphml"
)

// ParseFormat normalises a user-supplied format name. Empty means TSV.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTSV, nil
	case FormatTSV, FormatCSV, FormatJSON, FormatGraphML:
		return f, nil
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	case FormatGraphML:
		return "application/xml"
	}
	return "text/tab-separated-values"
}

// Export writes edges to w in the given format.
func Export(w io.Writer, edges []models.Edge, f Format, directed bool) error {
	switch f {
	case FormatTSV:
		return writeDelimited(w, edges, '\t', false)
	case FormatCSV:
		return writeDelimited(w, edges, ',', true)
	case FormatJSON:
		return WriteJSON(w, edges)
	case FormatGraphML:
		return WriteGraphML(w, edges, directed)
	}
	return fmt.Errorf("unsupported format %q", f)
}

// writeDelimited writes one row per edge. TSV stays header-less, the same
// layout as an algorithm's result file.
func writeDelimited(w io.Writer, edges []models.Edge, sep rune, header bool) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep
	if header {
		if err := cw.Write([]string{"source", "target", "weight"}); err != nil {
			return err
		}
	}
	for _, e := range edges {
		if err := cw.Write([]string{e.Source, e.Target, formatWeight(e.Weight)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes {"edges":[{"source","target","weight"}...]}.
func WriteJSON(w io.Writer, edges []models.Edge) error {
	if edges == nil {
		edges = []models.Edge{}
	}
	return json.NewEncoder(w).Encode(struct {
		Edges []models.Edge `json:"edges"`
	}{Edges: edges})
}

type graphML struct {
	XMLName xml.Name     `xml:"graphml"`
	XMLNS   string       `xml:"xmlns,attr"`
	Keys    []graphMLKey `xml:"key"`
	Graph   graphMLGraph `xml:"graph"`
}

type graphMLKey struct {
	ID       string `xml:"id,attr"`
	For      string `xml:"for,attr"`
	AttrName string `xml:"attr.name,attr"`
	AttrType string `xml:"attr.type,attr"`
}

type graphMLGraph struct {
	ID          string        `xml:"id,attr"`
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphMLNode `xml:"node"`
	Edges       []graphMLEdge `xml:"edge"`
}

type graphMLNode struct {
	ID string `xml:"id,attr"`
}

type graphMLEdge struct {
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphMLData `xml:"data"`
}

type graphMLData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// WriteGraphML writes edges as a GraphML document with a weight attribute.
// Nodes are emitted in first-seen order.
func WriteGraphML(w io.Writer, edges []models.Edge, directed bool) error {
	doc := graphML{
		XMLNS: "http://graphml.graphdrawing.org/xmlns",
		Keys:  []graphMLKey{{ID: "weight", For: "edge", AttrName: "weight", AttrType: "double"}},
		Graph: graphMLGraph{ID: "G", EdgeDefault: "undirected"},
	}
	if directed {
		doc.Graph.EdgeDefault = "directed"
	}

	seen := make(map[string]bool)
	addNode := func(id string) {
		if !seen[id] {
			seen[id] = true
			doc.Graph.Nodes = append(doc.Graph.Nodes, graphMLNode{ID: id})
		}
	}
	for _, e := range edges {
		addNode(e.Source)
		addNode(e.Target)
		doc.Graph.Edges = append(doc.Graph.Edges, graphMLEdge{
			Source: e.Source,
			Target: e.Target,
			Data:   []graphMLData{{Key: "weight", Value: formatWeight(e.Weight)}},
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'g', -1, 64)
}
