package osm

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrFormat marks payloads that are not OSM XML documents.
var ErrFormat = errors.New("not an osm xml document")

// Element is one top-level OSM primitive (*Node, *Way or *Relation).
type Element interface {
	ElementID() int64
}

// Tag is a single k/v pair.
type Tag struct {
	Key   string `xml:"k,attr"`
	Value string `xml:"v,attr"`
}

type Node struct {
	ID   int64   `xml:"id,attr"`
	Lat  float64 `xml:"lat,attr"`
	Lon  float64 `xml:"lon,attr"`
	Tags []Tag   `xml:"tag"`
}

type NodeRef struct {
	Ref int64 `xml:"ref,attr"`
}

type Way struct {
	ID    int64     `xml:"id,attr"`
	Nodes []NodeRef `xml:"nd"`
	Tags  []Tag     `xml:"tag"`
}

type Member struct {
	Type string `xml:"type,attr"`
	Ref  int64  `xml:"ref,attr"`
	Role string `xml:"role,attr"`
}

type Relation struct {
	ID      int64    `xml:"id,attr"`
	Members []Member `xml:"member"`
	Tags    []Tag    `xml:"tag"`
}

func (n *Node) ElementID() int64 {
	return n.ID
}

func (w *Way) ElementID() int64 {
	return w.ID
}

func (r *Relation) ElementID() int64 {
	return r.ID
}

// Reader streams the children of an <osm> document one primitive at a time.
// It owns the underlying stream and closes it in Close.
type Reader struct {
	src       io.ReadCloser
	dec       *xml.Decoder
	Version   string
	Generator string
}

// NewReader consumes the prolog up to the root element. A missing or foreign
// root element yields an error wrapping ErrFormat; src is left open in that
// case so the caller decides how to release it.
func NewReader(src io.ReadCloser) (*Reader, error) {
	dec := xml.NewDecoder(src)
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: empty document", ErrFormat)
			}
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "osm" {
			return nil, fmt.Errorf("%w: root element <%s>", ErrFormat, start.Name.Local)
		}
		r := &Reader{src: src, dec: dec}
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "version":
				r.Version = attr.Value
			case "generator":
				r.Generator = attr.Value
			}
		}
		return r, nil
	}
}

// Next returns the next node, way or relation, or io.EOF after </osm>.
// Other elements (bounds, note, meta) are skipped.
func (r *Reader) Next() (Element, error) {
	for {
		tok, err := r.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "osm" {
				return nil, io.EOF
			}
		case xml.StartElement:
			var el Element
			switch t.Name.Local {
			case "node":
				el = &Node{}
			case "way":
				el = &Way{}
			case "relation":
				el = &Relation{}
			default:
				if err := r.dec.Skip(); err != nil {
					return nil, err
				}
				continue
			}
			if err := r.dec.DecodeElement(el, &t); err != nil {
				return nil, fmt.Errorf("decode <%s>: %w", t.Name.Local, err)
			}
			return el, nil
		}
	}
}

// Close releases the underlying stream.
func (r *Reader) Close() error {
	return r.src.Close()
}

// Summary counts the primitives of a document.
type Summary struct {
	Nodes     int `json:"nodes"`
	Ways      int `json:"ways"`
	Relations int `json:"relations"`
	Tags      int `json:"tags"`
}

// Summarize drains r.
func Summarize(r *Reader) (Summary, error) {
	var s Summary
	for {
		el, err := r.Next()
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return s, err
		}
		switch v := el.(type) {
		case *Node:
			s.Nodes++
			s.Tags += len(v.Tags)
		case *Way:
			s.Ways++
			s.Tags += len(v.Tags)
		case *Relation:
			s.Relations++
			s.Tags += len(v.Tags)
		}
	}
}

// FormatSummary renders s on one line for CLI output.
func FormatSummary(s Summary) string {
	return "nodes=" + strconv.Itoa(s.Nodes) +
		" ways=" + strconv.Itoa(s.Ways) +
		" relations=" + strconv.Itoa(s.Relations) +
		" tags=" + strconv.Itoa(s.Tags)
}
