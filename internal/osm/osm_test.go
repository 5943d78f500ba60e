package osm

import (
	"errors"
	"io"
	"strings"
	"testing"
)

const sampleDocument = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="Overpass API">
  <note>The data included in this document is from www.openstreetmap.org.</note>
  <meta osm_base="2024-01-01T00:00:00Z"/>
  <node id="1" lat="47.37" lon="8.54">
    <tag k="amenity" v="cafe"/>
  </node>
  <node id="2" lat="47.38" lon="8.55"/>
  <way id="10">
    <nd ref="1"/>
    <nd ref="2"/>
    <tag k="highway" v="residential"/>
    <tag k="name" v="Bahnhofstrasse"/>
  </way>
  <relation id="100">
    <member type="way" ref="10" role="outer"/>
  </relation>
</osm>`

func TestParseBoundingBox(t *testing.T) {
	b, err := ParseBoundingBox(" 47.3, 8.5 ,47.4,8.6 ")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if b.String() != "47.3,8.5,47.4,8.6" {
		t.Fatalf("unexpected string %s", b.String())
	}
	if b.CacheBaseName() != "bbox_47.3_8.5_47.4_8.6" {
		t.Fatalf("unexpected base name %s", b.CacheBaseName())
	}
	if got := b.QueryFragment(); got != "interpreter?data=(node(47.3,8.5,47.4,8.6);<;);out%20body;" {
		t.Fatalf("unexpected query fragment %s", got)
	}
}

func TestParseBoundingBoxRejectsInvalid(t *testing.T) {
	for _, raw := range []string{
		"",
		"1,2,3",
		"a,b,c,d",
		"47.4,8.5,47.3,8.6",
		"47.3,8.6,47.4,8.5",
		"-91,0,1,1",
		"0,0,1,181",
		"NaN,0,1,1",
		"0,NaN,1,1",
		"0,0,1,+Inf",
		"-Inf,0,1,1",
	} {
		if _, err := ParseBoundingBox(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestNegativeZeroSharesCacheBaseName(t *testing.T) {
	negative, err := ParseBoundingBox("-0,-0,1,1")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	positive, err := ParseBoundingBox("0,0,1,1")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if negative.CacheBaseName() != positive.CacheBaseName() {
		t.Fatalf("base names differ: %s vs %s", negative.CacheBaseName(), positive.CacheBaseName())
	}
	if negative.String() != "0,0,1,1" {
		t.Fatalf("unexpected string %s", negative.String())
	}
}

func TestReaderStreamsPrimitives(t *testing.T) {
	r, err := NewReader(io.NopCloser(strings.NewReader(sampleDocument)))
	if err != nil {
		t.Fatalf("new reader error: %v", err)
	}
	defer r.Close()
	if r.Version != "0.6" || r.Generator != "Overpass API" {
		t.Fatalf("root attributes not captured: %q %q", r.Version, r.Generator)
	}

	el, err := r.Next()
	if err != nil {
		t.Fatalf("next error: %v", err)
	}
	node, ok := el.(*Node)
	if !ok || node.ID != 1 || node.Lat != 47.37 || len(node.Tags) != 1 || node.Tags[0].Value != "cafe" {
		t.Fatalf("unexpected first element %#v", el)
	}

	if _, err := r.Next(); err != nil {
		t.Fatalf("second node error: %v", err)
	}
	el, err = r.Next()
	if err != nil {
		t.Fatalf("way error: %v", err)
	}
	way, ok := el.(*Way)
	if !ok || len(way.Nodes) != 2 || way.Nodes[1].Ref != 2 {
		t.Fatalf("unexpected way %#v", el)
	}
	el, err = r.Next()
	if err != nil {
		t.Fatalf("relation error: %v", err)
	}
	if rel, ok := el.(*Relation); !ok || rel.Members[0].Role != "outer" {
		t.Fatalf("unexpected relation %#v", el)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after </osm>, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	r, err := NewReader(io.NopCloser(strings.NewReader(sampleDocument)))
	if err != nil {
		t.Fatalf("new reader error: %v", err)
	}
	s, err := Summarize(r)
	if err != nil {
		t.Fatalf("summarize error: %v", err)
	}
	want := Summary{Nodes: 2, Ways: 1, Relations: 1, Tags: 3}
	if s != want {
		t.Fatalf("expected %+v, got %+v", want, s)
	}
	if FormatSummary(s) != "nodes=2 ways=1 relations=1 tags=3" {
		t.Fatalf("unexpected format %s", FormatSummary(s))
	}
}

func TestNewReaderRejectsForeignPayloads(t *testing.T) {
	for _, payload := range []string{"", "XYZ", "<html><body/></html>", "<osm"} {
		if _, err := NewReader(io.NopCloser(strings.NewReader(payload))); !errors.Is(err, ErrFormat) {
			t.Fatalf("expected ErrFormat for %q, got %v", payload, err)
		}
	}
}

func TestReaderTruncatedDocument(t *testing.T) {
	r, err := NewReader(io.NopCloser(strings.NewReader(`<osm><node id="1" lat="1" lon="2"/>`)))
	if err != nil {
		t.Fatalf("new reader error: %v", err)
	}
	if _, err := r.Next(); err != nil {
		t.Fatalf("first node error: %v", err)
	}
	if _, err := r.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("truncated document must not end cleanly, got %v", err)
	}
}
