// Package render turns an interpretation payload into a display structure.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrRender marks a payload that parsed as JSON but could not be rendered.
var ErrRender = errors.New("render failed")

// Payload is the normalized interpretation produced by the inference service.
type Payload struct {
	Summary      string      `json:"summary"`
	Data         Data        `json:"data"`
	EducationHub []GlossItem `json:"education_hub,omitempty"`
	Disclaimer   string      `json:"disclaimer,omitempty"`
}

type Data struct {
	SpecimenType       string    `json:"specimen_type"`
	AnalyzerConfidence float64   `json:"analyzer_confidence"`
	Findings           []Finding `json:"findings"`
}

type Finding struct {
	Feature     string  `json:"feature"`
	Observation string  `json:"observation"`
	Confidence  float64 `json:"confidence"`
	Certainty   string  `json:"certainty"`
}

type GlossItem struct {
	Term             string `json:"term"`
	PlainExplanation string `json:"plain_explanation"`
}

// Report is what a front end displays.
type Report struct {
	Summary       string
	SpecimenType  string
	ConfidencePct int
	Markers       []Marker
	Glossary      []GlossItem
	Disclaimer    string
}

// Marker is one finding with its confidence as a whole percentage.
type Marker struct {
	Feature     string
	Observation string
	Percent     int
	Certainty   string
}

// Render maps raw into a Report. raw may be the payload object itself or a
// JSON string holding it, which is how history entries come back.
func Render(raw json.RawMessage) (*Report, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRender, err)
		}
		raw = []byte(inner)
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	if p.Summary == "" {
		return nil, fmt.Errorf("%w: missing summary", ErrRender)
	}

	r := &Report{
		Summary:       p.Summary,
		SpecimenType:  p.Data.SpecimenType,
		ConfidencePct: percent(p.Data.AnalyzerConfidence),
		Glossary:      p.EducationHub,
		Disclaimer:    p.Disclaimer,
	}
	for _, f := range p.Data.Findings {
		r.Markers = append(r.Markers, Marker{
			Feature:     f.Feature,
			Observation: f.Observation,
			Percent:     percent(f.Confidence),
			Certainty:   f.Certainty,
		})
	}
	return r, nil
}

func percent(v float64) int {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 100
	}
	return int(v*100 + 0.5)
}
