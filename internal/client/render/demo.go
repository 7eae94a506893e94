package render

import (
	"encoding/json"
	"time"
)

// DemoDelay simulates inference latency in demo mode.
const DemoDelay = 1500 * time.Millisecond

var demoPayload = Payload{
	Summary: "VIRTUAL SPECIMEN: Uniform visual patterns identified with occasional structural variations in the peripheral zones.",
	Data: Data{
		SpecimenType:       "Demonstration",
		AnalyzerConfidence: 0.94,
		Findings: []Finding{
			{Feature: "Pattern Symmetry", Observation: "High degree of structural alignment.", Confidence: 0.98, Certainty: "High"},
			{Feature: "Opacity Gradient", Observation: "Gradual shift from translucent to radiopaque.", Confidence: 0.72, Certainty: "Med"},
		},
	},
	EducationHub: []GlossItem{
		{Term: "Radiopaque", PlainExplanation: "Appearing bright or white on a scan, indicating higher density."},
		{Term: "Morphology", PlainExplanation: "The physical shape and structure of cells or bones."},
	},
	Disclaimer: "DEMO MODE ONLY",
}

// DemoPayload returns the fixed synthetic interpretation shown in demo mode.
func DemoPayload() json.RawMessage {
	b, _ := json.Marshal(demoPayload)
	return b
}
