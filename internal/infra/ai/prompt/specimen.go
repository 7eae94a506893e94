package prompt

import "fmt"

// NotRecognized is the marker the model emits for non-biomedical images.
const NotRecognized = "SPECIMEN_NOT_RECOGNIZED"

// Disclaimer is the fixed disclaimer the model must echo.
const Disclaimer = "RESEARCH USE ONLY. NOT FOR CLINICAL DIAGNOSIS."

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `ROLE: Senior Biomedical Vision Engine (Research Support).
MISSION: Extract visual patterns into a DETERMINISTIC JSON SCHEMA.

1. SUMMARY: Provide a 2-sentence plain language overview.
2. FINDINGS: List visual characteristics (textures, densities, symmetry).
3. CONFIDENCE: Assign a 0.0-1.0 score based on image clarity.
4. EDUCATION: Define 2-3 technical terms used in the summary for researchers.

ETHICAL CONSTRAINTS:
- DIAGNOSIS IS STRICTLY FORBIDDEN.
- Use 'visual pattern' instead of 'symptom'.
- Use 'structural variation' instead of 'disease'.
- If the image is not biomedical, state '` + NotRecognized + `'.

JSON FORMAT:
{
  "summary": "text",
  "data": {
    "specimen_type": "text",
    "analyzer_confidence": float,
    "findings": [{"feature": "text", "observation": "text", "confidence": float, "certainty": "High|Med|Low"}]
  },
  "education_hub": [{"term": "text", "plain_explanation": "text"}],
  "disclaimer": "` + Disclaimer + `"
}

OUTPUT RAW JSON ONLY.`
}

// GetUserPrompt builds a compact user message for one specimen.
func GetUserPrompt(filename string) string {
	return fmt.Sprintf("Analyze the attached specimen image (%s) and respond with the JSON per schema.", filename)
}
