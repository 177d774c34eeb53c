package classify

import "fmt"

func buildClassifyPrompt(boxID string, imageCount int) string {
	return fmt.Sprintf(`You are an archivist cataloging vintage ephemera. The %d photo(s) show one physical item from storage box %q, possibly from multiple angles.

Output ONLY valid JSON with this exact structure (no markdown, no explanation):
{"title": "short descriptive title", "type": "postcard", "year": "1954", "notes": "condition, markings, anything notable", "confidence": 0.85}

Rules:
- type: one of "postcard", "photo", "letter", "ticket", "advertisement", "document", "other"
- year: best estimate as a string, or "" if undeterminable
- notes: 1-2 sentences, or "" if nothing notable
- confidence: 0.0-1.0, your certainty in the title and type
- Title from visible text when legible, otherwise describe the item`,
		imageCount, boxID)
}
