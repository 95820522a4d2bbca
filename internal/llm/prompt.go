package llm

import "strings"

// preamble is the fixed instruction block sent ahead of every extraction
// prompt. It pins the model's role, tells it to reconcile multi-page
// ambiguity, and demands schema-conformant JSON with no prose.
var preamble = []string{
	"You are an Invoice Extraction Specialist. Your task is to extract key details from the OCR text provided.",
	"Handle potential ambiguities in the invoice format, such as multiple pages belonging to the same invoice, by ensuring that invoice details are correctly aggregated.",
	"Match all particulars from the extracted OCR data with the provided JSON schema and return structured data.",
	"The JSON schema specifies the particulars and data types for accurate comprehension of the extracted OCR data.",
	"Respond only with the structured data in JSON format as per the schema. Do not include any explanations.",
}

// BuildPrompt assembles the single prompt for one page: preamble, the
// schema serialized verbatim, then the page's concatenated OCR text.
func BuildPrompt(schemaJSON []byte, pageText string) string {
	var b strings.Builder
	b.WriteString(strings.Join(preamble, "\n"))
	b.WriteString("\n\nUse the provided JSON Schema as a reference for the expected structure of the extracted information. The schema is as follows:\n")
	b.Write(schemaJSON)
	b.WriteString("\n\nExtracted Text:\n")
	b.WriteString(pageText)
	return b.String()
}
