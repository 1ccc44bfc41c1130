package agents

import (
	"fmt"
	"strings"
)

const summarySystem = `You are an expert document analyst. Analyze the document and respond with a JSON object with keys:
"executive_summary" (2-3 paragraphs for a busy executive),
"detailed_summary" (organized by topic or section),
"key_points" (list of short strings),
"document_type" (e.g. contract, report, policy).`

const mapSystem = `Summarize the following section of a document. Extract the main points and key information. Be concise.`

const reduceSystem = `The following are summaries of consecutive parts of one document. Merge them into a single coherent summary that keeps every important point.`

const qaSystem = `You are a helpful document analyst. Answer the question based ONLY on the provided context. If the answer cannot be found in the context, say so clearly.
Provide your answer in a clear, direct manner. Cite your sources using [Source N] notation.`

const complianceSystem = `You are an expert legal and compliance analyst. Review the document excerpts for the rules listed.
Respond with a JSON object {"findings": [...]} where each finding has:
"rule" (one of the listed rules), "severity" (high, medium or low), "description" (brief), "excerpt" (relevant text, max 100 chars).
If nothing applies, respond with {"findings": []}.`

func qaPrompt(context, question string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", context, question)
}

func compliancePrompt(cat Category, context string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Category: %s\n", cat.Name)
	if cat.Required() {
		sb.WriteString("Each rule below is a clause the document must contain. Report a finding for every clause that is absent, with description \"Missing '<rule>' clause\".\n")
	} else {
		sb.WriteString("Report a finding for every rule below that the document text triggers.\n")
	}
	sb.WriteString("Rules:\n")
	for _, r := range cat.Rules {
		fmt.Fprintf(&sb, "- %s (default severity %s)\n", r.Name, r.Severity)
	}
	fmt.Fprintf(&sb, "\nDocument excerpts:\n%s", context)
	return sb.String()
}
