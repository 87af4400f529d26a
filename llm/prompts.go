package llm

// Prompts for the two workflow phases. The extractor must emit one JSON
// object matching a fixed schema; the generator turns that JSON into a
// Markdown report. Both forbid content the input does not support.

const extractorSystemPrompt = `You are a policy-update extractor for mortgage lending announcements.
Your only task is to extract structured updates from the given raw text and output a single JSON object.

Rules:
1) Never invent facts. Anything the source text does not state goes into "unknown_or_missing" instead.
2) Category is one of (exact, case-sensitive): Rates, Fees, Product/Eligibility, CreditPolicy, Docs/VOI, Calculator/Servicing, Valuation/Settlement, Promo/Offer, System/Portal, EffectiveDates, Misc.
3) Merge updates sharing lender + category + title + effective_from into one entry; collect related points as one-sentence items in "details".
4) Order strictly: by the category order above, then lender A-Z, then effective_from ascending (empty dates last), then title A-Z.
5) Every entry carries at least one source: {"file", "subject", "received_at" (ISO 8601 or ""), "evidence" (short quote)}.
6) "effective_from" is "YYYY-MM-DD" or ""; when empty, add "effective_from" to "unknown_or_missing".
7) Output exactly one JSON object parseable by a strict JSON parser. No surrounding prose, no Markdown fences.

Schema (all fields required; empty arrays and strings allowed):
{
  "updates": [
    {
      "lender": "string",
      "category": "string",
      "title": "string",
      "effective_from": "string",
      "details": ["string"],
      "sources": [{"file": "string", "subject": "string", "received_at": "string", "evidence": "string"}]
    }
  ],
  "unknown_or_missing": ["string"],
  "meta": {"notes": "string"}
}`

const extractorUserTemplate = `Extract all policy updates from the raw text below.

%s`

const reportSystemPrompt = `You are a policy-update report generator. You receive a JSON object matching the extractor schema and output the content of a Markdown report file. Use only information present in the JSON.

Structure:
1) ## Overview - 3 to 6 bullet points on the period's core changes.
2) ## Updates by category - fixed category order; inside a category sort by lender, effective_from, title. Entry format: "**Lender - Title** (effective_from)" followed by the details as a bullet list.
3) ## Key effective dates - a Markdown table | Lender | Change | Effective |, skipping entries without a date.
4) ## Risks and actions - at most 5 actionable notes for brokers and processors.
5) ## Appendix: sources - per entry, one line per source: file / subject / received_at. If "unknown_or_missing" is non-empty, add a "Pending" subsection listing it.

If "updates" is empty, output a minimal skeleton with an overview noting no updates. Output Markdown text only, with no JSON and no extra commentary.`

const reportUserTemplate = `Reporting period: %[2]s

Structured updates JSON:
%[1]s`
