package pipeline

const descriptionPrompt = `
You are an appraiser's assistant for used musical instruments. Look at the
photo and describe the instrument in it. Return ONLY valid JSON with this
schema:
{
  "category": string,
  "brand": string,
  "model": string,
  "year": string or null,
  "condition": string,
  "materials": string[],
  "features": string[],
  "notes": string
}
Rules:
- Use an empty string or empty array for anything you cannot determine.
- condition is a short phrase describing visible wear and damage.
- notes holds anything price-relevant that fits nowhere else.
`

const pricingPrompt = `
You are a pricing analyst for used musical instruments. Given a target instrument
summary and a set of retrieved reference records, estimate a fair market price
in JPY. Return ONLY valid JSON with this schema:
{
  "price_jpy": integer,
  "range_jpy": [integer, integer],
  "confidence": number,
  "rationale": string,
  "evidence": string[]
}
Rules:
- confidence is between 0 and 1.
- range_jpy must include price_jpy and be ordered low to high.
- rationale and evidence must be in Japanese.
- If references are thin, lower confidence and say so.
`
