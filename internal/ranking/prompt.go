package ranking

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultPrompt is the role text used when a tenant has no custom prompt.
const DefaultPrompt = `You are an expert media buyer analyzing products for a programmatic advertising campaign.`

const instructions = `Your task:
1. Analyze each product's relevance to the campaign brief
2. Consider targeting capabilities, format compatibility, and pricing
3. Score every product between 0.0 and 1.0

Response format (JSON only):
{
  "products": [
    {
      "product_id": "product_id_here",
      "relevance_score": 0.95,
      "reasoning": "Why this product is relevant"
    }
  ]
}

Focus on:
- Targeting alignment with brief requirements
- Format suitability for campaign goals
- Pricing compatibility with budget
- Delivery type appropriateness

Return ONLY the JSON response, no additional text.`

type promptProduct struct {
	ID           string                 `json:"product_id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	DeliveryType string                 `json:"delivery_type,omitempty"`
	PriceCPM     float64                `json:"price_cpm,omitempty"`
	Formats      []string               `json:"formats,omitempty"`
	Targeting    map[string]interface{} `json:"targeting,omitempty"`
}

// BuildPrompt renders one scoring batch as model input.
func BuildPrompt(req BatchRequest) (string, error) {
	role := strings.TrimSpace(req.Prompt)
	if role == "" {
		role = DefaultPrompt
	}
	products := make([]promptProduct, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		products = append(products, promptProduct{
			ID: c.ID, Name: c.Name, Description: c.Description,
			DeliveryType: c.DeliveryType, PriceCPM: c.PriceCPM,
			Formats: c.Formats, Targeting: c.Targeting,
		})
	}
	raw, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(role)
	b.WriteString("\n\nCampaign Brief: ")
	b.WriteString(req.Brief)
	if len(req.Snippets) > 0 {
		b.WriteString("\n\nRecent market context:\n")
		for _, s := range req.Snippets {
			b.WriteString("- ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n\nAvailable Products:\n")
	b.Write(raw)
	b.WriteString("\n\n")
	b.WriteString(instructions)
	return b.String(), nil
}

type judgementEnvelope struct {
	Products []struct {
		ProductID json.RawMessage `json:"product_id"`
		Score     *float64        `json:"relevance_score"`
		Reasoning string          `json:"reasoning"`
	} `json:"products"`
}

// ParseJudgements decodes model output, tolerating markdown code fences and
// numeric product ids. A missing relevance_score counts as 0.5.
func ParseJudgements(text string) ([]Judgement, error) {
	text = stripFences(text)
	var env judgementEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, fmt.Errorf("invalid scoring response: %w", err)
	}
	out := make([]Judgement, 0, len(env.Products))
	for _, p := range env.Products {
		id := strings.Trim(strings.TrimSpace(string(p.ProductID)), `"`)
		if id == "" || id == "null" {
			continue
		}
		score := 0.5
		if p.Score != nil {
			score = *p.Score
		}
		out = append(out, Judgement{ProductID: id, Score: score, Rationale: strings.TrimSpace(p.Reasoning)})
	}
	return out, nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(text, '\n'); i >= 0 && !strings.ContainsAny(text[:i], "{[") {
		text = text[i+1:]
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
