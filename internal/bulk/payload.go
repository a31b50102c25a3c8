// Package bulk drives large price batches through the platform's asynchronous
// bulk-operation protocol: stage an upload, upload a JSONL variables file, submit
// the mutation, poll, and parse the line-delimited result file.
package bulk

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"b2b-pricing/internal/model"
)

// =============================================================================
// PAYLOAD BUILDER
// =============================================================================
//
// A bulk mutation runs the same GraphQL mutation once per line of an uploaded
// JSONL file. Each line holds the variables of one productVariantsBulkUpdate
// call, so updates are grouped by product and a product appears on one line only.
//
// Example payload:
//
//	{"productId":"gid://shopify/Product/1","variants":[{"id":"gid://shopify/ProductVariant/11","price":"9.5"}]}
//	{"productId":"gid://shopify/Product/2","variants":[{"id":"gid://shopify/ProductVariant/21","compareAtPrice":null}]}
//
// =============================================================================

// ProductBatch is the set of admitted operations that touch one product.
type ProductBatch struct {
	ProductID  string
	Operations []model.ClassifiedOperation
}

// Update converts the batch into mutation variables.
func (b *ProductBatch) Update(field model.SpecialPriceField) model.ProductUpdate {
	update := model.ProductUpdate{
		ProductID: b.ProductID,
		Variants:  make([]model.VariantUpdate, 0, len(b.Operations)),
	}
	for i := range b.Operations {
		update.Variants = append(update.Variants, b.Operations[i].Update(field))
	}
	return update
}

// GroupByProduct groups operations by product, keeping first-seen product order
// and batch order within each product.
func GroupByProduct(ops []model.ClassifiedOperation) []ProductBatch {
	index := make(map[string]int)
	var batches []ProductBatch
	for _, op := range ops {
		i, ok := index[op.ProductID]
		if !ok {
			i = len(batches)
			index[op.ProductID] = i
			batches = append(batches, ProductBatch{ProductID: op.ProductID})
		}
		batches[i].Operations = append(batches[i].Operations, op)
	}
	return batches
}

// PayloadBuilder assembles the JSONL variables file.
// Uses fluent API pattern for readability.
type PayloadBuilder struct {
	field model.SpecialPriceField
	lines []model.ProductUpdate
}

// NewPayload creates a new payload builder writing special prices to field.
func NewPayload(field model.SpecialPriceField) *PayloadBuilder {
	return &PayloadBuilder{
		field: field,
		lines: make([]model.ProductUpdate, 0),
	}
}

// AddBatch appends one product line.
func (p *PayloadBuilder) AddBatch(batch ProductBatch) *PayloadBuilder {
	if len(batch.Operations) == 0 {
		return p
	}
	p.lines = append(p.lines, batch.Update(p.field))
	return p
}

// AddBatches appends one line per product batch.
func (p *PayloadBuilder) AddBatches(batches []ProductBatch) *PayloadBuilder {
	for _, b := range batches {
		p.AddBatch(b)
	}
	return p
}

// HasLines returns true if the payload would upload at least one line.
func (p *PayloadBuilder) HasLines() bool {
	return len(p.lines) > 0
}

// LineCount returns the number of mutation calls the payload will produce.
func (p *PayloadBuilder) LineCount() int {
	return len(p.lines)
}

// Build serializes the payload, one JSON object per line.
func (p *PayloadBuilder) Build() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, line := range p.lines {
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("encoding line %d (%s): %w", i, line.ProductID, err)
		}
	}
	return buf.Bytes(), nil
}

// =============================================================================
// RESULT PARSING
// =============================================================================

// resultLine is one line of a bulk mutation result file. The platform nests the
// mutation payload under "data"; the top-level form is also accepted.
type resultLine struct {
	Data       map[string]json.RawMessage `json:"data"`
	LineNumber *int                       `json:"__lineNumber"`
	Mutation   *mutationResult            `json:"productVariantsBulkUpdate"`
}

type mutationResult struct {
	UserErrors []model.UserError `json:"userErrors"`
}

// ParseResults reads a result file and returns the first user error message of
// every line that reported one. Blank and unparsable lines are skipped.
func ParseResults(r io.Reader) ([]string, error) {
	var messages []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var line resultLine
		if err := json.Unmarshal(raw, &line); err != nil {
			continue
		}

		result := line.Mutation
		if result == nil {
			if nested, ok := line.Data[mutationName]; ok {
				result = &mutationResult{}
				if err := json.Unmarshal(nested, result); err != nil {
					continue
				}
			}
		}
		if result == nil || len(result.UserErrors) == 0 {
			continue
		}

		msg := result.UserErrors[0].Message
		if line.LineNumber != nil {
			msg = fmt.Sprintf("line %d: %s", *line.LineNumber+1, msg)
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return messages, fmt.Errorf("reading bulk results: %w", err)
	}
	return messages, nil
}
