package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Alserial/VoiceRAG/internal/models"
	"github.com/Alserial/VoiceRAG/internal/providers/llm"
	"github.com/Alserial/VoiceRAG/internal/quote"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

// ProductCatalog is the slice of the product service the extraction tools need.
type ProductCatalog interface {
	Products(ctx context.Context) ([]models.Product, error)
}

const quoteExtractionSystem = "You are a helpful assistant that extracts structured information from conversations. " +
	"Always return valid JSON only."

func quoteExtractionPrompt(transcript, productList string) string {
	return `Extract quote information from the following conversation.
Return a JSON object with the following fields:
- customer_name: Customer's name (if mentioned)
- contact_info: Email address or phone number (if mentioned)
- quote_items: Array of {"product_package": string, "quantity": number} for each product mentioned
- expected_start_date: Expected start date in format YYYY-MM-DD (if mentioned)
- notes: Any additional notes or requirements mentioned

Available products: ` + productList + `

Conversation:
` + transcript + `

Return ONLY a valid JSON object, no other text. If a field is not found, use null for that field.`
}

// NewExtractQuoteTool builds the quote slot-filling evaluator. Each call
// re-reads the conversation, merges what it finds into the session draft and
// reports the draft state. Complete drafts go to the client for confirmation;
// incomplete ones go back to the model so it can ask for what is missing.
func NewExtractQuoteTool(provider llm.Provider, catalog ProductCatalog, log *logrus.Entry) Tool {
	return Tool{
		Name: "extract_quote_info",
		Description: "Extract quote information from the conversation when user requests a quote. Use this tool " +
			"when the user mentions needing a quote, quotation, or price estimate.",
		Handler: func(ctx context.Context, inv Invocation) (Result, error) {
			const op = "tools.extract_quote_info"

			if inv.State == nil {
				return Result{}, utils.E(utils.CodeInternal, op, "no session state", nil)
			}
			if strings.TrimSpace(inv.Transcript) == "" {
				return Result{}, utils.E(utils.CodeInvalidArgument, op, "empty conversation", nil)
			}

			products, err := catalog.Products(ctx)
			if err != nil {
				log.WithError(err).Warn("product catalog unavailable during extraction")
				products = nil
			}
			productNames := make([]string, 0, len(products))
			for _, p := range products {
				productNames = append(productNames, p.Name)
			}

			extraction := extractQuote(ctx, provider, inv.Transcript, productNames, log)

			var unmatched []string
			extraction.Items, unmatched = quote.NormalizeItems(extraction.Items, products)

			draft, status := inv.State.UpdateQuote(extraction)
			missing := draft.MissingFields()

			result := map[string]interface{}{
				"extracted":          draft,
				"missing_fields":     missing,
				"is_complete":        status == quote.StatusComplete,
				"products_available": productNames,
			}
			if len(unmatched) > 0 {
				result["unmatched_products"] = unmatched
			}

			if status == quote.StatusComplete {
				result["status"] = "complete"
				result["message"] = "I have all the information. Please review and confirm to send the quote."
				result["quote_data"] = draft
				return JSONResult(result, ToClient), nil
			}

			result["status"] = "incomplete"
			questions := missingFieldQuestions(missing, productNames)
			result["questions"] = questions
			result["message"] = "I need some additional information: " + strings.Join(questions, " ")
			return JSONResult(result, ToServer), nil
		},
	}
}

func missingFieldQuestions(missing, productNames []string) []string {
	var questions []string
	for _, field := range missing {
		switch field {
		case "customer_name":
			questions = append(questions, "What is your name?")
		case "contact_info":
			questions = append(questions, "What is your email address?")
		case "quote_items":
			if len(productNames) > 0 {
				max := len(productNames)
				if max > 5 {
					max = 5
				}
				questions = append(questions,
					fmt.Sprintf("Which product are you interested in, and what quantity? Available products: %s",
						strings.Join(productNames[:max], ", ")))
			} else {
				questions = append(questions, "Which product are you interested in, and what quantity?")
			}
		case "expected_start_date":
			questions = append(questions, "When would you like the service to start?")
		}
	}
	return questions
}

// extractQuote asks the model for a structured extraction, falling back to
// keyword heuristics when no model is configured.
func extractQuote(ctx context.Context, provider llm.Provider, transcript string, productNames []string, log *logrus.Entry) quote.Extraction {
	productList := "No products available"
	if len(productNames) > 0 {
		productList = strings.Join(productNames, ", ")
	}

	raw, err := provider.ExtractJSON(ctx, quoteExtractionSystem, quoteExtractionPrompt(transcript, productList))
	if err != nil {
		if !utils.IsCode(err, utils.CodeUnavailable) {
			log.WithError(err).Warn("llm extraction failed, using heuristics")
		}
		return heuristicQuoteExtraction(transcript, productNames)
	}

	var e quote.Extraction
	if err := json.Unmarshal(raw, &e); err != nil {
		log.WithError(err).Warn("could not decode extraction, using heuristics")
		return heuristicQuoteExtraction(transcript, productNames)
	}
	return e
}

func heuristicQuoteExtraction(transcript string, productNames []string) quote.Extraction {
	var e quote.Extraction

	if email := findEmail(transcript); email != "" {
		e.ContactInfo = &email
	}
	if name := findSpokenName(transcript); name != "" {
		e.CustomerName = &name
	}
	if date := findStartDate(transcript); date != "" {
		e.ExpectedStartDate = &date
	}

	lower := strings.ToLower(transcript)
	for _, product := range productNames {
		if product == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(product)) {
			qty := findQuantityNear(transcript, product)
			e.Items = append(e.Items, quote.Item{ProductPackage: product, Quantity: qty})
		}
	}
	return e
}
