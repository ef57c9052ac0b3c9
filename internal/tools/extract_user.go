package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Alserial/VoiceRAG/internal/providers/llm"
	"github.com/Alserial/VoiceRAG/internal/quote"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

func userExtractionPrompt(transcript string) string {
	return `Extract user registration information from the following conversation.
Return a JSON object with the following fields:
- customer_name: The user's name (if mentioned)
- contact_info: The user's email address (if mentioned)

Conversation:
` + transcript + `

Return ONLY a valid JSON object, no other text. If a field is not found, use null for that field.`
}

// NewExtractUserTool builds the registration slot-filling evaluator used at
// the start of every session. Same contract as the quote extractor: complete
// records go to the client for confirmation.
func NewExtractUserTool(provider llm.Provider, log *logrus.Entry) Tool {
	return Tool{
		Name: "extract_user_info",
		Description: "Extract the user's name and email address from the conversation for registration. Call this " +
			"after the user provides their name and/or email at the start of the session.",
		Handler: func(ctx context.Context, inv Invocation) (Result, error) {
			const op = "tools.extract_user_info"

			if inv.State == nil {
				return Result{}, utils.E(utils.CodeInternal, op, "no session state", nil)
			}
			if strings.TrimSpace(inv.Transcript) == "" {
				return Result{}, utils.E(utils.CodeInvalidArgument, op, "empty conversation", nil)
			}

			extraction := extractUser(ctx, provider, inv.Transcript, log)
			reg, complete := inv.State.UpdateRegistration(extraction)

			result := map[string]interface{}{
				"extracted":      reg,
				"missing_fields": reg.MissingFields(),
				"is_complete":    complete,
			}
			if complete {
				result["message"] = "Registration information collected. Please review and confirm."
				return JSONResult(result, ToClient), nil
			}
			return JSONResult(result, ToServer), nil
		},
	}
}

func extractUser(ctx context.Context, provider llm.Provider, transcript string, log *logrus.Entry) quote.RegistrationExtraction {
	raw, err := provider.ExtractJSON(ctx, quoteExtractionSystem, userExtractionPrompt(transcript))
	if err != nil {
		if !utils.IsCode(err, utils.CodeUnavailable) {
			log.WithError(err).Warn("llm user extraction failed, using heuristics")
		}
		return heuristicUserExtraction(transcript)
	}

	var e quote.RegistrationExtraction
	if err := json.Unmarshal(raw, &e); err != nil {
		log.WithError(err).Warn("could not decode user extraction, using heuristics")
		return heuristicUserExtraction(transcript)
	}
	return e
}

func heuristicUserExtraction(transcript string) quote.RegistrationExtraction {
	var e quote.RegistrationExtraction
	if email := findEmail(transcript); email != "" {
		e.ContactInfo = &email
	}
	if name := findSpokenName(transcript); name != "" {
		e.CustomerName = &name
	}
	return e
}
