package rag_service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/serisow/sagefemme/models"
	"github.com/serisow/sagefemme/services/llm_service"
)

const (
	baseInstruction = `Tu es un assistant médical spécialisé pour les sages-femmes libérales en France.
Réponds de manière professionnelle, concise et en français.`

	strictInstruction = `Tu es un assistant strict basé EXCLUSIVEMENT sur les documents fournis.
TES RÈGLES :
1. Tu ne dois utiliser QUE les informations contenues dans les documents fournis.
2. Si la réponse à la question n'est pas dans les documents, réponds exactement : "` + NotInDocumentsAnswer + `"
3. N'utilise aucune connaissance externe, même si elle te semble correcte médicalement.
4. Cite les parties des documents pour justifier ta réponse.`

	priorityInstruction = "\nUtilise les documents fournis comme source prioritaire pour ta réponse."

	// NotInDocumentsAnswer is the fixed strict-mode reply when the documents
	// do not cover the question.
	NotInDocumentsAnswer = "Désolé, cette information ne figure pas dans les documents fournis."

	strictTemperature = 0.1
	normalTemperature = 0.7
)

type PatientContext struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Status    string `json:"status"`
	LastVisit string `json:"lastVisit"`
}

type AskRequest struct {
	Question       string
	Strict         bool
	DocumentIDs    []string
	Limit          int
	PatientContext *PatientContext
}

type AskResponse struct {
	Answer  string                `json:"answer"`
	Sources []models.SearchResult `json:"sources"`
}

// Advisor answers a practitioner's question grounded on the stored
// documents.
type Advisor struct {
	retriever  *Retriever
	generation llm_service.LLMService
	model      string
	logger     *slog.Logger
}

func NewAdvisor(retriever *Retriever, generation llm_service.LLMService, model string, logger *slog.Logger) *Advisor {
	return &Advisor{
		retriever:  retriever,
		generation: generation,
		model:      model,
		logger:     logger,
	}
}

func (a *Advisor) IsAvailable() bool {
	return a.generation != nil && a.generation.IsAvailable()
}

func (a *Advisor) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrInvalidQuery
	}
	if !a.IsAvailable() {
		return nil, ErrGenerationUnavailable
	}

	sources, err := a.retriever.Search(ctx, question, req.Limit, req.DocumentIDs)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		a.logger.Warn("Retrieval failed, answering without documents",
			slog.String("error", err.Error()))
		sources = []models.SearchResult{}
	}

	if req.Strict && len(sources) == 0 {
		return &AskResponse{Answer: NotInDocumentsAnswer, Sources: sources}, nil
	}

	temperature := normalTemperature
	if req.Strict {
		temperature = strictTemperature
	}

	config := map[string]interface{}{
		"system_instruction": SystemInstruction(req.Strict, len(sources) > 0),
		"parameters": map[string]interface{}{
			"temperature": temperature,
		},
	}
	if a.model != "" {
		config["model_name"] = a.model
	}

	answer, err := a.generation.CallLLM(ctx, config, BuildPrompt(question, sources, req.PatientContext))
	if err != nil {
		a.logger.Error("Answer generation failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return &AskResponse{Answer: answer, Sources: sources}, nil
}

// SystemInstruction picks the instruction for the answer mode. Strict mode
// only applies when there are documents to be strict about.
func SystemInstruction(strict, hasSources bool) string {
	switch {
	case strict && hasSources:
		return strictInstruction
	case hasSources:
		return baseInstruction + priorityInstruction
	default:
		return baseInstruction
	}
}

// BuildPrompt lays out the patient context, the reference chunks with their
// relevance, then the question.
func BuildPrompt(question string, sources []models.SearchResult, patient *PatientContext) string {
	var b strings.Builder

	if patient != nil {
		fmt.Fprintf(&b, "Contexte patiente: %s %s, %s.\nDernière visite: %s.",
			patient.FirstName, patient.LastName, patient.Status, patient.LastVisit)
	}

	if len(sources) > 0 {
		b.WriteString("\n\nDOCUMENTS DE RÉFÉRENCE:\n")
		for i, s := range sources {
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "--- Document: %s (pertinence: %.1f%%) ---\n%s", s.DocumentName, s.Similarity*100, s.ChunkContent)
		}
	}

	b.WriteString("\n\nQuestion de la sage-femme: ")
	b.WriteString(question)
	return b.String()
}

const insightInstruction = `Tu es un assistant expert pour les sages-femmes libérales.
La sage-femme a double-cliqué sur un terme spécifique : "%s".
Analyse ce terme en fonction du contexte de la patiente (%s).
Indique précisément :
1. Les points de vigilance (risques potentiels).
2. Les examens ou suivis spécifiques à prévoir.
3. Des conseils pratiques pour la consultation.
Réponds de manière concise, sous forme de tirets, sur un ton professionnel.`

// Insight gives a short clinical note on a single term, without retrieval.
func (a *Advisor) Insight(ctx context.Context, term string, patient *PatientContext) (string, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return "", ErrInvalidQuery
	}
	if !a.IsAvailable() {
		return "", ErrGenerationUnavailable
	}

	patientDescription := "aucune patiente sélectionnée"
	if patient != nil {
		patientDescription = fmt.Sprintf("%s %s, Statut: %s", patient.FirstName, patient.LastName, patient.Status)
	}

	config := map[string]interface{}{
		"system_instruction": fmt.Sprintf(insightInstruction, term, patientDescription),
		"parameters": map[string]interface{}{
			"temperature": 0.2,
		},
	}
	if a.model != "" {
		config["model_name"] = a.model
	}

	answer, err := a.generation.CallLLM(ctx, config, "Analyse clinique rapide pour : "+term)
	if err != nil {
		a.logger.Error("Clinical insight generation failed",
			slog.String("term", term),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("failed to generate insight: %w", err)
	}
	return answer, nil
}
