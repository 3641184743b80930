package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/isaac-evs/safeway-etl/internal/config"
	"github.com/isaac-evs/safeway-etl/internal/domain"
	"github.com/isaac-evs/safeway-etl/internal/ports"
)

const (
	anthropicVersion = "bedrock-2023-05-31"
	maxTokens        = 20
	temperature      = 0.5

	// fallbackCategory keeps the pipeline moving when the inference backend
	// is unreachable, at the cost of occasional mis-categorization. Deliberate
	// trade-off: a flaky backend must not stall ingestion.
	fallbackCategory = domain.CategorySocial

	// fallbackLocation is the country-level default applied when extraction
	// fails in transport. Extraction failure is recoverable; only the
	// sentinel "no location" answer discards an article.
	fallbackLocation = "Mexico"

	noLocationSentinel = "no_location"
)

const classifySystemPrompt = `You are an expert in analyzing Spanish news articles from Mexico. Your task is to categorize news articles.

You MUST only respond with one of these exact words:
- crime: for crime-related news
- infrastructure: for infrastructure-related news
- hazard: for weather alerts, fires, natural disasters
- social: for political unrest, protests, social events
- DISCARD: if the article doesn't fit any category

IMPORTANT: You must ONLY return one of these exact words: crime, infrastructure, hazard, social, or DISCARD.
No explanation, no additional text, no Spanish translations. Only one word from the specified list.`

const extractSystemPrompt = `You are an expert in analyzing Spanish news articles from Mexico. Your task is to extract the most specific location mentioned.

Return ONLY the location name with NO explanation or additional text.`

// Client drives an Anthropic-messages inference endpoint for article
// classification and location extraction.
type Client struct {
	endpoint string
	modelID  string
	apiKey   string
	http     *http.Client
	logger   *slog.Logger
}

var _ ports.Classifier = (*Client)(nil)

// NewClient builds a classifier from configuration. The http.Client is shared
// across workers; it holds no per-call state beyond connection pooling.
func NewClient(cfg config.InferenceConfig, logger *slog.Logger) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		modelID:  cfg.ModelID,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

// Classify sends one inference request and maps the completion onto the fixed
// category set. A transport or parse failure substitutes the fallback category
// rather than failing the call; an unrecognized completion (including the
// explicit DISCARD answer) returns ok=false.
func (c *Client) Classify(ctx context.Context, article *domain.Article) (domain.Category, bool) {
	userMessage := fmt.Sprintf(`Analiza y clasifica el siguiente artículo de noticias en español:

Título: %s
Contenido: %s

Responde SOLAMENTE con una de estas palabras exactas:
- crime (para delitos, crímenes, inseguridad)
- infrastructure (para infraestructura, construcciones)
- hazard (para alertas meteorológicas, incendios, desastres naturales)
- social (para disturbios políticos, protestas, eventos sociales)
- DISCARD (si no encaja en ninguna categoría)`, article.Title, article.Description)

	completion, err := c.invoke(ctx, classifySystemPrompt, userMessage)
	if err != nil {
		c.warn("classification call failed, using fallback category",
			"title", article.Title, "error", err)
		return fallbackCategory, true
	}

	category, ok := domain.ParseCategory(completion)
	if !ok {
		c.debug("article discarded, invalid category", "title", article.Title, "raw", completion)
		return "", false
	}
	return category, true
}

// ExtractLocation sends one inference request for the most specific place
// mentioned. The sentinel or an empty completion yields LocationNone; a
// transport failure yields the country-level fallback so processing
// continues; anything else is country-scoped by appending ", Mexico" when
// the text does not already mention the country.
func (c *Client) ExtractLocation(ctx context.Context, article *domain.Article) domain.LocationResult {
	userMessage := fmt.Sprintf(`Extrae la ubicación más específica mencionada en este artículo, puedes deducirlo si no trae explicitamente:

Título: %s
Contenido: %s

Responde SOLAMENTE con el nombre de la ubicación, en cuanto más exacto mejor.

Ejemplo:

Calle Zamora, Colonia Condesa, Ciudad de Mexico

Si es internacional o no hay ubicación mexicana clara, responde exactamente con "NO_LOCATION".`, article.Title, article.Description)

	completion, err := c.invoke(ctx, extractSystemPrompt, userMessage)
	if err != nil {
		c.warn("location extraction call failed, using country fallback",
			"title", article.Title, "error", err)
		return domain.LocationResult{Kind: domain.LocationFallback, Value: fallbackLocation}
	}

	location := strings.TrimSpace(completion)
	if location == "" || isSentinel(location) {
		return domain.LocationResult{Kind: domain.LocationNone}
	}

	lower := strings.ToLower(location)
	if !strings.Contains(lower, "mexico") && !strings.Contains(lower, "méxico") {
		location += ", Mexico"
	}
	return domain.LocationResult{Kind: domain.LocationFound, Value: location}
}

func isSentinel(location string) bool {
	normalized := strings.ToLower(strings.TrimSpace(location))
	normalized = strings.Trim(normalized, `"'.`)
	return normalized == noLocationSentinel || normalized == "no location"
}

type invokeRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	System           string    `json:"system"`
	Messages         []message `json:"messages"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type invokeResponse struct {
	Content []contentBlock `json:"content"`
}

// invoke performs one messages-API call and concatenates the text blocks of
// the completion. Low token budget and temperature: this is classification,
// not generation.
func (c *Client) invoke(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	body, err := json.Marshal(invokeRequest{
		AnthropicVersion: anthropicVersion,
		System:           systemPrompt,
		Messages: []message{
			{Role: "user", Content: []contentBlock{{Type: "text", Text: userMessage}}},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        1.0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/model/%s/invoke", c.endpoint, url.PathEscape(c.modelID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("invoke model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("inference error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	var completion strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			completion.WriteString(block.Text)
		}
	}
	// An empty completion is a semantic outcome, not a transport failure:
	// callers treat it as unparseable (classify) or no-location (extract).
	return strings.TrimSpace(completion.String()), nil
}

func (c *Client) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func (c *Client) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
