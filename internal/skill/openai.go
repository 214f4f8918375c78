package skill

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"videogenie/internal/pkg/errors"
	"videogenie/internal/ports"
)

// SlideDeck is the structured result of generate-slides.
type SlideDeck struct {
	Slides []Slide `json:"slides" jsonschema_description:"Slides in presentation order, one idea per slide."`
}

type Slide struct {
	Title   string   `json:"title" jsonschema_description:"Short slide heading."`
	Bullets []string `json:"bullets" jsonschema_description:"Two to five short bullet points."`
}

var slideDeckSchema = generateSchema[SlideDeck]()

func generateSchema[T any]() any {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return r.Reflect(v)
}

const (
	rewritePrompt = "You rewrite presentation narration for a talking-head video. " +
		"Keep the meaning, fix pacing and pronunciation, spell out numbers and acronyms. " +
		"Return only the rewritten script as plain text."
	slidesPrompt = "You turn a narration script into presentation slides. " +
		"Produce one slide per idea with a short title and a few bullets."
)

// OpenAIInvoker implements the two enrichment skills with chat completions.
// rewrite-script returns a JSON string, generate-slides a SlideDeck object.
type OpenAIInvoker struct {
	client openai.Client
	model  string
}

func NewOpenAIInvoker(apiKey, model string, timeout time.Duration, opts ...option.RequestOption) *OpenAIInvoker {
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	base := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(1)}
	if timeout > 0 {
		base = append(base, option.WithRequestTimeout(timeout))
	}
	return &OpenAIInvoker{
		client: openai.NewClient(append(base, opts...)...),
		model:  model,
	}
}

func (o *OpenAIInvoker) Invoke(ctx context.Context, skill string, params map[string]any) (json.RawMessage, error) {
	text, _ := params["text"].(string)
	if text == "" {
		return nil, errors.ValidationField("text", "skill params need text")
	}

	switch skill {
	case ports.SkillRewriteScript:
		content, err := o.complete(ctx, skill, rewritePrompt, text, nil)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(content)
		if err != nil {
			return nil, errors.Wrap(err, "skill.invoke", "encode script")
		}
		return raw, nil

	case ports.SkillGenerateSlides:
		format := &openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "slide_deck",
					Description: openai.String("Slides for the narration"),
					Schema:      slideDeckSchema,
					Strict:      openai.Bool(true),
				},
			},
		}
		content, err := o.complete(ctx, skill, slidesPrompt, text, format)
		if err != nil {
			return nil, err
		}
		var deck SlideDeck
		if err := json.Unmarshal([]byte(content), &deck); err != nil {
			return nil, errors.MalformedResponse(skill, "slides are not valid JSON")
		}
		return json.RawMessage(content), nil

	default:
		return nil, errors.UpstreamSkill(skill, fmt.Errorf("skill not supported by openai provider"))
	}
}

func (o *OpenAIInvoker) complete(ctx context.Context, skill, system, user string, format *openai.ChatCompletionNewParamsResponseFormatUnion) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       o.model,
		Temperature: openai.Float(0.2),
	}
	if format != nil {
		params.ResponseFormat = *format
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", errors.UpstreamSkill(skill, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.MalformedResponse(skill, "completion has no content")
	}
	return resp.Choices[0].Message.Content, nil
}
