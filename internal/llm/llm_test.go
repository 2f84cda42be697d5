package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"google.golang.org/genai"

	"codeprompt/internal/config"
)

type stubClient struct {
	name    string
	prompts []string
	schemas []*Schema
	answer  map[string]any
	sawDL   bool
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) Query(ctx context.Context, prompt string, schema *Schema) (map[string]any, error) {
	_, s.sawDL = ctx.Deadline()
	s.prompts = append(s.prompts, prompt)
	s.schemas = append(s.schemas, schema)
	return s.answer, nil
}

func stubFactory(c *stubClient, calls *int) Factory {
	return func(ctx context.Context, apiKey, model string) (Client, error) {
		*calls++
		return c, nil
	}
}

func TestSchemaFromSample(t *testing.T) {
	s := SchemaFromSample(map[string]any{
		"name":   "x",
		"count":  1,
		"ratio":  0.5,
		"ok":     true,
		"meta":   map[string]any{},
		"tags":   []string{},
		"nested": map[string]int{},
		"other":  struct{}{},
	})

	assert.Equal(t, map[string]FieldType{
		"name":   FieldString,
		"count":  FieldInteger,
		"ratio":  FieldNumber,
		"ok":     FieldBoolean,
		"meta":   FieldObject,
		"tags":   FieldArray,
		"nested": FieldObject,
		"other":  FieldString,
	}, s.Fields)
	assert.Equal(t, []string{"count", "meta", "name", "nested", "ok", "other", "ratio", "tags"}, s.FieldNames())
}

func TestSchemaValidate(t *testing.T) {
	s := SchemaFromSample(map[string]any{"name": "x", "count": 1, "ratio": 1.5, "tags": []any{}})

	assert.NoError(t, s.Validate(map[string]any{
		"name": "y", "count": float64(3), "ratio": 2, "tags": []any{"a"}, "extra": true,
	}))

	err := s.Validate(map[string]any{"name": 5, "count": 2.5, "ratio": "no"})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
	assert.Contains(t, err.Error(), "tags: field required")
	assert.Contains(t, err.Error(), "name: expected string")
}

func TestSchemaToGenAI(t *testing.T) {
	g := SchemaFromSample(map[string]any{"a": "x", "b": []int{}}).ToGenAI()

	assert.Equal(t, genai.TypeObject, g.Type)
	assert.Equal(t, []string{"a", "b"}, g.Required)
	assert.Equal(t, genai.TypeString, g.Properties["a"].Type)
	assert.Equal(t, genai.TypeArray, g.Properties["b"].Type)
	require.NotNil(t, g.Properties["b"].Items)
	assert.Equal(t, genai.TypeInteger, g.Properties["b"].Items.Type)
}

func TestSchemaArrayItems(t *testing.T) {
	s := SchemaFromSample(map[string]any{
		"scores": []int{1},
		"flags":  []any{true},
		"tags":   []any{},
	})
	assert.Equal(t, map[string]FieldType{"scores": FieldInteger, "flags": FieldBoolean, "tags": FieldString}, s.Items)

	g := s.ToGenAI()
	assert.Equal(t, genai.TypeInteger, g.Properties["scores"].Items.Type)
	assert.Equal(t, genai.TypeBoolean, g.Properties["flags"].Items.Type)
	assert.Equal(t, genai.TypeString, g.Properties["tags"].Items.Type)

	ok := map[string]any{"scores": []any{float64(3)}, "flags": []any{false}, "tags": []any{"x"}}
	assert.NoError(t, s.Validate(ok))

	bad := map[string]any{"scores": []any{"3"}, "flags": []any{false}, "tags": []any{}}
	assert.ErrorContains(t, s.Validate(bad), "scores[0]: expected integer")
}

func TestDecodeObject(t *testing.T) {
	out, err := decodeObject("```json\n{\"a\": 1}\n```", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, out)

	_, err = decodeObject("not json", nil)
	assert.Error(t, err)

	_, err = decodeObject(`{"a": "x"}`, SchemaFromSample(map[string]any{"a": 1}))
	assert.ErrorContains(t, err, "does not match schema")
}

func TestNopClient(t *testing.T) {
	out, err := NopClient{}.Query(context.Background(), "anything", nil)
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), "", "")
	assert.Error(t, err)
}

func TestRegistry_SetLLMAPI(t *testing.T) {
	r := NewRegistry(config.LLMConfig{}, 0)

	assert.True(t, r.SetLLMAPI("ANTHROPIC", "a-key"))
	assert.True(t, r.SetLLMAPI("groq", "g-key"))
	assert.False(t, r.SetLLMAPI("MISTRAL", "m-key"))

	assert.Equal(t, "a-key", r.Key("ANTHROPIC"))
	assert.Equal(t, "g-key", r.Key("GROQ"))
	assert.Equal(t, "", r.Key("MISTRAL"))
}

func TestRegistry_FallsBackToNop(t *testing.T) {
	r := NewRegistry(config.LLMConfig{Preferences: []string{"OPENAI"}, OpenAIKey: "k"}, 0)

	c, err := r.Client(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "nop", c.Name(), "OPENAI has a key but no factory")

	out, err := r.QueryLLM(context.Background(), "q", nil)
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestRegistry_PreferenceOrder(t *testing.T) {
	first := &stubClient{name: "first", answer: map[string]any{"from": "first"}}
	second := &stubClient{name: "second", answer: map[string]any{"from": "second"}}
	var firstCalls, secondCalls int

	r := NewRegistry(config.LLMConfig{Preferences: []string{"openai", "groq"}}, time.Minute)
	r.RegisterFactory("OPENAI", stubFactory(first, &firstCalls))
	r.RegisterFactory("GROQ", stubFactory(second, &secondCalls))
	r.SetLLMAPI("GROQ", "g")

	out, err := r.QueryLLM(context.Background(), "q1", map[string]any{"from": ""})
	require.NoError(t, err)
	assert.Equal(t, "second", out["from"])
	require.NotNil(t, second.schemas[0])
	assert.Equal(t, FieldString, second.schemas[0].Fields["from"])
	assert.True(t, second.sawDL, "registry timeout should apply")

	r.SetLLMAPI("OPENAI", "o")
	out, err = r.QueryLLM(context.Background(), "q2", nil)
	require.NoError(t, err)
	assert.Equal(t, "first", out["from"])

	_, err = r.QueryLLM(context.Background(), "q3", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, firstCalls, "clients are cached")

	r.SetModelPreferences([]string{"GROQ", "OPENAI"})
	assert.Equal(t, []string{"GROQ", "OPENAI"}, r.Preferences())
	out, err = r.QueryLLM(context.Background(), "q4", nil)
	require.NoError(t, err)
	assert.Equal(t, "second", out["from"])
}

func TestRegistry_QueryContext(t *testing.T) {
	c := &stubClient{name: "stub", answer: map[string]any{"ok": true}}
	var calls int
	r := NewRegistry(config.LLMConfig{Preferences: []string{"GEMINI"}}, 0)
	r.RegisterFactory("GROQ", stubFactory(c, &calls))
	r.SetLLMAPI("GROQ", "g")

	_, err := r.QueryContext(context.Background(), "question", nil, map[string]any{
		"context":  "background",
		"provider": "groq",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"background\n\nquestion"}, c.prompts)

	_, err = r.QueryContext(context.Background(), "q", nil, map[string]any{"provider": "anthropic"})
	assert.Error(t, err)
}

func TestRegistry_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry(config.LLMConfig{Preferences: []string{"GROQ"}, GroqKey: "g"}, 0)
	r.RegisterFactory("GROQ", func(ctx context.Context, apiKey, model string) (Client, error) {
		return nil, boom
	})

	_, err := r.QueryLLM(context.Background(), "q", nil)
	assert.ErrorIs(t, err, boom)
}
