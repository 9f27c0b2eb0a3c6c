// Package openaicompat implements llm.Provider over the OpenAI Chat
// Completions wire format.
//
// The same client talks to OpenAI directly or to any compatible gateway;
// OpenRouter is the default:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "openrouter",
//	    APIKey:       os.Getenv("OPENROUTER_API_KEY"),
//	    BaseURL:      "https://openrouter.ai/api",
//	    DefaultModel: "openai/gpt-4o-2024-11-20",
//	}, logger)
package openaicompat
