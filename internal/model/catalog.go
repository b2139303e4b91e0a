package model

// ModelOption describes one selectable model in the picker.
type ModelOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DefaultModel is used when a conversation does not specify one.
const DefaultModel = "google/gemini-2.5-flash-lite"

// AvailableModels lists the models the gateway accepts.
var AvailableModels = []ModelOption{
	{ID: "google/gemini-2.5-flash-lite", Name: "Gemini Flash Lite", Description: "Fastest & cheapest model"},
	{ID: "google/gemini-2.5-flash", Name: "Gemini 2.5 Flash", Description: "Balanced speed and capability"},
	{ID: "google/gemini-2.5-pro", Name: "Gemini 2.5 Pro", Description: "Advanced reasoning and multimodal"},
	{ID: "openai/gpt-5-nano", Name: "GPT-5 Nano", Description: "Efficient and fast"},
	{ID: "openai/gpt-5-mini", Name: "GPT-5 Mini", Description: "Fast with strong reasoning"},
	{ID: "openai/gpt-5", Name: "GPT-5", Description: "Powerful all-rounder model"},
}
