// Command llmtest exercises the configured completion providers with a short
// Portuguese booking conversation, for verifying credentials and latency
// before deploying.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	appconfig "github.com/darkking4096/odonto/internal/config"
	"github.com/darkking4096/odonto/internal/llm"
	"github.com/darkking4096/odonto/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	client, model, err := llm.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		fmt.Printf("provider setup failed: %v\n", err)
		os.Exit(1)
	}

	req := llm.Request{
		Model: model,
		System: []string{
			"Você é um assistente de agendamento odontológico. Seja breve, amigável e direto.",
		},
		Messages: []llm.ChatMessage{
			{Role: llm.ChatRoleUser, Content: "Oi, queria marcar uma limpeza."},
			{Role: llm.ChatRoleAssistant, Content: "Claro! Qual é o seu nome completo?"},
			{Role: llm.ChatRoleUser, Content: "Meu nome é João Silva, pode ser amanhã de manhã?"},
		},
		MaxTokens:   int32(cfg.AIMaxTokens),
		Temperature: cfg.AITemperature,
	}

	fmt.Printf("provider: %s (model %s)\n", cfg.AIProvider, model)
	start := time.Now()
	resp, err := client.Complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Printf("completion failed after %v: %v\n", elapsed.Round(time.Millisecond), err)
		os.Exit(1)
	}

	fmt.Printf("completed in %v (stop: %s, tokens in/out: %d/%d)\n",
		elapsed.Round(time.Millisecond), resp.StopReason,
		resp.Usage.InputTokens, resp.Usage.OutputTokens)
	fmt.Println(resp.Text)
}
