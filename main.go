package main

import (
	"log"
	"net/http"
	"os"

	"videoAsk/config"
	"videoAsk/retrieval"
	"videoAsk/server"
	"videoAsk/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if !cfg.HasValidAPI() {
		config.PrintConfigInstructions()
		log.Fatalf("API key required: retrieval cannot embed queries without it")
	}

	index, err := storage.NewIndexFromEnv()
	if err != nil {
		log.Fatalf("failed to init vector index: %v", err)
	}
	backend := os.Getenv("STORE")
	if backend == "" {
		backend = "memory"
	}
	log.Printf("Vector index initialized: %s", backend)

	embedder, err := storage.NewOpenAIEmbedder()
	if err != nil {
		log.Fatalf("failed to init embedder: %v", err)
	}

	var vision storage.VisionCaptioner
	if v, err := storage.NewOpenAIVision(); err != nil {
		// 视觉分析是尽力而为的，缺失时检索自动退化为纯文本路径
		log.Printf("Warning: vision captioner unavailable (%v), image context disabled", err)
	} else {
		vision = v
	}

	retriever := retrieval.NewRetriever(embedder, vision, index)
	h := server.NewAskHandlers(retriever)

	http.HandleFunc("/ask", h.AskHandler)
	http.HandleFunc("/health", h.HealthHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("videoAsk listening on :%s", port)
	log.Fatal(http.ListenAndServe(":"+port, nil))
}
