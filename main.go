package main

import (
	"fmt"

	_ "github.com/agentuity/go-resource/env"
	_ "github.com/agentuity/go-resource/eventing"
	_ "github.com/agentuity/go-resource/executor"
	_ "github.com/agentuity/go-resource/invalidation"
	_ "github.com/agentuity/go-resource/loaders"
	_ "github.com/agentuity/go-resource/logger"
	_ "github.com/agentuity/go-resource/metadata"
	_ "github.com/agentuity/go-resource/resilience"
	_ "github.com/agentuity/go-resource/resource"
	_ "github.com/agentuity/go-resource/scheduler"
	_ "github.com/agentuity/go-resource/store"
	_ "github.com/agentuity/go-resource/telemetry"
)

func main() {
	fmt.Println("Hi")
}
