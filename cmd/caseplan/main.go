package main

import (
	"github.com/eshields/caseplan/adapter/cli"
	"github.com/eshields/caseplan/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()
	cli.SetLogger(logger)
	cli.Execute()
}
