package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cloudx-io/dutchauction/validation"
)

// plainTextHandler is a simple slog handler that writes plain text to stdout
// without timestamps or log levels - appropriate for CLI output
type plainTextHandler struct{}

func (*plainTextHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (*plainTextHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintln(os.Stdout, r.Message)
	return err
}

func (h *plainTextHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *plainTextHandler) WithGroup(_ string) slog.Handler {
	return h
}

var logger = slog.New(&plainTextHandler{})

func main() {
	var (
		resultPath   = flag.String("result", "", "Path to base64 signed reveal result file (required)")
		oracleKey    = flag.String("oracle-key", "", "Path to oracle public key PEM file (required)")
		requestID    = flag.String("request-id", "", "Expected reveal request id (required)")
		outputFormat = flag.String("format", "text", "Output format: text or json")
		help         = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help || *resultPath == "" || *oracleKey == "" || *requestID == "" {
		showUsage()
		if *resultPath == "" || *oracleKey == "" || *requestID == "" {
			os.Exit(1)
		}
		os.Exit(0)
	}

	signedResult, err := os.ReadFile(*resultPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading result: %v\n", err)
		os.Exit(2)
	}

	keyPEM, err := os.ReadFile(*oracleKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading oracle key: %v\n", err)
		os.Exit(2)
	}

	result, err := validation.ValidateRevealResult(strings.TrimSpace(string(signedResult)), string(keyPEM), *requestID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	if *outputFormat == "json" {
		if err := outputJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
			os.Exit(2)
		}
	} else {
		outputText(result)
	}

	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	logger.Info("Oracle Reveal Result Validator")
	logger.Info("")
	logger.Info("Verifies a signed reveal result from the decryption oracle:")
	logger.Info("signature against the oracle's public key, and correlation with")
	logger.Info("the reveal request that was submitted.")
	logger.Info("")
	logger.Info("Usage:")
	logger.Info("  reveal-validator --result <path> --oracle-key <pem> --request-id <uuid> [options]")
	logger.Info("")
	logger.Info("Required Flags:")
	logger.Info("  --result <path>                   Path to base64 signed result file")
	logger.Info("  --oracle-key <path>               Path to oracle public key PEM file")
	logger.Info("  --request-id <uuid>               Expected reveal request id")
	logger.Info("")
	logger.Info("Optional Flags:")
	logger.Info("  --format <text|json>              Output format (default: text)")
	logger.Info("  --help                            Show this help message")
	logger.Info("")
	logger.Info("Exit Codes:")
	logger.Info("  0 - Validation passed")
	logger.Info("  1 - Validation failed")
	logger.Info("  2 - Invalid input or runtime error")
}

func outputText(result *validation.RevealValidationResult) {
	logger.Info("Oracle Reveal Result Validator")
	logger.Info("==============================")
	logger.Info("")

	logger.Info("Validation Results:")
	logger.Info("-------------------")
	for _, detail := range result.ValidationDetails {
		logger.Info("  " + detail)
	}

	logger.Info("")
	logger.Info("Summary:")
	logger.Info(fmt.Sprintf("  Signature Valid:  %v", result.SignatureValid))
	logger.Info(fmt.Sprintf("  Request ID Match: %v", result.RequestIDMatch))
	if result.SignatureValid {
		logger.Info(fmt.Sprintf("  Plaintexts:       %v", result.Plaintexts))
	}

	logger.Info("")
	logger.Info("==============================")
	if result.IsValid() {
		logger.Info("VALIDATION: ✓ PASSED")
		logger.Info("Exit Code: 0")
	} else {
		logger.Info("VALIDATION: ✗ FAILED")
		logger.Info("Exit Code: 1")
	}
}

func outputJSON(result *validation.RevealValidationResult) error {
	output := map[string]any{
		"valid":            result.IsValid(),
		"signature_valid":  result.SignatureValid,
		"request_id_match": result.RequestIDMatch,
		"plaintexts":       result.Plaintexts,
		"details":          result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	logger.Info(string(data))
	return nil
}
